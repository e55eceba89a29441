package app

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/work-flower/timesheet-application-sub001/internal/config"
	"github.com/work-flower/timesheet-application-sub001/internal/crypto"
	"github.com/work-flower/timesheet-application-sub001/internal/db"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/logger"
	"github.com/work-flower/timesheet-application-sub001/internal/period"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
	"github.com/work-flower/timesheet-application-sub001/internal/service"
)

// App is the dependency injection container for all application components
type App struct {
	Config *config.Config
	DB     *db.DB

	// Repositories
	ClientRepo    repository.ClientRepository
	ProjectRepo   repository.ProjectRepository
	TimesheetRepo repository.TimesheetRepository
	ExpenseRepo   repository.ExpenseRepository
	InvoiceRepo   repository.InvoiceRepository
	SettingsRepo  repository.SettingsRepository

	// Services
	ClientService    service.ClientService
	TimesheetService service.TimesheetService
	ExpenseService   service.ExpenseService
	InvoiceService   service.InvoiceService
	SettingsService  service.SettingsService
	ReportService    service.ReportService
}

// Options adjust startup from command-line flags parsed before cobra runs.
type Options struct {
	Verbose bool
}

// New loads the default config and builds the App.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates an App with a provided config (useful for testing).
// Startup order: logger, key, database and migrations, repositories, the
// settings row, then services.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := logger.Setup(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	log := logger.WithComponent("app")

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	yearEnd, err := period.ParseMonthDay(cfg.Periods.CompanyYearEnd)
	if err != nil {
		return nil, fmt.Errorf("invalid periods.company_year_end: %w", err)
	}
	vatMonth := time.Month(cfg.Periods.VATQuarterEndMonth)
	if vatMonth < time.January || vatMonth > time.March {
		return nil, fmt.Errorf("invalid periods.vat_quarter_end_month %d: must be 1, 2 or 3", cfg.Periods.VATQuarterEndMonth)
	}

	password, err := databaseKey()
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.Path, password)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.RunMigrations(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	clientRepo := repository.NewClientRepo(database)
	projectRepo := repository.NewProjectRepo(database)
	timesheetRepo := repository.NewTimesheetRepo(database)
	expenseRepo := repository.NewExpenseRepo(database)
	invoiceRepo := repository.NewInvoiceRepo(database)
	settingsRepo := repository.NewSettingsRepo(database)

	// config only seeds the row; afterwards the row is authoritative
	err = settingsRepo.Ensure(ctx, domain.Settings{
		InvoiceNumberSeed:      cfg.Invoice.StartingSeed,
		InvoicePrefix:          cfg.Invoice.NumberPrefix,
		DefaultPaymentTermDays: cfg.Invoice.DefaultPaymentTermDays,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize settings: %w", err)
	}

	// The invoice engine and the client service depend on each other
	// through narrow interfaces: terms first, then invoices, then clients.
	terms := service.NewTermsResolver(clientRepo, projectRepo)
	invoiceService := service.NewInvoiceService(invoiceRepo, timesheetRepo, expenseRepo, clientRepo, settingsRepo, terms)
	clientService := service.NewClientService(clientRepo, projectRepo, terms, invoiceService)

	a := &App{
		Config:           cfg,
		DB:               database,
		ClientRepo:       clientRepo,
		ProjectRepo:      projectRepo,
		TimesheetRepo:    timesheetRepo,
		ExpenseRepo:      expenseRepo,
		InvoiceRepo:      invoiceRepo,
		SettingsRepo:     settingsRepo,
		ClientService:    clientService,
		TimesheetService: service.NewTimesheetService(timesheetRepo, terms),
		ExpenseService:   service.NewExpenseService(expenseRepo, projectRepo),
		InvoiceService:   invoiceService,
		SettingsService:  service.NewSettingsService(settingsRepo, invoiceRepo),
		ReportService:    service.NewReportService(invoiceRepo, timesheetRepo, expenseRepo, yearEnd, vatMonth),
	}

	version, dirty, err := database.SchemaVersion()
	if err == nil {
		log.Debug().Str("db", cfg.Database.Path).Uint("schema_version", version).Bool("dirty", dirty).Msg("database ready")
	}
	return a, nil
}

// Close cleanly shuts down the application
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// SaveConfig saves the current configuration to disk
func (a *App) SaveConfig() error {
	return a.Config.Save(config.DefaultConfigPath())
}

// databaseKey reads the encryption key from the keyring, prompting for a new
// one on first run.
func databaseKey() (string, error) {
	keyring := crypto.NewKeyring()

	password, err := keyring.GetKey()
	if err == nil {
		return password, nil
	}
	// a keychain that refuses access must not be taken for a first run
	if !errors.Is(err, crypto.ErrKeyNotFound) {
		return "", err
	}

	fmt.Println("Setting up database encryption for the first time...")
	password, err = promptForPassword()
	if err != nil {
		return "", fmt.Errorf("failed to set password: %w", err)
	}

	if err := keyring.SetKey(password); err != nil {
		return "", fmt.Errorf("failed to store encryption key: %w", err)
	}
	return password, nil
}

// promptForPassword prompts user for a new database password (first run)
func promptForPassword() (string, error) {
	fmt.Println()
	fmt.Println("Your timesheets and invoices will be encrypted with a password.")
	fmt.Println("This password will be stored securely in your system keyring.")
	fmt.Println()
	fmt.Print("Enter a password for database encryption: ")

	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) == 0 {
		return "", fmt.Errorf("password cannot be empty")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}

	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}

	fmt.Println()
	fmt.Println("✓ Database encryption configured successfully")
	fmt.Println()

	return string(password), nil
}
