package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/work-flower/timesheet-application-sub001/internal/logger"
	"gopkg.in/yaml.v3"
)

const appName = "timesheet"

type Config struct {
	// Database settings
	Database DatabaseConfig `yaml:"database"`

	// Invoice numbering and terms
	Invoice InvoiceConfig `yaml:"invoice"`

	// Business details printed on invoices
	Business BusinessConfig `yaml:"business"`

	// Reporting periods
	Periods PeriodsConfig `yaml:"periods"`

	Log logger.LogConfig `yaml:"log"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // Path to SQLite database
}

// InvoiceConfig seeds the settings row the first time the database is created;
// afterwards the settings row is authoritative.
type InvoiceConfig struct {
	NumberPrefix           string `yaml:"number_prefix"`             // e.g. "INV" -> INV00001
	DefaultPaymentTermDays int    `yaml:"default_payment_term_days"` // due date offset
	StartingSeed           int64  `yaml:"starting_seed"`             // last number already used elsewhere
}

type BusinessConfig struct {
	Name      string `yaml:"name"`
	Email     string `yaml:"email"`
	Address   string `yaml:"address"`
	VATNumber string `yaml:"vat_number"`
}

type PeriodsConfig struct {
	CompanyYearEnd     string `yaml:"company_year_end"`      // MM-DD
	VATQuarterEndMonth int    `yaml:"vat_quarter_end_month"` // 1, 2 or 3
}

// DefaultConfigPath returns ~/.config/timesheet/config.yaml
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir unavailable
		return filepath.Join(".", ".config", appName, "config.yaml")
	}
	return filepath.Join(homeDir, ".config", appName, "config.yaml")
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(homeDir, ".config", appName, appName+".db"),
		},
		Invoice: InvoiceConfig{
			NumberPrefix:           "INV",
			DefaultPaymentTermDays: 30,
		},
		Periods: PeriodsConfig{
			CompanyYearEnd:     "03-31",
			VATQuarterEndMonth: 3,
		},
		Log: logger.DefaultConfig(),
	}
}

// Load loads config from the given path, or returns defaults if file doesn't exist.
// A .env file in the working directory and TIMESHEET_* environment variables
// override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Missing .env is normal
	_ = godotenv.Load()
	applyEnv(cfg, envReader())

	return cfg, nil
}

// LoadDefault loads from the default config path
func LoadDefault() (*Config, error) {
	return Load(DefaultConfigPath())
}

func envReader() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TIMESHEET")
	for _, key := range []string{"db_path", "invoice_prefix", "payment_term_days", "log_level", "log_format"} {
		_ = v.BindEnv(key)
	}
	return v
}

func applyEnv(cfg *Config, v *viper.Viper) {
	if s := v.GetString("db_path"); s != "" {
		cfg.Database.Path = s
	}
	if s := v.GetString("invoice_prefix"); s != "" {
		cfg.Invoice.NumberPrefix = s
	}
	if s := v.GetString("payment_term_days"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			cfg.Invoice.DefaultPaymentTermDays = n
		}
	}
	if s := v.GetString("log_level"); s != "" {
		cfg.Log.Level = s
	}
	if s := v.GetString("log_format"); s != "" {
		cfg.Log.Format = s
	}
}

// Save writes the config to the given path
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// EnsureDirectories creates the database directory
func (c *Config) EnsureDirectories() error {
	return os.MkdirAll(filepath.Dir(c.Database.Path), 0755)
}
