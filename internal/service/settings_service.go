package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/logger"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
)

// SettingsService exposes the settings row. The invoice counter itself only
// moves through the invoice engine, except for SetInvoiceSeed.
type SettingsService interface {
	Get(ctx context.Context) (*domain.Settings, error)
	Update(ctx context.Context, prefix *string, paymentTermDays *int) (*domain.Settings, error)

	// SetInvoiceSeed moves the counter. It may not go below the highest
	// number held by any invoice, so numbers are never handed out twice.
	SetInvoiceSeed(ctx context.Context, seed int64) error
}

type settingsService struct {
	settingsRepo repository.SettingsRepository
	invoiceRepo  repository.InvoiceRepository
	log          zerolog.Logger
}

func NewSettingsService(settingsRepo repository.SettingsRepository, invoiceRepo repository.InvoiceRepository) SettingsService {
	return &settingsService{
		settingsRepo: settingsRepo,
		invoiceRepo:  invoiceRepo,
		log:          logger.WithComponent("settings"),
	}
}

func (s *settingsService) Get(ctx context.Context) (*domain.Settings, error) {
	return s.settingsRepo.Get(ctx)
}

func (s *settingsService) Update(ctx context.Context, prefix *string, paymentTermDays *int) (*domain.Settings, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if prefix != nil {
		settings.InvoicePrefix = *prefix
	}
	if paymentTermDays != nil {
		settings.DefaultPaymentTermDays = *paymentTermDays
	}

	if err := s.settingsRepo.Update(ctx, settings); err != nil {
		return nil, err
	}
	return s.settingsRepo.Get(ctx)
}

func (s *settingsService) SetInvoiceSeed(ctx context.Context, seed int64) error {
	if seed < 0 {
		return apperrors.Invalid("invoiceNumberSeed", "must not be negative")
	}

	highest, err := s.invoiceRepo.MaxSequence(ctx)
	if err != nil {
		return err
	}
	if seed < highest {
		return apperrors.Invalid("invoiceNumberSeed", "must be at least %d, the highest number in use", highest)
	}

	if err := s.settingsRepo.SetInvoiceSeed(ctx, seed); err != nil {
		return err
	}

	s.log.Info().Int64("seed", seed).Msg("invoice number seed changed")
	return nil
}
