package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/db"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
)

// SettingsRepo is a SQLite implementation of SettingsRepository
type SettingsRepo struct {
	db *db.DB
}

func NewSettingsRepo(database *db.DB) *SettingsRepo {
	return &SettingsRepo{db: database}
}

func (r *SettingsRepo) Ensure(ctx context.Context, defaults domain.Settings) error {
	if err := defaults.Validate(); err != nil {
		return apperrors.Invalid("settings", "%v", err)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO settings (id, invoice_number_seed, invoice_prefix, default_payment_term_days, updated_at)
		VALUES (1, ?, ?, ?, ?)
	`, defaults.InvoiceNumberSeed, defaults.InvoicePrefix, defaults.DefaultPaymentTermDays, formatTime())
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

func (r *SettingsRepo) Get(ctx context.Context) (*domain.Settings, error) {
	s := &domain.Settings{}
	var updatedAt string

	err := r.db.QueryRowContext(ctx, `
		SELECT invoice_number_seed, invoice_prefix, default_payment_term_days, updated_at
		FROM settings WHERE id = 1
	`).Scan(&s.InvoiceNumberSeed, &s.InvoicePrefix, &s.DefaultPaymentTermDays, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("settings", 1)
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return s, nil
}

func (r *SettingsRepo) Update(ctx context.Context, s *domain.Settings) error {
	if err := s.Validate(); err != nil {
		return apperrors.Invalid("settings", "%v", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE settings SET invoice_prefix = ?, default_payment_term_days = ?, updated_at = ?
		WHERE id = 1
	`, s.InvoicePrefix, s.DefaultPaymentTermDays, formatTime())
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return expectOneRow(result, "settings", 1)
}

func (r *SettingsRepo) GetInvoiceSeed(ctx context.Context) (int64, error) {
	var seed int64
	err := r.db.QueryRowContext(ctx, "SELECT invoice_number_seed FROM settings WHERE id = 1").Scan(&seed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperrors.NotFound("settings", 1)
		}
		return 0, fmt.Errorf("failed to get invoice seed: %w", err)
	}
	return seed, nil
}

// ReserveNextNumber bumps the seed and reads it back inside one transaction;
// the bundled SQLite predates RETURNING.
func (r *SettingsRepo) ReserveNextNumber(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE settings SET invoice_number_seed = invoice_number_seed + 1, updated_at = ? WHERE id = 1",
		formatTime())
	if err != nil {
		return 0, fmt.Errorf("failed to reserve invoice number: %w", err)
	}
	if err := expectOneRow(result, "settings", 1); err != nil {
		return 0, err
	}

	var seed int64
	if err := tx.QueryRowContext(ctx, "SELECT invoice_number_seed FROM settings WHERE id = 1").Scan(&seed); err != nil {
		return 0, fmt.Errorf("failed to read invoice seed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return seed, nil
}

func (r *SettingsRepo) ReleaseNumber(ctx context.Context, n int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE settings SET invoice_number_seed = invoice_number_seed - 1, updated_at = ?
		WHERE id = 1 AND invoice_number_seed = ? AND invoice_number_seed > 0
	`, formatTime(), n)
	if err != nil {
		return false, fmt.Errorf("failed to release invoice number: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *SettingsRepo) RestoreNumber(ctx context.Context, n int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET invoice_number_seed = ?, updated_at = ?
		WHERE id = 1 AND invoice_number_seed = ? - 1
	`, n, formatTime(), n)
	if err != nil {
		return fmt.Errorf("failed to restore invoice number: %w", err)
	}
	return nil
}

func (r *SettingsRepo) SetInvoiceSeed(ctx context.Context, seed int64) error {
	if seed < 0 {
		return apperrors.Invalid("invoiceNumberSeed", "must not be negative")
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE settings SET invoice_number_seed = ?, updated_at = ? WHERE id = 1",
		seed, formatTime())
	if err != nil {
		return fmt.Errorf("failed to set invoice seed: %w", err)
	}
	return expectOneRow(result, "settings", 1)
}
