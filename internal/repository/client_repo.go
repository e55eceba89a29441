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

const clientColumns = `id, name, email, currency, default_rate, default_vat_percent,
	working_hours_per_day, payment_term_days, notes, is_archived, created_at, updated_at`

// ClientRepo is a SQLite implementation of ClientRepository
type ClientRepo struct {
	db *db.DB
}

// NewClientRepo creates a new ClientRepo
func NewClientRepo(database *db.DB) *ClientRepo {
	return &ClientRepo{db: database}
}

// Create inserts a new client into the database
func (r *ClientRepo) Create(ctx context.Context, client *domain.Client) error {
	if err := client.Validate(); err != nil {
		return apperrors.Invalid("client", "%v", err)
	}

	query := `
		INSERT INTO clients (name, email, currency, default_rate, default_vat_percent,
			working_hours_per_day, payment_term_days, notes, is_archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var terms interface{}
	if client.PaymentTermDays != nil {
		terms = *client.PaymentTermDays
	}

	result, err := r.db.ExecContext(ctx, query,
		client.Name,
		client.Email,
		client.Currency,
		client.DefaultRate,
		client.DefaultVATPercent,
		client.WorkingHoursPerDay,
		terms,
		client.Notes,
		client.IsArchived,
		client.CreatedAt.Format(timeLayout),
		client.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get client ID: %w", err)
	}

	client.ID = id
	return nil
}

// GetByID retrieves a client by ID
func (r *ClientRepo) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+clientColumns+" FROM clients WHERE id = ?", id)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("client", id)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// GetByName retrieves a client by name
func (r *ClientRepo) GetByName(ctx context.Context, name string) (*domain.Client, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+clientColumns+" FROM clients WHERE name = ?", name)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("client", name)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// List retrieves all clients, optionally including archived ones
func (r *ClientRepo) List(ctx context.Context, includeArchived bool) ([]*domain.Client, error) {
	query := "SELECT " + clientColumns + " FROM clients"
	if !includeArchived {
		query += " WHERE is_archived = 0"
	}
	query += " ORDER BY name"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]*domain.Client, 0)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}

	return clients, nil
}

// Update updates an existing client
func (r *ClientRepo) Update(ctx context.Context, client *domain.Client) error {
	if err := client.Validate(); err != nil {
		return apperrors.Invalid("client", "%v", err)
	}

	query := `
		UPDATE clients
		SET name = ?, email = ?, currency = ?, default_rate = ?, default_vat_percent = ?,
		    working_hours_per_day = ?, payment_term_days = ?, notes = ?, is_archived = ?, updated_at = ?
		WHERE id = ?
	`

	var terms interface{}
	if client.PaymentTermDays != nil {
		terms = *client.PaymentTermDays
	}

	result, err := r.db.ExecContext(ctx, query,
		client.Name,
		client.Email,
		client.Currency,
		client.DefaultRate,
		client.DefaultVATPercent,
		client.WorkingHoursPerDay,
		terms,
		client.Notes,
		client.IsArchived,
		formatTime(),
		client.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}

	return expectOneRow(result, "client", client.ID)
}

// Archive marks a client as archived
func (r *ClientRepo) Archive(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "UPDATE clients SET is_archived = 1, updated_at = ? WHERE id = ?", formatTime(), id)
	if err != nil {
		return fmt.Errorf("failed to archive client: %w", err)
	}
	return expectOneRow(result, "client", id)
}

// Delete removes a client. Invoices must already be gone: the foreign key
// from invoices rejects the delete otherwise.
func (r *ClientRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return expectOneRow(result, "client", id)
}

func scanClient(s rowScanner) (*domain.Client, error) {
	client := &domain.Client{}
	var email, notes sql.NullString
	var terms sql.NullInt64
	var createdAt, updatedAt string

	err := s.Scan(
		&client.ID,
		&client.Name,
		&email,
		&client.Currency,
		&client.DefaultRate,
		&client.DefaultVATPercent,
		&client.WorkingHoursPerDay,
		&terms,
		&notes,
		&client.IsArchived,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	client.Email = email.String
	client.Notes = notes.String
	if terms.Valid {
		n := int(terms.Int64)
		client.PaymentTermDays = &n
	}
	if err := scanTimestamps(createdAt, updatedAt, &client.CreatedAt, &client.UpdatedAt); err != nil {
		return nil, err
	}

	return client, nil
}

// expectOneRow maps zero affected rows to ErrNotFound
func expectOneRow(result sql.Result, kind string, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound(kind, id)
	}
	return nil
}
