package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/db"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
)

const invoiceColumns = `id, client_id, status, invoice_number, sequence, invoice_date, due_date,
	service_period_start, service_period_end, additional_notes, subtotal, total_vat, total,
	payment_status, paid_date, ever_confirmed, created_at, updated_at`

const lineColumns = `invoice_id, id, type, source_id, project_id, source_date, description,
	quantity, unit_price, vat_percent, net_amount, vat_amount, gross_amount, source_deleted`

// InvoiceRepo is a SQLite implementation of InvoiceRepository
type InvoiceRepo struct {
	db *db.DB
}

// NewInvoiceRepo creates a new InvoiceRepo
func NewInvoiceRepo(database *db.DB) *InvoiceRepo {
	return &InvoiceRepo{db: database}
}

// Create inserts the invoice and its lines in one transaction
func (r *InvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	if err := invoice.Validate(); err != nil {
		return apperrors.Invalid("invoice", "%v", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO invoices (
			client_id, status, invoice_number, sequence, invoice_date, due_date,
			service_period_start, service_period_end, additional_notes,
			subtotal, total_vat, total, payment_status, paid_date, ever_confirmed,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.ExecContext(ctx, query,
		invoice.ClientID,
		string(invoice.Status),
		invoice.InvoiceNumber,
		nullInt64(invoice.Sequence),
		formatDate(invoice.InvoiceDate),
		formatDate(invoice.DueDate),
		nullDate(invoice.ServicePeriodStart),
		nullDate(invoice.ServicePeriodEnd),
		invoice.AdditionalNotes,
		invoice.Subtotal,
		invoice.TotalVAT,
		invoice.Total,
		string(invoice.PaymentStatus),
		nullDate(invoice.PaidDate),
		invoice.EverConfirmed,
		invoice.CreatedAt.Format(timeLayout),
		invoice.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get invoice ID: %w", err)
	}

	if err := insertLines(ctx, tx, id, invoice.Lines); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	invoice.ID = id
	return nil
}

// GetByID retrieves an invoice with its lines
func (r *InvoiceRepo) GetByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("invoice", id)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if err := r.loadLines(ctx, []*domain.Invoice{invoice}); err != nil {
		return nil, err
	}
	return invoice, nil
}

// List retrieves invoices matching the filter, newest first
func (r *InvoiceRepo) List(ctx context.Context, filter InvoiceFilter) ([]*domain.Invoice, error) {
	query := "SELECT " + invoiceColumns + " FROM invoices WHERE 1 = 1"
	args := []interface{}{}

	if filter.ClientID != nil {
		query += " AND client_id = ?"
		args = append(args, *filter.ClientID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.From != nil {
		query += " AND invoice_date >= ?"
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		query += " AND invoice_date <= ?"
		args = append(args, formatDate(*filter.To))
	}
	query += " ORDER BY invoice_date DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]*domain.Invoice, 0)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	// The single connection must be free before the line query.
	rows.Close()

	if err := r.loadLines(ctx, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// Update writes the invoice header and replaces its lines
func (r *InvoiceRepo) Update(ctx context.Context, invoice *domain.Invoice) error {
	if err := invoice.Validate(); err != nil {
		return apperrors.Invalid("invoice", "%v", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE invoices
		SET client_id = ?, status = ?, invoice_number = ?, sequence = ?, invoice_date = ?, due_date = ?,
		    service_period_start = ?, service_period_end = ?, additional_notes = ?,
		    subtotal = ?, total_vat = ?, total = ?, payment_status = ?, paid_date = ?,
		    ever_confirmed = ?, updated_at = ?
		WHERE id = ?
	`

	invoice.UpdatedAt = time.Now()

	result, err := tx.ExecContext(ctx, query,
		invoice.ClientID,
		string(invoice.Status),
		invoice.InvoiceNumber,
		nullInt64(invoice.Sequence),
		formatDate(invoice.InvoiceDate),
		formatDate(invoice.DueDate),
		nullDate(invoice.ServicePeriodStart),
		nullDate(invoice.ServicePeriodEnd),
		invoice.AdditionalNotes,
		invoice.Subtotal,
		invoice.TotalVAT,
		invoice.Total,
		string(invoice.PaymentStatus),
		nullDate(invoice.PaidDate),
		invoice.EverConfirmed,
		invoice.UpdatedAt.Format(timeLayout),
		invoice.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if err := expectOneRow(result, "invoice", invoice.ID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM invoice_lines WHERE invoice_id = ?", invoice.ID); err != nil {
		return fmt.Errorf("failed to clear invoice lines: %w", err)
	}
	if err := insertLines(ctx, tx, invoice.ID, invoice.Lines); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes an invoice and its lines. The foreign keys from timesheets
// and expenses reject the delete while any source is still locked to it.
func (r *InvoiceRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM invoices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return expectOneRow(result, "invoice", id)
}

func (r *InvoiceRepo) MaxSequence(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(sequence) FROM invoices").Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max invoice sequence: %w", err)
	}
	return max.Int64, nil
}

func insertLines(ctx context.Context, tx *sql.Tx, invoiceID int64, lines []domain.LineItem) error {
	if len(lines) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO invoice_lines (invoice_id, position, id, type, source_id, project_id, source_date,
			description, quantity, unit_price, vat_percent, net_amount, vat_amount, gross_amount, source_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare line insert: %w", err)
	}
	defer stmt.Close()

	for i, l := range lines {
		_, err := stmt.ExecContext(ctx,
			invoiceID,
			i,
			l.ID,
			string(l.Type),
			nullInt64(l.SourceID),
			nullInt64(l.ProjectID),
			nullDate(l.Date),
			l.Description,
			l.Quantity,
			l.UnitPrice,
			l.VATPercent,
			l.NetAmount,
			l.VATAmount,
			l.GrossAmount,
			l.SourceDeleted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert invoice line %s: %w", l.ID, err)
		}
	}
	return nil
}

// loadLines fills Lines for every invoice with a single query
func (r *InvoiceRepo) loadLines(ctx context.Context, invoices []*domain.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Invoice, len(invoices))
	ids := make([]int64, len(invoices))
	for i, inv := range invoices {
		byID[inv.ID] = inv
		ids[i] = inv.ID
		inv.Lines = []domain.LineItem{}
	}

	in, args := inClause(ids)
	query := "SELECT " + lineColumns + " FROM invoice_lines WHERE invoice_id IN " + in + " ORDER BY invoice_id, position"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to get invoice lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var invoiceID int64
		line, err := scanLine(rows, &invoiceID)
		if err != nil {
			return fmt.Errorf("failed to scan invoice line: %w", err)
		}
		if inv, ok := byID[invoiceID]; ok {
			inv.Lines = append(inv.Lines, *line)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating invoice lines: %w", err)
	}
	return nil
}

func scanInvoice(s rowScanner) (*domain.Invoice, error) {
	invoice := &domain.Invoice{}
	var status, paymentStatus, invoiceDate, dueDate, createdAt, updatedAt string
	var number, periodStart, periodEnd, notes, paidDate sql.NullString
	var sequence sql.NullInt64

	err := s.Scan(
		&invoice.ID,
		&invoice.ClientID,
		&status,
		&number,
		&sequence,
		&invoiceDate,
		&dueDate,
		&periodStart,
		&periodEnd,
		&notes,
		&invoice.Subtotal,
		&invoice.TotalVAT,
		&invoice.Total,
		&paymentStatus,
		&paidDate,
		&invoice.EverConfirmed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	invoice.Status = domain.InvoiceStatus(status)
	invoice.PaymentStatus = domain.PaymentStatus(paymentStatus)
	invoice.AdditionalNotes = notes.String
	invoice.Sequence = scanNullInt64(sequence)
	if number.Valid {
		n := number.String
		invoice.InvoiceNumber = &n
	}

	if invoice.InvoiceDate, err = parseDate(invoiceDate); err != nil {
		return nil, fmt.Errorf("failed to parse invoice_date: %w", err)
	}
	if invoice.DueDate, err = parseDate(dueDate); err != nil {
		return nil, fmt.Errorf("failed to parse due_date: %w", err)
	}
	if invoice.ServicePeriodStart, err = scanNullDate(periodStart); err != nil {
		return nil, fmt.Errorf("failed to parse service_period_start: %w", err)
	}
	if invoice.ServicePeriodEnd, err = scanNullDate(periodEnd); err != nil {
		return nil, fmt.Errorf("failed to parse service_period_end: %w", err)
	}
	if invoice.PaidDate, err = scanNullDate(paidDate); err != nil {
		return nil, fmt.Errorf("failed to parse paid_date: %w", err)
	}
	if err := scanTimestamps(createdAt, updatedAt, &invoice.CreatedAt, &invoice.UpdatedAt); err != nil {
		return nil, err
	}

	return invoice, nil
}

func scanLine(s rowScanner, invoiceID *int64) (*domain.LineItem, error) {
	line := &domain.LineItem{}
	var lineType string
	var sourceID, projectID sql.NullInt64
	var sourceDate, description sql.NullString

	err := s.Scan(
		invoiceID,
		&line.ID,
		&lineType,
		&sourceID,
		&projectID,
		&sourceDate,
		&description,
		&line.Quantity,
		&line.UnitPrice,
		&line.VATPercent,
		&line.NetAmount,
		&line.VATAmount,
		&line.GrossAmount,
		&line.SourceDeleted,
	)
	if err != nil {
		return nil, err
	}

	line.Type = domain.LineType(lineType)
	line.SourceID = scanNullInt64(sourceID)
	line.ProjectID = scanNullInt64(projectID)
	line.Description = description.String
	if line.Date, err = scanNullDate(sourceDate); err != nil {
		return nil, fmt.Errorf("failed to parse source_date: %w", err)
	}
	return line, nil
}
