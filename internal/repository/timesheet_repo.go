package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/db"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
)

const timesheetColumns = `t.id, t.project_id, t.date, t.hours, t.days, t.effective_rate, t.amount,
	t.description, t.invoice_id, t.created_at, t.updated_at`

// TimesheetRepo is a SQLite implementation of TimesheetRepository
type TimesheetRepo struct {
	db *db.DB
}

// NewTimesheetRepo creates a new TimesheetRepo
func NewTimesheetRepo(database *db.DB) *TimesheetRepo {
	return &TimesheetRepo{db: database}
}

// Create inserts a new timesheet entry
func (r *TimesheetRepo) Create(ctx context.Context, ts *domain.Timesheet) error {
	if err := ts.Validate(); err != nil {
		return apperrors.Invalid("timesheet", "%v", err)
	}

	query := `
		INSERT INTO timesheets (project_id, date, hours, days, effective_rate, amount,
			description, invoice_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		ts.ProjectID,
		formatDate(ts.Date),
		ts.Hours,
		ts.Days,
		ts.EffectiveRate,
		ts.Amount,
		ts.Description,
		nullInt64(ts.InvoiceID),
		ts.CreatedAt.Format(timeLayout),
		ts.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create timesheet: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get timesheet ID: %w", err)
	}

	ts.ID = id
	return nil
}

// GetByID retrieves a timesheet entry by ID
func (r *TimesheetRepo) GetByID(ctx context.Context, id int64) (*domain.Timesheet, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+timesheetColumns+" FROM timesheets t WHERE t.id = ?", id)
	ts, err := scanTimesheet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("timesheet", id)
		}
		return nil, fmt.Errorf("failed to get timesheet: %w", err)
	}
	return ts, nil
}

// FindManyByIDs returns the entries that exist; missing IDs are simply absent
func (r *TimesheetRepo) FindManyByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Timesheet, error) {
	found := make(map[int64]*domain.Timesheet, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	in, args := inClause(ids)
	rows, err := r.db.QueryContext(ctx, "SELECT "+timesheetColumns+" FROM timesheets t WHERE t.id IN "+in, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find timesheets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ts, err := scanTimesheet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timesheet: %w", err)
		}
		found[ts.ID] = ts
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timesheets: %w", err)
	}

	return found, nil
}

// List retrieves timesheet entries with optional filters, oldest first
func (r *TimesheetRepo) List(ctx context.Context, filter SourceFilter) ([]*domain.Timesheet, error) {
	query := "SELECT " + timesheetColumns + " FROM timesheets t JOIN projects p ON p.id = t.project_id WHERE 1 = 1"
	query, args := applySourceFilter(query, "t", filter)
	query += " ORDER BY t.date, t.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list timesheets: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.Timesheet, 0)
	for rows.Next() {
		ts, err := scanTimesheet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timesheet: %w", err)
		}
		entries = append(entries, ts)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timesheets: %w", err)
	}

	return entries, nil
}

// Update updates an unlocked timesheet entry and records an audit trail
func (r *TimesheetRepo) Update(ctx context.Context, ts *domain.Timesheet, reason string) error {
	if err := ts.Validate(); err != nil {
		return apperrors.Invalid("timesheet", "%v", err)
	}

	old, err := r.GetByID(ctx, ts.ID)
	if err != nil {
		return err
	}
	if old.IsLocked() {
		return fmt.Errorf("cannot update timesheet %d: %w", ts.ID, apperrors.ErrSourceLocked)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE timesheets
		SET project_id = ?, date = ?, hours = ?, days = ?, effective_rate = ?, amount = ?,
		    description = ?, updated_at = ?
		WHERE id = ? AND invoice_id IS NULL
	`

	ts.UpdatedAt = time.Now()

	result, err := tx.ExecContext(ctx, query,
		ts.ProjectID,
		formatDate(ts.Date),
		ts.Hours,
		ts.Days,
		ts.EffectiveRate,
		ts.Amount,
		ts.Description,
		ts.UpdatedAt.Format(timeLayout),
		ts.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update timesheet: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// locked between the read and the write
		return fmt.Errorf("cannot update timesheet %d: %w", ts.ID, apperrors.ErrSourceLocked)
	}

	if err := r.createAuditRecords(ctx, tx, old, ts, reason); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete removes an unlocked timesheet entry
func (r *TimesheetRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM timesheets WHERE id = ? AND invoice_id IS NULL", id)
	if err != nil {
		return fmt.Errorf("failed to delete timesheet: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("cannot delete timesheet %d: %w", id, apperrors.ErrSourceLocked)
	}
	return nil
}

// SetInvoiceLock locks entries to an invoice
func (r *TimesheetRepo) SetInvoiceLock(ctx context.Context, ids []int64, invoiceID int64) error {
	return setInvoiceLock(ctx, r.db, "timesheets", ids, invoiceID)
}

// ReleaseInvoiceLock unlocks entries held by the invoice
func (r *TimesheetRepo) ReleaseInvoiceLock(ctx context.Context, ids []int64, invoiceID int64) error {
	return releaseInvoiceLock(ctx, r.db, "timesheets", ids, invoiceID)
}

// GetHistory retrieves the audit trail for a timesheet entry, newest first
func (r *TimesheetRepo) GetHistory(ctx context.Context, id int64) ([]*domain.TimesheetHistory, error) {
	query := `
		SELECT id, timesheet_id, field_name, old_value, new_value, change_reason, changed_at
		FROM timesheet_history
		WHERE timesheet_id = ?
		ORDER BY changed_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get timesheet history: %w", err)
	}
	defer rows.Close()

	history := make([]*domain.TimesheetHistory, 0)
	for rows.Next() {
		h := &domain.TimesheetHistory{}
		var oldValue, newValue, reason sql.NullString
		var changedAt string

		err := rows.Scan(
			&h.ID,
			&h.TimesheetID,
			&h.FieldName,
			&oldValue,
			&newValue,
			&reason,
			&changedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}

		h.OldValue, h.NewValue, h.ChangeReason = oldValue.String, newValue.String, reason.String
		if h.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, fmt.Errorf("failed to parse changed_at: %w", err)
		}

		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return history, nil
}

// createAuditRecords creates history records for changed fields
func (r *TimesheetRepo) createAuditRecords(ctx context.Context, tx *sql.Tx, old, new *domain.Timesheet, reason string) error {
	changedAt := formatTime()

	changes := []struct {
		field    string
		old, new string
	}{
		{"project_id", strconv.FormatInt(old.ProjectID, 10), strconv.FormatInt(new.ProjectID, 10)},
		{"date", formatDate(old.Date), formatDate(new.Date)},
		{"hours", old.Hours.String(), new.Hours.String()},
		{"effective_rate", old.EffectiveRate.StringFixed(2), new.EffectiveRate.StringFixed(2)},
		{"amount", old.Amount.StringFixed(2), new.Amount.StringFixed(2)},
		{"description", old.Description, new.Description},
	}

	query := `
		INSERT INTO timesheet_history (timesheet_id, field_name, old_value, new_value, change_reason, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, c := range changes {
		if c.old == c.new {
			continue
		}
		if _, err := tx.ExecContext(ctx, query, new.ID, c.field, c.old, c.new, reason, changedAt); err != nil {
			return fmt.Errorf("failed to audit %s change: %w", c.field, err)
		}
	}

	return nil
}

func scanTimesheet(s rowScanner) (*domain.Timesheet, error) {
	ts := &domain.Timesheet{}
	var date, createdAt, updatedAt string
	var description sql.NullString
	var invoiceID sql.NullInt64

	err := s.Scan(
		&ts.ID,
		&ts.ProjectID,
		&date,
		&ts.Hours,
		&ts.Days,
		&ts.EffectiveRate,
		&ts.Amount,
		&description,
		&invoiceID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ts.Date, err = parseDate(date); err != nil {
		return nil, fmt.Errorf("failed to parse date: %w", err)
	}
	ts.Description = description.String
	ts.InvoiceID = scanNullInt64(invoiceID)
	if err := scanTimestamps(createdAt, updatedAt, &ts.CreatedAt, &ts.UpdatedAt); err != nil {
		return nil, err
	}

	return ts, nil
}

// applySourceFilter appends SourceFilter conditions for a source table alias
// joined to projects as p.
func applySourceFilter(query, alias string, f SourceFilter) (string, []interface{}) {
	args := make([]interface{}, 0)
	if f.ClientID != nil {
		query += " AND p.client_id = ?"
		args = append(args, *f.ClientID)
	}
	if f.ProjectID != nil {
		query += " AND " + alias + ".project_id = ?"
		args = append(args, *f.ProjectID)
	}
	if f.From != nil {
		query += " AND " + alias + ".date >= ?"
		args = append(args, formatDate(*f.From))
	}
	if f.To != nil {
		query += " AND " + alias + ".date <= ?"
		args = append(args, formatDate(*f.To))
	}
	if f.UnbilledOnly {
		query += " AND " + alias + ".invoice_id IS NULL"
	}
	return query, args
}

// setInvoiceLock is shared by the timesheet and expense tables. Locking is
// all-or-nothing inside one transaction.
func setInvoiceLock(ctx context.Context, database *db.DB, table string, ids []int64, invoiceID int64) error {
	return inLockTx(ctx, database, `
		UPDATE `+table+`
		SET invoice_id = ?, updated_at = ?
		WHERE id = ? AND (invoice_id IS NULL OR invoice_id = ?)
	`, ids, func(stmt *sql.Stmt, updateTime string, id int64) error {
		result, err := stmt.ExecContext(ctx, invoiceID, updateTime, id, invoiceID)
		if err != nil {
			return fmt.Errorf("failed to lock %s %d: %w", table, id, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected for %s %d: %w", table, id, err)
		}
		if rows == 0 {
			return fmt.Errorf("%s %d missing or locked to another invoice: %w", table, id, apperrors.ErrSourceLocked)
		}
		return nil
	})
}

// releaseInvoiceLock clears locks held by invoiceID. Rows that are gone or
// locked to another invoice are left as they are.
func releaseInvoiceLock(ctx context.Context, database *db.DB, table string, ids []int64, invoiceID int64) error {
	return inLockTx(ctx, database, `
		UPDATE `+table+`
		SET invoice_id = NULL, updated_at = ?
		WHERE id = ? AND invoice_id = ?
	`, ids, func(stmt *sql.Stmt, updateTime string, id int64) error {
		if _, err := stmt.ExecContext(ctx, updateTime, id, invoiceID); err != nil {
			return fmt.Errorf("failed to unlock %s %d: %w", table, id, err)
		}
		return nil
	})
}

func inLockTx(ctx context.Context, database *db.DB, query string, ids []int64, exec func(stmt *sql.Stmt, updateTime string, id int64) error) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	updateTime := formatTime()
	for _, id := range ids {
		if err := exec(stmt, updateTime, id); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
