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

const expenseColumns = `e.id, e.project_id, e.date, e.description, e.amount, e.vat_amount, e.vat_percent,
	e.invoice_id, e.created_at, e.updated_at`

// ExpenseRepo is a SQLite implementation of ExpenseRepository
type ExpenseRepo struct {
	db *db.DB
}

func NewExpenseRepo(database *db.DB) *ExpenseRepo {
	return &ExpenseRepo{db: database}
}

func (r *ExpenseRepo) Create(ctx context.Context, e *domain.Expense) error {
	if err := e.Validate(); err != nil {
		return apperrors.Invalid("expense", "%v", err)
	}

	query := `
		INSERT INTO expenses (project_id, date, description, amount, vat_amount, vat_percent,
			invoice_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		e.ProjectID,
		formatDate(e.Date),
		e.Description,
		e.Amount,
		e.VATAmount,
		e.VATPercent,
		nullInt64(e.InvoiceID),
		e.CreatedAt.Format(timeLayout),
		e.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get expense ID: %w", err)
	}

	e.ID = id
	return nil
}

func (r *ExpenseRepo) GetByID(ctx context.Context, id int64) (*domain.Expense, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+expenseColumns+" FROM expenses e WHERE e.id = ?", id)
	e, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("expense", id)
		}
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return e, nil
}

func (r *ExpenseRepo) FindManyByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Expense, error) {
	found := make(map[int64]*domain.Expense, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	in, args := inClause(ids)
	rows, err := r.db.QueryContext(ctx, "SELECT "+expenseColumns+" FROM expenses e WHERE e.id IN "+in, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find expenses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		found[e.ID] = e
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}

	return found, nil
}

func (r *ExpenseRepo) List(ctx context.Context, filter SourceFilter) ([]*domain.Expense, error) {
	query := "SELECT " + expenseColumns + " FROM expenses e JOIN projects p ON p.id = e.project_id WHERE 1 = 1"
	query, args := applySourceFilter(query, "e", filter)
	query += " ORDER BY e.date, e.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]*domain.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}

	return expenses, nil
}

func (r *ExpenseRepo) Update(ctx context.Context, e *domain.Expense) error {
	if err := e.Validate(); err != nil {
		return apperrors.Invalid("expense", "%v", err)
	}

	query := `
		UPDATE expenses
		SET project_id = ?, date = ?, description = ?, amount = ?, vat_amount = ?, vat_percent = ?, updated_at = ?
		WHERE id = ? AND invoice_id IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		e.ProjectID,
		formatDate(e.Date),
		e.Description,
		e.Amount,
		e.VATAmount,
		e.VATPercent,
		formatTime(),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}

	return r.checkLockedWrite(ctx, result, "update", e.ID)
}

func (r *ExpenseRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND invoice_id IS NULL", id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return r.checkLockedWrite(ctx, result, "delete", id)
}

func (r *ExpenseRepo) SetInvoiceLock(ctx context.Context, ids []int64, invoiceID int64) error {
	return setInvoiceLock(ctx, r.db, "expenses", ids, invoiceID)
}

func (r *ExpenseRepo) ReleaseInvoiceLock(ctx context.Context, ids []int64, invoiceID int64) error {
	return releaseInvoiceLock(ctx, r.db, "expenses", ids, invoiceID)
}

// checkLockedWrite tells a missing expense apart from a locked one
func (r *ExpenseRepo) checkLockedWrite(ctx context.Context, result sql.Result, op string, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("cannot %s expense %d: %w", op, id, apperrors.ErrSourceLocked)
}

func scanExpense(s rowScanner) (*domain.Expense, error) {
	e := &domain.Expense{}
	var date, createdAt, updatedAt string
	var description sql.NullString
	var invoiceID sql.NullInt64

	err := s.Scan(
		&e.ID,
		&e.ProjectID,
		&date,
		&description,
		&e.Amount,
		&e.VATAmount,
		&e.VATPercent,
		&invoiceID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if e.Date, err = parseDate(date); err != nil {
		return nil, fmt.Errorf("failed to parse date: %w", err)
	}
	e.Description = description.String
	e.InvoiceID = scanNullInt64(invoiceID)
	if err := scanTimestamps(createdAt, updatedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}

	return e, nil
}
