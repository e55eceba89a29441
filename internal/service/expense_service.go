package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/period"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
)

// ExpenseService records rechargeable expenses against projects.
type ExpenseService interface {
	Create(ctx context.Context, req ExpenseRequest) (*domain.Expense, error)
	Update(ctx context.Context, id int64, req ExpenseRequest) (*domain.Expense, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Expense, error)
	List(ctx context.Context, filter repository.SourceFilter) ([]*domain.Expense, error)
}

type expenseService struct {
	expenseRepo repository.ExpenseRepository
	projectRepo repository.ProjectRepository
}

func NewExpenseService(expenseRepo repository.ExpenseRepository, projectRepo repository.ProjectRepository) ExpenseService {
	return &expenseService{expenseRepo: expenseRepo, projectRepo: projectRepo}
}

func (s *expenseService) Create(ctx context.Context, req ExpenseRequest) (*domain.Expense, error) {
	if err := s.check(ctx, req); err != nil {
		return nil, err
	}

	e := domain.NewExpense(req.ProjectID, period.Day(req.Date), strings.TrimSpace(req.Description), req.Amount)
	applyExpenseVAT(e, req)

	if err := s.expenseRepo.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *expenseService) Update(ctx context.Context, id int64, req ExpenseRequest) (*domain.Expense, error) {
	if err := s.check(ctx, req); err != nil {
		return nil, err
	}

	e, err := s.expenseRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.IsLocked() {
		return nil, fmt.Errorf("expense %d: %w", id, apperrors.ErrSourceLocked)
	}

	e.ProjectID = req.ProjectID
	e.Date = period.Day(req.Date)
	e.Description = strings.TrimSpace(req.Description)
	e.Amount = req.Amount
	applyExpenseVAT(e, req)

	if err := s.expenseRepo.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *expenseService) Delete(ctx context.Context, id int64) error {
	e, err := s.expenseRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if e.IsLocked() {
		return fmt.Errorf("expense %d: %w", id, apperrors.ErrSourceLocked)
	}
	return s.expenseRepo.Delete(ctx, id)
}

func (s *expenseService) Get(ctx context.Context, id int64) (*domain.Expense, error) {
	return s.expenseRepo.GetByID(ctx, id)
}

func (s *expenseService) List(ctx context.Context, filter repository.SourceFilter) ([]*domain.Expense, error) {
	return s.expenseRepo.List(ctx, filter)
}

func (s *expenseService) check(ctx context.Context, req ExpenseRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	if req.Date.IsZero() {
		return apperrors.Invalid("date", "is required")
	}
	if !req.Amount.IsPositive() {
		return apperrors.Invalid("amount", "must be greater than 0")
	}
	_, err := s.projectRepo.GetByID(ctx, req.ProjectID)
	return err
}

// applyExpenseVAT sets the VAT included in the gross amount. Without an
// explicit amount it is derived from the percent: gross * p / (100 + p).
func applyExpenseVAT(e *domain.Expense, req ExpenseRequest) {
	e.VATPercent = req.VATPercent
	switch {
	case req.VATAmount != nil:
		e.VATAmount = domain.Round2(*req.VATAmount)
	case req.VATPercent.Valid:
		p := req.VATPercent.Decimal
		e.VATAmount = domain.Round2(e.Amount.Mul(p).Div(p.Add(decimal.NewFromInt(100))))
	default:
		e.VATAmount = decimal.Zero
	}
}
