package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/period"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
)

// TimesheetService records time against projects. Entries locked to an
// invoice are read-only until the invoice is unconfirmed.
type TimesheetService interface {
	Log(ctx context.Context, req LogTimeRequest) (*domain.Timesheet, error)
	Update(ctx context.Context, id int64, patch TimesheetPatch, reason string) (*domain.Timesheet, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Timesheet, error)
	List(ctx context.Context, filter repository.SourceFilter) ([]*domain.Timesheet, error)
	History(ctx context.Context, id int64) ([]*domain.TimesheetHistory, error)
}

type timesheetService struct {
	timesheetRepo repository.TimesheetRepository
	terms         TermsResolver
}

func NewTimesheetService(timesheetRepo repository.TimesheetRepository, terms TermsResolver) TimesheetService {
	return &timesheetService{timesheetRepo: timesheetRepo, terms: terms}
}

func (s *timesheetService) Log(ctx context.Context, req LogTimeRequest) (*domain.Timesheet, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	terms, err := s.terms.ResolveTerms(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	ts := domain.NewTimesheet(req.ProjectID, period.Day(req.Date), req.Hours, strings.TrimSpace(req.Description))
	ts.Price(terms.HoursPerDay, terms.EffectiveRate)

	if err := s.timesheetRepo.Create(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

func (s *timesheetService) Update(ctx context.Context, id int64, patch TimesheetPatch, reason string) (*domain.Timesheet, error) {
	if err := validateRequest(patch); err != nil {
		return nil, err
	}

	ts, err := s.timesheetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ts.IsLocked() {
		return nil, fmt.Errorf("timesheet %d: %w", id, apperrors.ErrSourceLocked)
	}

	if patch.ProjectID != nil {
		ts.ProjectID = *patch.ProjectID
	}
	if patch.Date != nil {
		ts.Date = period.Day(*patch.Date)
	}
	if patch.Hours != nil {
		ts.Hours = *patch.Hours
	}
	if patch.Description != nil {
		ts.Description = strings.TrimSpace(*patch.Description)
	}

	// re-price with the terms in force now
	terms, err := s.terms.ResolveTerms(ctx, ts.ProjectID)
	if err != nil {
		return nil, err
	}
	ts.Price(terms.HoursPerDay, terms.EffectiveRate)

	if err := s.timesheetRepo.Update(ctx, ts, reason); err != nil {
		return nil, err
	}
	return ts, nil
}

func (s *timesheetService) Delete(ctx context.Context, id int64) error {
	ts, err := s.timesheetRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ts.IsLocked() {
		return fmt.Errorf("timesheet %d: %w", id, apperrors.ErrSourceLocked)
	}
	return s.timesheetRepo.Delete(ctx, id)
}

func (s *timesheetService) Get(ctx context.Context, id int64) (*domain.Timesheet, error) {
	return s.timesheetRepo.GetByID(ctx, id)
}

func (s *timesheetService) List(ctx context.Context, filter repository.SourceFilter) ([]*domain.Timesheet, error) {
	return s.timesheetRepo.List(ctx, filter)
}

func (s *timesheetService) History(ctx context.Context, id int64) ([]*domain.TimesheetHistory, error) {
	return s.timesheetRepo.GetHistory(ctx, id)
}
