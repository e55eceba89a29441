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

const projectColumns = `id, client_id, name, rate, vat_percent, vat_exempt, is_archived, created_at, updated_at`

// ProjectRepo is a SQLite implementation of ProjectRepository
type ProjectRepo struct {
	db *db.DB
}

func NewProjectRepo(database *db.DB) *ProjectRepo {
	return &ProjectRepo{db: database}
}

func (r *ProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	if err := p.Validate(); err != nil {
		return apperrors.Invalid("project", "%v", err)
	}

	query := `
		INSERT INTO projects (client_id, name, rate, vat_percent, vat_exempt, is_archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		p.ClientID,
		p.Name,
		p.Rate,
		p.VATPercent,
		p.VATExempt,
		p.IsArchived,
		p.CreatedAt.Format(timeLayout),
		p.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get project ID: %w", err)
	}

	p.ID = id
	return nil
}

func (r *ProjectRepo) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("project", id)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

func (r *ProjectRepo) ListByClient(ctx context.Context, clientID int64, includeArchived bool) ([]*domain.Project, error) {
	query := "SELECT " + projectColumns + " FROM projects WHERE client_id = ?"
	if !includeArchived {
		query += " AND is_archived = 0"
	}
	query += " ORDER BY name"

	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*domain.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

func (r *ProjectRepo) Update(ctx context.Context, p *domain.Project) error {
	if err := p.Validate(); err != nil {
		return apperrors.Invalid("project", "%v", err)
	}

	query := `
		UPDATE projects
		SET name = ?, rate = ?, vat_percent = ?, vat_exempt = ?, is_archived = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		p.Name,
		p.Rate,
		p.VATPercent,
		p.VATExempt,
		p.IsArchived,
		formatTime(),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	return expectOneRow(result, "project", p.ID)
}

func (r *ProjectRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return expectOneRow(result, "project", id)
}

func scanProject(s rowScanner) (*domain.Project, error) {
	p := &domain.Project{}
	var createdAt, updatedAt string

	err := s.Scan(
		&p.ID,
		&p.ClientID,
		&p.Name,
		&p.Rate,
		&p.VATPercent,
		&p.VATExempt,
		&p.IsArchived,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := scanTimestamps(createdAt, updatedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}
