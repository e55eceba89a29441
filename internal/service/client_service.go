package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/logger"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
)

// TermsResolver resolves the effective day rate and VAT percent for a project.
type TermsResolver interface {
	ResolveTerms(ctx context.Context, projectID int64) (domain.BillingTerms, error)
}

type termsResolver struct {
	clientRepo  repository.ClientRepository
	projectRepo repository.ProjectRepository
}

func NewTermsResolver(clientRepo repository.ClientRepository, projectRepo repository.ProjectRepository) TermsResolver {
	return &termsResolver{clientRepo: clientRepo, projectRepo: projectRepo}
}

func (r *termsResolver) ResolveTerms(ctx context.Context, projectID int64) (domain.BillingTerms, error) {
	project, err := r.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return domain.BillingTerms{}, err
	}
	client, err := r.clientRepo.GetByID(ctx, project.ClientID)
	if err != nil {
		return domain.BillingTerms{}, err
	}
	return domain.ResolveTerms(client, project), nil
}

// InvoiceRemover is the part of the invoice engine that client and project
// deletion cascades into.
type InvoiceRemover interface {
	RemoveInvoicesForClient(ctx context.Context, clientID int64) error
	RemoveInvoicesForProject(ctx context.Context, projectID int64) error
}

// ClientService manages clients and their projects
type ClientService interface {
	TermsResolver

	CreateClient(ctx context.Context, client *domain.Client) error
	UpdateClient(ctx context.Context, client *domain.Client) error
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	GetClientByName(ctx context.Context, name string) (*domain.Client, error)
	ListClients(ctx context.Context, includeArchived bool) ([]*domain.Client, error)
	ArchiveClient(ctx context.Context, id int64) error

	// DeleteClient removes the client's invoices (releasing their locks),
	// then the client, its projects and their sources.
	DeleteClient(ctx context.Context, id int64) error

	CreateProject(ctx context.Context, project *domain.Project) error
	UpdateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, id int64) (*domain.Project, error)
	ListProjects(ctx context.Context, clientID int64, includeArchived bool) ([]*domain.Project, error)

	// DeleteProject removes every invoice billing the project, then the
	// project and its sources.
	DeleteProject(ctx context.Context, id int64) error
}

type clientService struct {
	TermsResolver
	clientRepo  repository.ClientRepository
	projectRepo repository.ProjectRepository
	invoices    InvoiceRemover
	log         zerolog.Logger
}

func NewClientService(
	clientRepo repository.ClientRepository,
	projectRepo repository.ProjectRepository,
	terms TermsResolver,
	invoices InvoiceRemover,
) ClientService {
	return &clientService{
		TermsResolver: terms,
		clientRepo:    clientRepo,
		projectRepo:   projectRepo,
		invoices:      invoices,
		log:           logger.WithComponent("client-service"),
	}
}

func (s *clientService) CreateClient(ctx context.Context, client *domain.Client) error {
	return s.clientRepo.Create(ctx, client)
}

func (s *clientService) UpdateClient(ctx context.Context, client *domain.Client) error {
	return s.clientRepo.Update(ctx, client)
}

func (s *clientService) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	return s.clientRepo.GetByID(ctx, id)
}

func (s *clientService) GetClientByName(ctx context.Context, name string) (*domain.Client, error) {
	return s.clientRepo.GetByName(ctx, name)
}

func (s *clientService) ListClients(ctx context.Context, includeArchived bool) ([]*domain.Client, error) {
	return s.clientRepo.List(ctx, includeArchived)
}

func (s *clientService) ArchiveClient(ctx context.Context, id int64) error {
	return s.clientRepo.Archive(ctx, id)
}

func (s *clientService) DeleteClient(ctx context.Context, id int64) error {
	if _, err := s.clientRepo.GetByID(ctx, id); err != nil {
		return err
	}

	if err := s.invoices.RemoveInvoicesForClient(ctx, id); err != nil {
		return fmt.Errorf("failed to remove invoices for client %d: %w", id, err)
	}

	if err := s.clientRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().Int64("client_id", id).Msg("client deleted")
	return nil
}

func (s *clientService) CreateProject(ctx context.Context, project *domain.Project) error {
	if _, err := s.clientRepo.GetByID(ctx, project.ClientID); err != nil {
		return err
	}
	return s.projectRepo.Create(ctx, project)
}

func (s *clientService) UpdateProject(ctx context.Context, project *domain.Project) error {
	return s.projectRepo.Update(ctx, project)
}

func (s *clientService) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	return s.projectRepo.GetByID(ctx, id)
}

func (s *clientService) ListProjects(ctx context.Context, clientID int64, includeArchived bool) ([]*domain.Project, error) {
	return s.projectRepo.ListByClient(ctx, clientID, includeArchived)
}

func (s *clientService) DeleteProject(ctx context.Context, id int64) error {
	if _, err := s.projectRepo.GetByID(ctx, id); err != nil {
		return err
	}

	if err := s.invoices.RemoveInvoicesForProject(ctx, id); err != nil {
		return fmt.Errorf("failed to remove invoices for project %d: %w", id, err)
	}

	if err := s.projectRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().Int64("project_id", id).Msg("project deleted")
	return nil
}
