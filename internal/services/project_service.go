package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
)

// ProjectService manages the tenant boundary. Projects are deliberately
// thin records; the interesting guards live on delete, since the schema
// cascades a project removal through everything scoped under it.
type ProjectService struct {
	projectRepo  *repository.ProjectRepository
	campaignRepo *repository.CampaignRepository
}

// NewProjectService creates a new project service
func NewProjectService(
	projectRepo *repository.ProjectRepository,
	campaignRepo *repository.CampaignRepository,
) *ProjectService {
	return &ProjectService{
		projectRepo:  projectRepo,
		campaignRepo: campaignRepo,
	}
}

// Create persists a new project
func (s *ProjectService) Create(ctx context.Context, project *models.Project) error {
	if project.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	return s.projectRepo.Create(ctx, project)
}

// Get returns a project by ID
func (s *ProjectService) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return s.projectRepo.GetByID(ctx, id)
}

// List returns all projects
func (s *ProjectService) List(ctx context.Context) ([]models.Project, error) {
	return s.projectRepo.List(ctx)
}

// Update persists name and description changes
func (s *ProjectService) Update(ctx context.Context, project *models.Project) error {
	if project.Name == "" {
		return fmt.Errorf("project name is required")
	}
	return s.projectRepo.Update(ctx, project)
}

// Delete removes a project and, via cascade, everything scoped under it.
// Refused while any campaign in the project is still unfinished; finished
// campaigns and their results go down with the project.
func (s *ProjectService) Delete(ctx context.Context, id uuid.UUID) error {
	campaigns, err := s.campaignRepo.ListByProject(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list campaigns for project %s: %w", id, err)
	}
	for i := range campaigns {
		if !campaigns[i].Status.IsFinished() {
			return fmt.Errorf("project %s has campaign %s in state %s, finish or abandon it first",
				id, campaigns[i].ID, campaigns[i].Status)
		}
	}
	return s.projectRepo.Delete(ctx, id)
}
