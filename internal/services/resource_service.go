package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ZerkerEOD/hashfleet/internal/config"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/internal/storage"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// foreignKeyViolation is the Postgres error code raised when an attack
// still references a resource being deleted
const foreignKeyViolation = "23503"

// ResourceUpload is the response to a catalog registration: the created
// entry plus a presigned PUT URL the caller streams the file to.
type ResourceUpload struct {
	Resource  *models.Resource `json:"resource"`
	UploadURL string           `json:"upload_url"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// ResourceService manages the attack resource catalog. Files live in
// object storage; the coordinator records metadata and hands out
// short-lived presigned URLs in both directions. It backs the scheduler's
// resource resolution when assignments are built.
type ResourceService struct {
	resourceRepo *repository.ResourceRepository
	projectRepo  *repository.ProjectRepository
	store        *storage.S3Store
	tuning       *config.Tuning
}

// NewResourceService creates a new resource service. The store may be nil
// when no object storage is configured; registration and handles then
// fail with a clear error while the rest of the coordinator runs.
func NewResourceService(
	resourceRepo *repository.ResourceRepository,
	projectRepo *repository.ProjectRepository,
	store *storage.S3Store,
	tuning *config.Tuning,
) *ResourceService {
	return &ResourceService{
		resourceRepo: resourceRepo,
		projectRepo:  projectRepo,
		store:        store,
		tuning:       tuning,
	}
}

// Register creates a catalog entry and returns a presigned upload URL.
// The entry is unusable by attacks until Finalize records the uploaded
// object's hash.
func (s *ResourceService) Register(ctx context.Context, resource *models.Resource) (*ResourceUpload, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no resource store configured")
	}
	if resource.Name == "" {
		return nil, fmt.Errorf("resource name is required")
	}
	if strings.ContainsAny(resource.Name, "/\\") {
		return nil, fmt.Errorf("resource name must not contain path separators")
	}
	if !resource.Type.IsValid() {
		return nil, fmt.Errorf("unknown resource type %q", resource.Type)
	}
	if resource.ProjectID != nil {
		if _, err := s.projectRepo.GetByID(ctx, *resource.ProjectID); err != nil {
			return nil, err
		}
	}
	if resource.ContentType == "" {
		resource.ContentType = "application/octet-stream"
	}

	resource.ID = uuid.New()
	resource.FilePath = fmt.Sprintf("resources/%s/%s/%s", resource.Type, resource.ID, resource.Name)
	resource.FileHash = ""
	resource.FileSize = 0

	if err := s.resourceRepo.Create(ctx, resource); err != nil {
		return nil, err
	}

	ttl := s.tuning.ResourceHandleTTL()
	uploadURL, err := s.store.PresignUpload(ctx, resource.FilePath, resource.ContentType, ttl)
	if err != nil {
		return nil, err
	}

	debug.Log("Resource registered", map[string]interface{}{
		"resource_id": resource.ID,
		"type":        resource.Type,
		"name":        resource.Name,
	})
	return &ResourceUpload{
		Resource:  resource,
		UploadURL: uploadURL,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// Finalize records the uploaded object's sha256 and line count, making
// the resource usable by attacks. The stored object's size is read back
// from the store, so a finalize against a missing upload fails.
func (s *ResourceService) Finalize(ctx context.Context, id uuid.UUID, fileHash string, lineCount *int64) (*models.Resource, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no resource store configured")
	}

	resource, err := s.resourceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, err := hex.DecodeString(fileHash); err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("file hash must be a hex sha256 digest")
	}
	if lineCount != nil && *lineCount < 0 {
		return nil, fmt.Errorf("line count must not be negative")
	}

	size, err := s.store.ObjectSize(ctx, resource.FilePath)
	if err != nil {
		return nil, fmt.Errorf("resource %s upload not found: %w", id, err)
	}

	if err := s.resourceRepo.UpdateFileMetadata(ctx, id, strings.ToLower(fileHash), size, lineCount); err != nil {
		return nil, err
	}

	debug.Log("Resource finalized", map[string]interface{}{
		"resource_id": id,
		"file_size":   size,
	})
	return s.resourceRepo.GetByID(ctx, id)
}

// HandleFor presigns a download URL for one resource. This is what the
// scheduler calls while building an assignment.
func (s *ResourceService) HandleFor(ctx context.Context, resource *models.Resource) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("no resource store configured")
	}
	return s.store.PresignDownload(ctx, resource.FilePath, s.tuning.ResourceHandleTTL())
}

// Handle issues a fetch handle for an agent re-requesting a resource,
// typically after the URL embedded in its assignment expired mid-download.
func (s *ResourceService) Handle(ctx context.Context, resourceID uuid.UUID) (*models.FetchHandle, error) {
	resource, err := s.resourceRepo.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.FileHash == "" {
		return nil, fmt.Errorf("resource %s has not been finalized", resourceID)
	}

	url, err := s.HandleFor(ctx, resource)
	if err != nil {
		return nil, err
	}

	return &models.FetchHandle{
		ResourceID: resource.ID,
		URL:        url,
		FileHash:   resource.FileHash,
		FileSize:   resource.FileSize,
		ExpiresAt:  time.Now().Add(s.tuning.ResourceHandleTTL()),
	}, nil
}

// Get returns one catalog entry
func (s *ResourceService) Get(ctx context.Context, id uuid.UUID) (*models.Resource, error) {
	return s.resourceRepo.GetByID(ctx, id)
}

// ListByType returns entries of one type visible to a project
func (s *ResourceService) ListByType(ctx context.Context, resourceType models.ResourceType, projectID uuid.UUID) ([]models.Resource, error) {
	if !resourceType.IsValid() {
		return nil, fmt.Errorf("unknown resource type %q", resourceType)
	}
	return s.resourceRepo.ListByType(ctx, resourceType, projectID)
}

// Delete removes a catalog entry and its stored object. Entries still
// referenced by an attack are refused.
func (s *ResourceService) Delete(ctx context.Context, id uuid.UUID) error {
	resource, err := s.resourceRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.resourceRepo.Delete(ctx, id); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return fmt.Errorf("resource %s is referenced by attacks", id)
		}
		return err
	}

	if s.store != nil {
		if err := s.store.DeleteObject(ctx, resource.FilePath); err != nil {
			debug.Warning("Failed to delete stored object for resource %s: %v", id, err)
		}
	}

	debug.Log("Resource deleted", map[string]interface{}{
		"resource_id": id,
	})
	return nil
}
