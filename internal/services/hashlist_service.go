package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

const (
	// ingestBatchSize is how many parsed lines are inserted per statement
	ingestBatchSize = 5000

	// maxHashLineLength bounds a single ingest line. Anything longer is
	// counted invalid rather than aborting the whole upload.
	maxHashLineLength = 4096

	defaultItemPageSize = 100
	maxItemPageSize     = 1000
)

// HashListService owns hashlist ingest and the uploading, processing,
// ready, error status walk. Campaigns only launch against ready lists.
type HashListService struct {
	projectRepo  *repository.ProjectRepository
	hashlistRepo *repository.HashListRepository
	hashItemRepo *repository.HashItemRepository
	campaignRepo *repository.CampaignRepository
}

// NewHashListService creates a new hashlist service
func NewHashListService(
	projectRepo *repository.ProjectRepository,
	hashlistRepo *repository.HashListRepository,
	hashItemRepo *repository.HashItemRepository,
	campaignRepo *repository.CampaignRepository,
) *HashListService {
	return &HashListService{
		projectRepo:  projectRepo,
		hashlistRepo: hashlistRepo,
		hashItemRepo: hashItemRepo,
		campaignRepo: campaignRepo,
	}
}

// Create registers an empty hashlist in uploading state
func (s *HashListService) Create(ctx context.Context, hashlist *models.HashList) error {
	if hashlist.Name == "" {
		return fmt.Errorf("hashlist name is required")
	}
	ht, ok := models.HashTypeByID(hashlist.HashTypeID)
	if !ok {
		return fmt.Errorf("unknown hash type %d", hashlist.HashTypeID)
	}
	if !ht.IsEnabled {
		return fmt.Errorf("hash type %d (%s) is disabled", ht.ID, ht.Name)
	}
	if _, err := s.projectRepo.GetByID(ctx, hashlist.ProjectID); err != nil {
		return err
	}

	if err := s.hashlistRepo.Create(ctx, hashlist); err != nil {
		return err
	}

	debug.Log("Hashlist created", map[string]interface{}{
		"hashlist_id":  hashlist.ID,
		"project_id":   hashlist.ProjectID,
		"hash_type_id": hashlist.HashTypeID,
	})
	return nil
}

// Ingest reads hash lines from r into the hashlist and walks it to ready.
// Each line is a hash value, optionally followed by a colon and salt.
// Blank lines and lines starting with # are skipped; malformed lines are
// counted invalid without failing the upload. A list that previously
// failed may be re-ingested.
func (s *HashListService) Ingest(ctx context.Context, hashlistID uuid.UUID, r io.Reader) (*models.HashListIngestResult, error) {
	hashlist, err := s.hashlistRepo.GetByID(ctx, hashlistID)
	if err != nil {
		return nil, err
	}

	switch hashlist.Status {
	case models.HashListStatusUploading, models.HashListStatusError:
	case models.HashListStatusProcessing:
		return nil, fmt.Errorf("hashlist %s ingest already in progress", hashlistID)
	default:
		return nil, fmt.Errorf("hashlist %s is %s, expected uploading", hashlistID, hashlist.Status)
	}

	if err := s.hashlistRepo.SetStatus(ctx, hashlistID, models.HashListStatusProcessing, nil); err != nil {
		return nil, err
	}

	result, err := s.ingestLines(ctx, hashlistID, r)
	if err != nil {
		msg := err.Error()
		if setErr := s.hashlistRepo.SetStatus(ctx, hashlistID, models.HashListStatusError, &msg); setErr != nil {
			debug.Error("Failed to mark hashlist %s errored: %v", hashlistID, setErr)
		}
		return nil, err
	}

	if _, err := s.hashlistRepo.RefreshCounts(ctx, hashlistID); err != nil {
		return nil, err
	}
	if err := s.hashlistRepo.SetStatus(ctx, hashlistID, models.HashListStatusReady, nil); err != nil {
		return nil, err
	}

	debug.Log("Hashlist ingested", map[string]interface{}{
		"hashlist_id": hashlistID,
		"received":    result.Received,
		"inserted":    result.Inserted,
		"duplicates":  result.Duplicates,
		"invalid":     result.Invalid,
	})
	return result, nil
}

func (s *HashListService) ingestLines(ctx context.Context, hashlistID uuid.UUID, r io.Reader) (*models.HashListIngestResult, error) {
	scanner := bufio.NewScanner(r)
	// The buffer cap exceeds maxHashLineLength so oversized lines surface
	// as invalid entries instead of aborting the scan.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	result := &models.HashListIngestResult{}
	seen := make(map[string]struct{})
	batch := make([]models.HashItem, 0, ingestBatchSize)
	lineNumber := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, err := s.hashItemRepo.InsertBatch(ctx, hashlistID, batch)
		if err != nil {
			return fmt.Errorf("insert failed near line %d: %w", lineNumber, err)
		}
		result.Inserted += int(inserted)
		// Rows the insert skipped were already present from an earlier
		// upload of the same list.
		result.Duplicates += len(batch) - int(inserted)
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		result.Received++

		value, salt, ok := parseHashLine(line)
		if !ok {
			result.Invalid++
			continue
		}
		if _, dup := seen[value]; dup {
			result.Duplicates++
			continue
		}
		seen[value] = struct{}{}

		item := models.HashItem{HashValue: value}
		if salt != "" {
			item.Salt = &salt
		}
		batch = append(batch, item)

		if len(batch) >= ingestBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		if lineNumber%100000 == 0 {
			debug.Info("Hashlist %s: parsed %d lines", hashlistID, lineNumber)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read failed near line %d: %w", lineNumber, err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if result.Inserted == 0 && result.Duplicates == 0 {
		return nil, fmt.Errorf("no valid hashes in upload (%d lines, %d invalid)", result.Received, result.Invalid)
	}

	return result, nil
}

// parseHashLine splits one ingest line into hash value and optional salt.
// The salt keeps any further colons verbatim.
func parseHashLine(line string) (value, salt string, ok bool) {
	if len(line) > maxHashLineLength {
		return "", "", false
	}
	value = line
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		value = line[:idx]
		salt = line[idx+1:]
	}
	if value == "" || strings.ContainsAny(value, " \t") {
		return "", "", false
	}
	return value, salt, true
}

// Get returns one hashlist with its counters
func (s *HashListService) Get(ctx context.Context, id uuid.UUID) (*models.HashList, error) {
	return s.hashlistRepo.GetByID(ctx, id)
}

// ListByProject returns a project's hashlists, newest first
func (s *HashListService) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.HashList, error) {
	if _, err := s.projectRepo.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.hashlistRepo.ListByProject(ctx, projectID)
}

// Items returns a page of a hashlist's entries
func (s *HashListService) Items(ctx context.Context, hashlistID uuid.UUID, limit, offset int) ([]models.HashItem, error) {
	if limit <= 0 {
		limit = defaultItemPageSize
	}
	if limit > maxItemPageSize {
		limit = maxItemPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.hashItemRepo.ListByHashList(ctx, hashlistID, limit, offset)
}

// Delete removes a hashlist and its items. Lists still referenced by a
// campaign are refused; the campaigns must be deleted first.
func (s *HashListService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.hashlistRepo.GetByID(ctx, id); err != nil {
		return err
	}

	active, err := s.campaignRepo.ListActiveByHashList(ctx, id)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return fmt.Errorf("hashlist %s is used by %d active campaigns", id, len(active))
	}

	if err := s.hashlistRepo.Delete(ctx, id); err != nil {
		return err
	}

	debug.Log("Hashlist deleted", map[string]interface{}{
		"hashlist_id": id,
	})
	return nil
}
