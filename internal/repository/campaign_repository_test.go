package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
)

func newMockCampaignRepo(t *testing.T) (*CampaignRepository, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	repo := NewCampaignRepository(&db.DB{DB: mockDB})
	return repo, mock, func() { mockDB.Close() }
}

func campaignColumnsList() []string {
	return []string{
		"id", "project_id", "hashlist_id", "name", "description", "status",
		"priority", "position", "created_at", "updated_at",
	}
}

func TestListPreemptible_StrictlyLowerOnly(t *testing.T) {
	repo, mock, closeDB := newMockCampaignRepo(t)
	defer closeDB()

	projectID := uuid.New()
	victimID := uuid.New()
	hashlistID := uuid.New()
	now := time.Now()

	// The query itself excludes equal tiers: only running campaigns with
	// priority strictly below the entrant come back.
	mock.ExpectQuery(`status = 'running' AND priority <`).
		WithArgs(projectID, models.CampaignPriorityHigh).
		WillReturnRows(sqlmock.NewRows(campaignColumnsList()).
			AddRow(victimID, projectID, hashlistID, "routine sweep", "", "running",
				models.CampaignPriorityRoutine, 0, now, now))

	victims, err := repo.ListPreemptible(context.Background(), projectID, models.CampaignPriorityHigh)
	if err != nil {
		t.Fatalf("ListPreemptible failed: %v", err)
	}
	if len(victims) != 1 {
		t.Fatalf("expected 1 victim, got %d", len(victims))
	}
	if victims[0].Priority >= models.CampaignPriorityHigh {
		t.Errorf("victim priority %d is not strictly below %d", victims[0].Priority, models.CampaignPriorityHigh)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCountRunningAbovePriority(t *testing.T) {
	repo, mock, closeDB := newMockCampaignRepo(t)
	defer closeDB()

	projectID := uuid.New()

	mock.ExpectQuery(`status = 'running' AND priority >`).
		WithArgs(projectID, models.CampaignPriorityRoutine).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountRunningAbovePriority(context.Background(), projectID, models.CampaignPriorityRoutine)
	if err != nil {
		t.Fatalf("CountRunningAbovePriority failed: %v", err)
	}
	if count != 2 {
		t.Errorf("got %d, want 2", count)
	}
}

func TestCampaignTransitionStatus_Conflict(t *testing.T) {
	repo, mock, closeDB := newMockCampaignRepo(t)
	defer closeDB()

	campaignID := uuid.New()

	// Guarded update matches nothing when the row moved under us.
	mock.ExpectExec(`UPDATE campaigns SET status`).
		WithArgs(campaignID, models.CampaignStatusRunning, models.CampaignStatusPaused).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.TransitionStatus(context.Background(), campaignID, models.CampaignStatusRunning, models.CampaignStatusPaused)
	if !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("got %v, want ErrTransitionConflict", err)
	}
}

func TestCampaignGetByID_NotFound(t *testing.T) {
	repo, mock, closeDB := newMockCampaignRepo(t)
	defer closeDB()

	campaignID := uuid.New()

	mock.ExpectQuery(`SELECT`).
		WithArgs(campaignID).
		WillReturnRows(sqlmock.NewRows(campaignColumnsList()))

	_, err := repo.GetByID(context.Background(), campaignID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
