package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
)

func newMockPreemption(t *testing.T) (*PreemptionService, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	database := &db.DB{DB: mockDB}
	recorder := NewTransitionRecorder(repository.NewEventRepository(database), nil, nil)
	svc := NewPreemptionService(repository.NewCampaignRepository(database), recorder)
	return svc, mock, func() { mockDB.Close() }
}

func preemptionCampaignColumns() []string {
	return []string{
		"id", "project_id", "hashlist_id", "name", "description", "status",
		"priority", "position", "created_at", "updated_at",
	}
}

func expectEventInsert(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`INSERT INTO transition_events`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(int64(1), time.Now()))
}

func TestOnCampaignActivated_PausesLowerTiers(t *testing.T) {
	svc, mock, closeDB := newMockPreemption(t)
	defer closeDB()

	projectID := uuid.New()
	hashlistID := uuid.New()
	entrant := &models.Campaign{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      "urgent breach response",
		Status:    models.CampaignStatusRunning,
		Priority:  models.CampaignPriorityUrgent,
	}
	victim1 := uuid.New()
	victim2 := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`priority <`).
		WithArgs(projectID, models.CampaignPriorityUrgent).
		WillReturnRows(sqlmock.NewRows(preemptionCampaignColumns()).
			AddRow(victim1, projectID, hashlistID, "deferred audit", "", "running",
				models.CampaignPriorityDeferred, 0, now, now).
			AddRow(victim2, projectID, hashlistID, "routine sweep", "", "running",
				models.CampaignPriorityRoutine, 0, now, now))

	// First victim pauses cleanly and gets a transition event.
	mock.ExpectExec(`UPDATE campaigns SET status`).
		WithArgs(victim1, models.CampaignStatusRunning, models.CampaignStatusPaused).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectEventInsert(mock)

	// Second victim moved concurrently; no event, no error, pass continues.
	mock.ExpectExec(`UPDATE campaigns SET status`).
		WithArgs(victim2, models.CampaignStatusRunning, models.CampaignStatusPaused).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := svc.OnCampaignActivated(context.Background(), entrant); err != nil {
		t.Fatalf("OnCampaignActivated failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestOnCampaignActivated_EqualTierCoexists(t *testing.T) {
	svc, mock, closeDB := newMockPreemption(t)
	defer closeDB()

	projectID := uuid.New()
	entrant := &models.Campaign{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      "second routine sweep",
		Status:    models.CampaignStatusRunning,
		Priority:  models.CampaignPriorityRoutine,
	}

	// Running campaigns at the same tier are outside the preemption query,
	// so nothing is paused and no transitions are attempted.
	mock.ExpectQuery(`priority <`).
		WithArgs(projectID, models.CampaignPriorityRoutine).
		WillReturnRows(sqlmock.NewRows(preemptionCampaignColumns()))

	if err := svc.OnCampaignActivated(context.Background(), entrant); err != nil {
		t.Fatalf("OnCampaignActivated failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestOnCampaignSettled_ResumesHighestFirst(t *testing.T) {
	svc, mock, closeDB := newMockPreemption(t)
	defer closeDB()

	projectID := uuid.New()
	hashlistID := uuid.New()
	pausedHigh := uuid.New()
	pausedRoutine := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`status = 'paused'`).
		WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows(preemptionCampaignColumns()).
			AddRow(pausedHigh, projectID, hashlistID, "high recovery", "", "paused",
				models.CampaignPriorityHigh, 0, now, now).
			AddRow(pausedRoutine, projectID, hashlistID, "routine sweep", "", "paused",
				models.CampaignPriorityRoutine, 0, now, now))

	// High tier sees nothing above it and resumes.
	mock.ExpectQuery(`priority >`).
		WithArgs(projectID, models.CampaignPriorityHigh).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE campaigns SET status`).
		WithArgs(pausedHigh, models.CampaignStatusPaused, models.CampaignStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectEventInsert(mock)

	// The resumed campaign re-asserts preemption over lower tiers.
	mock.ExpectQuery(`priority <`).
		WithArgs(projectID, models.CampaignPriorityHigh).
		WillReturnRows(sqlmock.NewRows(preemptionCampaignColumns()))

	// Routine tier now has a running campaign above it and stays paused.
	mock.ExpectQuery(`priority >`).
		WithArgs(projectID, models.CampaignPriorityRoutine).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	if err := svc.OnCampaignSettled(context.Background(), projectID); err != nil {
		t.Fatalf("OnCampaignSettled failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
