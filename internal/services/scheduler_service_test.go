package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/config"
	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
)

func newMockScheduler(t *testing.T, tuning *config.Tuning) (*SchedulerService, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	database := &db.DB{DB: mockDB}

	taskRepo := repository.NewTaskRepository(database)
	resourceRepo := repository.NewResourceRepository(database)
	recorder := NewTransitionRecorder(repository.NewEventRepository(database), nil, nil)
	capability := NewCapabilityService(repository.NewBenchmarkRepository(database), tuning)
	planner := NewTaskPlanner(taskRepo, resourceRepo, tuning)

	svc := NewSchedulerService(
		repository.NewAgentRepository(database),
		repository.NewCampaignRepository(database),
		repository.NewAttackRepository(database),
		taskRepo,
		repository.NewHashListRepository(database),
		resourceRepo,
		capability,
		planner,
		recorder,
		nil,
		tuning,
	)
	return svc, mock, func() { mockDB.Close() }
}

func expectAgentLoad(mock sqlmock.Sqlmock, agentID uuid.UUID, agentVersion string, enabled bool) {
	now := time.Now()
	mock.ExpectQuery(`FROM agents`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows(agentColumnsList()).
			AddRow(agentID, "rig-01", "rig-01.lab", "sig-abc", "digest", "active",
				agentVersion, []byte(`{}`), now, nil, enabled, now, now))
	mock.ExpectQuery(`FROM agent_projects`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}))
}

func TestRequestTask_DisabledAgent(t *testing.T) {
	svc, mock, closeDB := newMockScheduler(t, config.DefaultTuning())
	defer closeDB()

	agentID := uuid.New()
	expectAgentLoad(mock, agentID, "1.4.2", false)

	_, err := svc.RequestTask(context.Background(), agentID)
	if !errors.Is(err, ErrAgentNotEligible) {
		t.Fatalf("got %v, want ErrAgentNotEligible", err)
	}
}

func TestRequestTask_VersionGate(t *testing.T) {
	tuning := config.DefaultTuning()
	tuning.RequiredAgentVersion = "1.x"

	svc, mock, closeDB := newMockScheduler(t, tuning)
	defer closeDB()

	agentID := uuid.New()
	expectAgentLoad(mock, agentID, "0.9.3", true)

	_, err := svc.RequestTask(context.Background(), agentID)
	if !errors.Is(err, ErrAgentNotEligible) {
		t.Fatalf("got %v, want ErrAgentNotEligible for an outdated agent", err)
	}
}

func TestRequestTask_NoBenchmarksMeansIdle(t *testing.T) {
	svc, mock, closeDB := newMockScheduler(t, config.DefaultTuning())
	defer closeDB()

	agentID := uuid.New()
	expectAgentLoad(mock, agentID, "1.4.2", true)

	mock.ExpectQuery(`FROM tasks`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	mock.ExpectQuery(`FROM agent_benchmarks`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows([]string{"hash_type_id", "speed"}))

	desc, err := svc.RequestTask(context.Background(), agentID)
	if err != nil {
		t.Fatalf("RequestTask failed: %v", err)
	}
	if desc != nil {
		t.Errorf("expected idle answer for an unmeasured agent, got %+v", desc)
	}
}

func TestRequestTask_SkipsIneligibleCampaign(t *testing.T) {
	svc, mock, closeDB := newMockScheduler(t, config.DefaultTuning())
	defer closeDB()

	agentID := uuid.New()
	projectID := uuid.New()
	campaignID := uuid.New()
	hashlistID := uuid.New()
	now := time.Now()

	expectAgentLoad(mock, agentID, "1.4.2", true)

	mock.ExpectQuery(`FROM tasks`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	// The agent only measured NTLM.
	mock.ExpectQuery(`FROM agent_benchmarks`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows([]string{"hash_type_id", "speed"}).
			AddRow(1000, int64(1_000_000)))

	mock.ExpectQuery(`FROM campaigns`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "hashlist_id", "name", "description", "status",
			"priority", "position", "created_at", "updated_at",
		}).AddRow(campaignID, projectID, hashlistID, "bcrypt batch", "", "running",
			models.CampaignPriorityRoutine, 0, now, now))

	// Its only campaign targets bcrypt, which the agent cannot size.
	mock.ExpectQuery(`FROM hashlists`).
		WithArgs(hashlistID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "name", "hash_type_id", "total_hashes",
			"cracked_hashes", "status", "error_message", "created_at", "updated_at",
		}).AddRow(hashlistID, projectID, "bcrypt dump", 3200, 100, 0, "ready", nil, now, now))

	desc, err := svc.RequestTask(context.Background(), agentID)
	if err != nil {
		t.Fatalf("RequestTask failed: %v", err)
	}
	if desc != nil {
		t.Errorf("expected idle answer when no campaign matches capability, got %+v", desc)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
