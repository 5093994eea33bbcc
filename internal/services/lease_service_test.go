package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/config"
	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
)

func newMockLease(t *testing.T) (*LeaseService, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	database := &db.DB{DB: mockDB}
	tuning := config.DefaultTuning()
	recorder := NewTransitionRecorder(repository.NewEventRepository(database), nil, nil)
	capability := NewCapabilityService(repository.NewBenchmarkRepository(database), tuning)

	svc := NewLeaseService(
		repository.NewAgentRepository(database),
		repository.NewTaskRepository(database),
		repository.NewAttackRepository(database),
		repository.NewCampaignRepository(database),
		capability,
		recorder,
		tuning,
	)
	return svc, mock, func() { mockDB.Close() }
}

func leaseTaskColumns() []string {
	return []string{
		"id", "attack_id", "agent_id", "status", "keyspace_skip", "keyspace_limit",
		"progress_keyspace", "claimed_at", "expires_at", "last_heartbeat_at",
		"retry_count", "stale", "error_message", "created_at", "updated_at",
	}
}

func leaseAttackColumns() []string {
	return []string{
		"id", "campaign_id", "name", "attack_mode", "hash_type_id", "status",
		"position", "wordlist_id", "rulelist_id", "masklist_id", "mask",
		"increment_mode", "increment_minimum", "increment_maximum",
		"custom_charset_1", "custom_charset_2", "custom_charset_3",
		"custom_charset_4", "total_keyspace", "complexity_score", "comment",
		"created_at", "updated_at",
	}
}

func TestSweep_SilencesAndReclaims(t *testing.T) {
	svc, mock, closeDB := newMockLease(t)
	defer closeDB()

	silentAgent := uuid.New()
	expiredTask := uuid.New()
	attackID := uuid.New()
	now := time.Now()

	// Silence detection runs first.
	mock.ExpectQuery(`status = 'disconnected'`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow(silentAgent, "active"))
	expectEventInsert(mock)

	// Then the expired claim returns to pending, stale, progress intact.
	mock.ExpectQuery(`UPDATE tasks SET`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(leaseTaskColumns()).
			AddRow(expiredTask, attackID, silentAgent, "pending", int64(0), int64(1000),
				int64(400), nil, nil, nil, 0, true, nil, now, now))
	expectEventInsert(mock)

	svc.Sweep(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestHeartbeat_RenewsAndAdvises(t *testing.T) {
	svc, mock, closeDB := newMockLease(t)
	defer closeDB()

	agentID := uuid.New()
	taskID := uuid.New()
	attackID := uuid.New()
	campaignID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM agents`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows(agentColumnsList()).
			AddRow(agentID, "rig-01", "rig-01.lab", "sig-abc", "digest", "active",
				"1.4.2", []byte(`{}`), now, nil, true, now, now))
	mock.ExpectQuery(`FROM agent_projects`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}))

	mock.ExpectExec(`UPDATE agents SET last_seen_at`).
		WithArgs(agentID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`UPDATE tasks SET`).
		WithArgs(agentID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(taskID))

	// The held task's attack was paused by an operator.
	mock.ExpectQuery(`FROM tasks`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows(leaseTaskColumns()).
			AddRow(taskID, attackID, agentID, "running", int64(0), int64(1000),
				int64(100), now, now.Add(time.Minute), now, 0, false, nil, now, now))
	mock.ExpectQuery(`FROM attacks`).
		WithArgs(attackID).
		WillReturnRows(sqlmock.NewRows(leaseAttackColumns()).
			AddRow(attackID, campaignID, "dict pass", 0, 1000, "paused", 0,
				nil, nil, nil, "", false, 0, 0, "", "", "", "", int64(100000), 1, "",
				now, now))

	mock.ExpectQuery(`FROM agent_benchmarks`).
		WithArgs(agentID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	ack, err := svc.Heartbeat(context.Background(), agentID)
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	if len(ack.RenewedTaskIDs) != 1 || ack.RenewedTaskIDs[0] != taskID {
		t.Errorf("renewed = %v, want [%s]", ack.RenewedTaskIDs, taskID)
	}
	if len(ack.Advisories) != 1 {
		t.Fatalf("expected 1 advisory, got %d", len(ack.Advisories))
	}
	if ack.Advisories[0].Action != "pause" {
		t.Errorf("advisory action = %q, want pause", ack.Advisories[0].Action)
	}
	if !ack.NeedsBenchmark {
		t.Error("zero fresh benchmarks must set needs_benchmark")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestHeartbeat_RestoresDisconnectedAgent(t *testing.T) {
	svc, mock, closeDB := newMockLease(t)
	defer closeDB()

	agentID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM agents`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows(agentColumnsList()).
			AddRow(agentID, "rig-01", "rig-01.lab", "sig-abc", "digest", "disconnected",
				"1.4.2", []byte(`{}`), now, nil, true, now, now))
	mock.ExpectQuery(`FROM agent_projects`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}))

	mock.ExpectExec(`UPDATE agents SET last_seen_at`).
		WithArgs(agentID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// disconnected -> reconnecting -> active, one event each.
	mock.ExpectExec(`UPDATE agents SET status`).
		WithArgs(agentID, "disconnected", "reconnecting").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectEventInsert(mock)
	mock.ExpectExec(`UPDATE agents SET status`).
		WithArgs(agentID, "reconnecting", "active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectEventInsert(mock)

	mock.ExpectQuery(`UPDATE tasks SET`).
		WithArgs(agentID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	mock.ExpectQuery(`FROM tasks`).
		WithArgs(agentID).
		WillReturnRows(sqlmock.NewRows(leaseTaskColumns()))

	mock.ExpectQuery(`FROM agent_benchmarks`).
		WithArgs(agentID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	ack, err := svc.Heartbeat(context.Background(), agentID)
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if len(ack.RenewedTaskIDs) != 0 {
		t.Errorf("renewed = %v, want none", ack.RenewedTaskIDs)
	}
	if ack.NeedsBenchmark {
		t.Error("fresh benchmarks present, needs_benchmark must be false")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
