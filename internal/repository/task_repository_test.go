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

func newMockTaskRepo(t *testing.T) (*TaskRepository, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	repo := NewTaskRepository(&db.DB{DB: mockDB})
	return repo, mock, func() { mockDB.Close() }
}

func taskColumnsList() []string {
	return []string{
		"id", "attack_id", "agent_id", "status", "keyspace_skip", "keyspace_limit",
		"progress_keyspace", "claimed_at", "expires_at", "last_heartbeat_at",
		"retry_count", "stale", "error_message", "created_at", "updated_at",
	}
}

func TestClaim_Success(t *testing.T) {
	repo, mock, closeDB := newMockTaskRepo(t)
	defer closeDB()

	taskID := uuid.New()
	agentID := uuid.New()
	attackID := uuid.New()
	now := time.Now()
	expiresAt := now.Add(5 * time.Minute)

	mock.ExpectQuery(`UPDATE tasks SET`).
		WithArgs(taskID, agentID, expiresAt).
		WillReturnRows(sqlmock.NewRows(taskColumnsList()).
			AddRow(taskID, attackID, agentID, "running", int64(0), int64(1000),
				int64(0), now, expiresAt, now, 0, false, nil, now, now))

	task, err := repo.Claim(context.Background(), taskID, agentID, expiresAt)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if task.Status != models.TaskStatusRunning {
		t.Errorf("got status %q, want running", task.Status)
	}
	if task.AgentID == nil || *task.AgentID != agentID {
		t.Errorf("got agent %v, want %v", task.AgentID, agentID)
	}
	if task.ExpiresAt == nil {
		t.Error("expected lease expiry to be set")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaim_Conflict(t *testing.T) {
	repo, mock, closeDB := newMockTaskRepo(t)
	defer closeDB()

	taskID := uuid.New()
	agentID := uuid.New()

	// Conditional update matches nothing: task already taken or the agent
	// already holds a running task.
	mock.ExpectQuery(`UPDATE tasks SET`).
		WithArgs(taskID, agentID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(taskColumnsList()))

	_, err := repo.Claim(context.Background(), taskID, agentID, time.Now().Add(5*time.Minute))
	if !errors.Is(err, ErrClaimConflict) {
		t.Fatalf("got %v, want ErrClaimConflict", err)
	}
}

func TestUpdateProgress_Monotonic(t *testing.T) {
	repo, mock, closeDB := newMockTaskRepo(t)
	defer closeDB()

	taskID := uuid.New()

	mock.ExpectExec(`UPDATE tasks SET`).
		WithArgs(taskID, int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateProgress(context.Background(), taskID, 500); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	// A lower value matches no rows and must be rejected, not applied.
	mock.ExpectExec(`UPDATE tasks SET`).
		WithArgs(taskID, int64(400)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateProgress(context.Background(), taskID, 400)
	if !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("got %v, want ErrTransitionConflict", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTransitionStatus_Conflict(t *testing.T) {
	repo, mock, closeDB := newMockTaskRepo(t)
	defer closeDB()

	taskID := uuid.New()

	mock.ExpectExec(`UPDATE tasks SET status`).
		WithArgs(taskID, models.TaskStatusRunning, models.TaskStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.TransitionStatus(context.Background(), taskID, models.TaskStatusRunning, models.TaskStatusCompleted)
	if !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("got %v, want ErrTransitionConflict", err)
	}
}

func TestSweepExpiredClaims(t *testing.T) {
	repo, mock, closeDB := newMockTaskRepo(t)
	defer closeDB()

	now := time.Now()
	task1 := uuid.New()
	task2 := uuid.New()
	attackID := uuid.New()
	agentID := uuid.New()

	mock.ExpectQuery(`UPDATE tasks SET`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(taskColumnsList()).
			AddRow(task1, attackID, agentID, "pending", int64(0), int64(1000),
				int64(250), nil, nil, nil, 0, true, nil, now, now).
			AddRow(task2, attackID, agentID, "pending", int64(1000), int64(1000),
				int64(0), nil, nil, nil, 1, true, nil, now, now))

	released, err := repo.SweepExpiredClaims(context.Background(), now)
	if err != nil {
		t.Fatalf("SweepExpiredClaims failed: %v", err)
	}
	if len(released) != 2 {
		t.Fatalf("expected 2 released tasks, got %d", len(released))
	}
	for _, task := range released {
		if task.Status != models.TaskStatusPending {
			t.Errorf("task %s: got status %q, want pending", task.ID, task.Status)
		}
		if !task.Stale {
			t.Errorf("task %s: expected stale flag after reassignment", task.ID)
		}
		if task.AgentID == nil {
			t.Errorf("task %s: ownership history must survive release", task.ID)
		}
	}
}

func TestReleaseClaim_NotRunning(t *testing.T) {
	repo, mock, closeDB := newMockTaskRepo(t)
	defer closeDB()

	taskID := uuid.New()

	mock.ExpectExec(`UPDATE tasks SET`).
		WithArgs(taskID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ReleaseClaim(context.Background(), taskID)
	if !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("got %v, want ErrTransitionConflict", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, closeDB := newMockTaskRepo(t)
	defer closeDB()

	taskID := uuid.New()

	mock.ExpectQuery(`SELECT`).
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows(taskColumnsList()))

	_, err := repo.GetByID(context.Background(), taskID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRetryFailed_BudgetSpent(t *testing.T) {
	repo, mock, closeDB := newMockTaskRepo(t)
	defer closeDB()

	taskID := uuid.New()

	mock.ExpectExec(`UPDATE tasks SET`).
		WithArgs(taskID, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RetryFailed(context.Background(), taskID, 3)
	if !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("got %v, want ErrTransitionConflict", err)
	}
}

func TestMaxKeyspaceEnd(t *testing.T) {
	repo, mock, closeDB := newMockTaskRepo(t)
	defer closeDB()

	attackID := uuid.New()

	mock.ExpectQuery(`SELECT COALESCE`).
		WithArgs(attackID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(4096)))

	end, err := repo.MaxKeyspaceEnd(context.Background(), attackID)
	if err != nil {
		t.Fatalf("MaxKeyspaceEnd failed: %v", err)
	}
	if end != 4096 {
		t.Errorf("got %d, want 4096", end)
	}
}
