package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
)

func TestAgentKeyRoundTrip(t *testing.T) {
	key, digest, err := newAgentKey()
	if err != nil {
		t.Fatalf("newAgentKey failed: %v", err)
	}

	// 32 random bytes, hex encoded.
	if len(key) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(key))
	}
	if hashAgentKey(key) != digest {
		t.Error("stored digest does not verify the issued key")
	}
	if hashAgentKey("not-the-key") == digest {
		t.Error("a wrong key must not produce the stored digest")
	}

	// Two mints never collide.
	key2, digest2, err := newAgentKey()
	if err != nil {
		t.Fatalf("newAgentKey failed: %v", err)
	}
	if key == key2 || digest == digest2 {
		t.Error("two freshly minted keys must differ")
	}
}

func newMockAgentService(t *testing.T) (*AgentService, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	database := &db.DB{DB: mockDB}
	recorder := NewTransitionRecorder(repository.NewEventRepository(database), nil, nil)
	svc := NewAgentService(
		repository.NewAgentRepository(database),
		repository.NewAgentErrorRepository(database),
		repository.NewProjectRepository(database),
		nil,
		nil,
		recorder,
	)
	return svc, mock, func() { mockDB.Close() }
}

func agentColumnsList() []string {
	return []string{
		"id", "name", "host", "signature", "api_key_hash", "status", "version",
		"devices", "last_seen_at", "last_error", "is_enabled", "created_at", "updated_at",
	}
}

func TestAuthenticate(t *testing.T) {
	agentID := uuid.New()
	key, digest, err := newAgentKey()
	if err != nil {
		t.Fatalf("newAgentKey failed: %v", err)
	}
	now := time.Now()

	addAgentRow := func(mock sqlmock.Sqlmock, enabled bool) {
		mock.ExpectQuery(`FROM agents`).
			WithArgs(agentID).
			WillReturnRows(sqlmock.NewRows(agentColumnsList()).
				AddRow(agentID, "rig-01", "rig-01.lab", "sig-abc", digest, "active",
					"1.4.2", []byte(`{}`), now, nil, enabled, now, now))
		mock.ExpectQuery(`FROM agent_projects`).
			WithArgs(agentID).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}))
	}

	t.Run("valid key", func(t *testing.T) {
		svc, mock, closeDB := newMockAgentService(t)
		defer closeDB()
		addAgentRow(mock, true)

		agent, err := svc.Authenticate(context.Background(), agentID, key)
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if agent.ID != agentID {
			t.Errorf("got agent %s, want %s", agent.ID, agentID)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		svc, mock, closeDB := newMockAgentService(t)
		defer closeDB()
		addAgentRow(mock, true)

		_, err := svc.Authenticate(context.Background(), agentID, "0000")
		if !errors.Is(err, ErrInvalidAgentKey) {
			t.Fatalf("got %v, want ErrInvalidAgentKey", err)
		}
	})

	t.Run("disabled agent with valid key", func(t *testing.T) {
		svc, mock, closeDB := newMockAgentService(t)
		defer closeDB()
		addAgentRow(mock, false)

		_, err := svc.Authenticate(context.Background(), agentID, key)
		if !errors.Is(err, ErrAgentDisabled) {
			t.Fatalf("got %v, want ErrAgentDisabled", err)
		}
	})

	t.Run("unknown agent", func(t *testing.T) {
		svc, mock, closeDB := newMockAgentService(t)
		defer closeDB()

		mock.ExpectQuery(`FROM agents`).
			WithArgs(agentID).
			WillReturnRows(sqlmock.NewRows(agentColumnsList()))

		_, err := svc.Authenticate(context.Background(), agentID, key)
		if !errors.Is(err, ErrInvalidAgentKey) {
			t.Fatalf("got %v, want ErrInvalidAgentKey", err)
		}
	})
}
