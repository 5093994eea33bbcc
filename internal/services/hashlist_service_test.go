package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/db"
	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
)

func TestParseHashLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantValue string
		wantSalt  string
		wantOK    bool
	}{
		{
			name:      "bare hash",
			line:      "8846f7eaee8fb117ad06bdd830b7586c",
			wantValue: "8846f7eaee8fb117ad06bdd830b7586c",
			wantOK:    true,
		},
		{
			name:      "hash with salt",
			line:      "a94a8fe5ccb19ba61c4c0873d391e987:somesalt",
			wantValue: "a94a8fe5ccb19ba61c4c0873d391e987",
			wantSalt:  "somesalt",
			wantOK:    true,
		},
		{
			name:      "salt keeps embedded colons",
			line:      "a94a8fe5ccb19ba61c4c0873d391e987:user:1001",
			wantValue: "a94a8fe5ccb19ba61c4c0873d391e987",
			wantSalt:  "user:1001",
			wantOK:    true,
		},
		{
			name:   "leading colon means empty hash",
			line:   ":justsalt",
			wantOK: false,
		},
		{
			name:   "whitespace inside hash",
			line:   "8846f7ea ee8fb117",
			wantOK: false,
		},
		{
			name:   "oversized line",
			line:   strings.Repeat("a", 5000),
			wantOK: false,
		},
		{
			name:      "trailing empty salt",
			line:      "8846f7eaee8fb117ad06bdd830b7586c:",
			wantValue: "8846f7eaee8fb117ad06bdd830b7586c",
			wantSalt:  "",
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, salt, ok := parseHashLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if value != tt.wantValue {
				t.Errorf("value = %q, want %q", value, tt.wantValue)
			}
			if salt != tt.wantSalt {
				t.Errorf("salt = %q, want %q", salt, tt.wantSalt)
			}
		})
	}
}

func newMockHashListService(t *testing.T) (*HashListService, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	database := &db.DB{DB: mockDB}
	svc := NewHashListService(
		repository.NewProjectRepository(database),
		repository.NewHashListRepository(database),
		repository.NewHashItemRepository(database),
		repository.NewCampaignRepository(database),
	)
	return svc, mock, func() { mockDB.Close() }
}

func hashlistRowColumns() []string {
	return []string{
		"id", "project_id", "name", "hash_type_id", "total_hashes",
		"cracked_hashes", "status", "error_message", "created_at", "updated_at",
	}
}

func TestIngest_Accounting(t *testing.T) {
	svc, mock, closeDB := newMockHashListService(t)
	defer closeDB()

	hashlistID := uuid.New()
	projectID := uuid.New()
	now := time.Now()

	upload := strings.Join([]string{
		"# customer dump 2026-08",
		"",
		"8846f7eaee8fb117ad06bdd830b7586c",
		"a94a8fe5ccb19ba61c4c0873d391e987:salt1",
		"8846f7eaee8fb117ad06bdd830b7586c", // duplicate inside the upload
		"broken line with spaces",
		"5f4dcc3b5aa765d61d8327deb882cf99",
	}, "\n")

	mock.ExpectQuery(`SELECT`).
		WithArgs(hashlistID).
		WillReturnRows(sqlmock.NewRows(hashlistRowColumns()).
			AddRow(hashlistID, projectID, "customer dump", 1000, 0, 0,
				models.HashListStatusUploading, nil, now, now))

	mock.ExpectExec(`UPDATE hashlists SET status`).
		WithArgs(hashlistID, models.HashListStatusProcessing, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Three unique values reach the insert; one was already present from an
	// earlier upload and is skipped by the conflict clause.
	mock.ExpectExec(`INSERT INTO hash_items`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	mock.ExpectQuery(`UPDATE hashlists SET`).
		WithArgs(hashlistID).
		WillReturnRows(sqlmock.NewRows(hashlistRowColumns()).
			AddRow(hashlistID, projectID, "customer dump", 1000, 3, 0,
				models.HashListStatusProcessing, nil, now, now))

	mock.ExpectExec(`UPDATE hashlists SET status`).
		WithArgs(hashlistID, models.HashListStatusReady, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := svc.Ingest(context.Background(), hashlistID, strings.NewReader(upload))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	// Comments and blanks are not received; 4 valid + 1 invalid = 5.
	if result.Received != 5 {
		t.Errorf("received = %d, want 5", result.Received)
	}
	if result.Inserted != 2 {
		t.Errorf("inserted = %d, want 2", result.Inserted)
	}
	// One in-upload duplicate plus one conflict-skipped row.
	if result.Duplicates != 2 {
		t.Errorf("duplicates = %d, want 2", result.Duplicates)
	}
	if result.Invalid != 1 {
		t.Errorf("invalid = %d, want 1", result.Invalid)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestIngest_RejectsWrongState(t *testing.T) {
	svc, mock, closeDB := newMockHashListService(t)
	defer closeDB()

	hashlistID := uuid.New()
	projectID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT`).
		WithArgs(hashlistID).
		WillReturnRows(sqlmock.NewRows(hashlistRowColumns()).
			AddRow(hashlistID, projectID, "customer dump", 1000, 10, 0,
				models.HashListStatusReady, nil, now, now))

	_, err := svc.Ingest(context.Background(), hashlistID, strings.NewReader("cafe"))
	if err == nil {
		t.Fatal("expected rejection for a ready hashlist")
	}
}

func TestIngest_EmptyUploadFailsList(t *testing.T) {
	svc, mock, closeDB := newMockHashListService(t)
	defer closeDB()

	hashlistID := uuid.New()
	projectID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT`).
		WithArgs(hashlistID).
		WillReturnRows(sqlmock.NewRows(hashlistRowColumns()).
			AddRow(hashlistID, projectID, "customer dump", 1000, 0, 0,
				models.HashListStatusUploading, nil, now, now))

	mock.ExpectExec(`UPDATE hashlists SET status`).
		WithArgs(hashlistID, models.HashListStatusProcessing, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Nothing usable in the upload: the list lands in error, not ready.
	mock.ExpectExec(`UPDATE hashlists SET status`).
		WithArgs(hashlistID, models.HashListStatusError, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.Ingest(context.Background(), hashlistID, strings.NewReader("# only a comment\n\n"))
	if err == nil {
		t.Fatal("expected error for an upload with no valid hashes")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
