package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"rollcall/internal/adapters/storage"
	domain "rollcall/internal/domain/outbox"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	return NewSQLiteStore(db)
}

func testEntry(id, dedupeKey string) domain.Entry {
	return domain.Entry{
		ID:          id,
		ActionType:  domain.ActionTypeAlertEmail,
		DedupeKey:   dedupeKey,
		Payload:     `{"date":"2026-03-10"}`,
		Status:      domain.StatusPending,
		Attempts:    0,
		MaxAttempts: 5,
		CreatedAt:   time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteStore_InsertDedupe(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	inserted, err := store.Insert(ctx, testEntry("o1", "alert:2026-03-10"))
	if err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to report true")
	}

	inserted, err = store.Insert(ctx, testEntry("o2", "alert:2026-03-10"))
	if err != nil {
		t.Fatalf("second Insert failed: %v", err)
	}
	if inserted {
		t.Error("expected duplicate dedupe key to report false")
	}

	entries, err := store.ListRetryable(ctx, 10)
	if err != nil {
		t.Fatalf("ListRetryable failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "o1" {
		t.Fatalf("expected only the first entry, got %+v", entries)
	}
}

func TestSQLiteStore_EmptyDedupeKeysNeverCollide(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"o1", "o2", "o3"} {
		inserted, err := store.Insert(ctx, testEntry(id, ""))
		if err != nil {
			t.Fatalf("Insert %s failed: %v", id, err)
		}
		if !inserted {
			t.Errorf("entry %s without dedupe key should always insert", id)
		}
	}

	entries, err := store.ListRetryable(ctx, 10)
	if err != nil {
		t.Fatalf("ListRetryable failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(entries))
	}
}

func TestSQLiteStore_Update(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entry := testEntry("o1", "alert:2026-03-10")
	if _, err := store.Insert(ctx, entry); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	entry.Status = domain.StatusRetrying
	entry.Attempts = 1
	entry.LastAttemptedAt = time.Date(2026, 3, 10, 22, 5, 0, 0, time.UTC)
	entry.ErrorMessage = "smtp timeout"
	if err := store.Update(ctx, entry); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	entries, err := store.ListRetryable(ctx, 10)
	if err != nil {
		t.Fatalf("ListRetryable failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 retryable entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Status != domain.StatusRetrying || got.Attempts != 1 {
		t.Errorf("unexpected entry after update: %+v", got)
	}
	if got.ErrorMessage != "smtp timeout" {
		t.Errorf("ErrorMessage: got %q, want %q", got.ErrorMessage, "smtp timeout")
	}
	if !got.LastAttemptedAt.Equal(entry.LastAttemptedAt) {
		t.Errorf("LastAttemptedAt round trip: got %v, want %v", got.LastAttemptedAt, entry.LastAttemptedAt)
	}
}

func TestSQLiteStore_ListRetryableFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []domain.Entry{
		testEntry("pending", ""),
		testEntry("retrying", ""),
		testEntry("failed", ""),
		testEntry("done", ""),
		testEntry("abandoned", ""),
		testEntry("exhausted", ""),
	}
	entries[1].Status = domain.StatusRetrying
	entries[2].Status = domain.StatusFailed
	entries[3].Status = domain.StatusDone
	entries[4].Status = domain.StatusAbandoned
	entries[5].Attempts = 5

	for _, e := range entries {
		if _, err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert %s failed: %v", e.ID, err)
		}
	}

	got, err := store.ListRetryable(ctx, 10)
	if err != nil {
		t.Fatalf("ListRetryable failed: %v", err)
	}
	ids := map[string]bool{}
	for _, e := range got {
		ids[e.ID] = true
	}
	for _, want := range []string{"pending", "retrying", "failed"} {
		if !ids[want] {
			t.Errorf("expected %s in retryable set", want)
		}
	}
	for _, skip := range []string{"done", "abandoned", "exhausted"} {
		if ids[skip] {
			t.Errorf("did not expect %s in retryable set", skip)
		}
	}
}

func TestSQLiteStore_ListRetryableOldestFirstWithLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := testEntry(fmt.Sprintf("o%d", i), "")
		e.CreatedAt = base.Add(time.Duration(5-i) * time.Minute)
		if _, err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.ListRetryable(ctx, 2)
	if err != nil {
		t.Fatalf("ListRetryable failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "o4" || got[1].ID != "o3" {
		t.Errorf("expected oldest first, got [%s, %s]", got[0].ID, got[1].ID)
	}
}
