package lock

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"rollcall/internal/adapters/storage"
	domainAttendance "rollcall/internal/domain/attendance"
	domain "rollcall/internal/domain/lock"
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

func testEntry(date string, session domainAttendance.Session, locked bool) domain.Entry {
	return domain.Entry{
		Date:      date,
		Session:   session,
		Locked:    locked,
		UpdatedBy: "acct-1",
		UpdatedAt: time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteStore_GetAbsentKey(t *testing.T) {
	store := openTestStore(t)

	_, found, err := store.Get(context.Background(), "2026-03-10", domainAttendance.SessionMorning)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("expected no entry for fresh key")
	}
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := testEntry("2026-03-10", domainAttendance.SessionNight, true)
	if err := store.Upsert(ctx, want); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, found, err := store.Get(ctx, "2026-03-10", domainAttendance.SessionNight)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected entry after upsert")
	}
	if !got.Locked || got.UpdatedBy != "acct-1" {
		t.Errorf("unexpected entry: %+v", got)
	}
	if !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("UpdatedAt round trip: got %v, want %v", got.UpdatedAt, want.UpdatedAt)
	}
}

func TestSQLiteStore_UpsertKeepsOneRowPerKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := testEntry("2026-03-10", domainAttendance.SessionMorning, true)
	if err := store.Upsert(ctx, first); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}

	second := first
	second.Locked = false
	second.UpdatedBy = "acct-2"
	second.UpdatedAt = first.UpdatedAt.Add(time.Hour)
	if err := store.Upsert(ctx, second); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	entries, err := store.ListByDate(ctx, "2026-03-10")
	if err != nil {
		t.Fatalf("ListByDate failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Locked || entries[0].UpdatedBy != "acct-2" {
		t.Errorf("expected second write to win: %+v", entries[0])
	}
}

func TestSQLiteStore_ListByDate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, e := range []domain.Entry{
		testEntry("2026-03-10", domainAttendance.SessionNight, true),
		testEntry("2026-03-10", domainAttendance.SessionMorning, true),
		testEntry("2026-03-11", domainAttendance.SessionMorning, false),
	} {
		if err := store.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	entries, err := store.ListByDate(ctx, "2026-03-10")
	if err != nil {
		t.Fatalf("ListByDate failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Date != "2026-03-10" {
			t.Errorf("unexpected date %s in result", e.Date)
		}
	}
}
