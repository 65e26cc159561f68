package orchestrators

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rollcall/internal/domain/account"
	"rollcall/internal/domain/attendance"
	"rollcall/internal/domain/audit"
	"rollcall/internal/domain/lock"
	"rollcall/internal/domain/person"
)

// mockRosterStore implements SubmitRosterStore for testing.
type mockRosterStore struct {
	people []person.Person
	err    error
}

func (m *mockRosterStore) ListActive(_ context.Context) ([]person.Person, error) {
	return m.people, m.err
}

// mockRecordStore implements SubmitRecordStore for testing. Append marks
// the key as submitted, mirroring what the real store's unique index
// implies for ExistsForKey.
type mockRecordStore struct {
	mu        sync.Mutex
	appended  []attendance.Record
	exists    bool
	deletes   int
	appendErr error
	existsErr error
	deleteErr error
}

func (m *mockRecordStore) Append(_ context.Context, records []attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, records...)
	m.exists = true
	return nil
}

func (m *mockRecordStore) ExistsForKey(_ context.Context, _ string, _ attendance.Session) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists, m.existsErr
}

func (m *mockRecordStore) DeleteForKey(_ context.Context, _ string, _ attendance.Session) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	n := len(m.appended)
	m.appended = nil
	m.exists = false
	m.deletes++
	return n, nil
}

// mockLockStore implements SubmitLockStore for testing.
type mockLockStore struct {
	mu        sync.Mutex
	entries   map[string]lock.Entry
	upserts   int
	getErr    error
	upsertErr error
}

func newMockLockStore() *mockLockStore {
	return &mockLockStore{entries: make(map[string]lock.Entry)}
}

func (m *mockLockStore) Get(_ context.Context, date string, session attendance.Session) (lock.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return lock.Entry{}, false, m.getErr
	}
	e, ok := m.entries[date+"|"+string(session)]
	return e, ok, nil
}

func (m *mockLockStore) Upsert(_ context.Context, value lock.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.entries[value.Date+"|"+string(value.Session)] = value
	m.upserts++
	return nil
}

// mockAuditStore implements SubmitAuditStore for testing.
type mockAuditStore struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *mockAuditStore) Save(_ context.Context, event audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

var testRoster = []person.Person{
	{ID: 1, Name: "Aroha", Active: true},
	{ID: 2, Name: "Ben", Active: true},
	{ID: 3, Name: "Carla", Active: true},
}

func fullMarks() map[int64]attendance.Status {
	return map[int64]attendance.Status{
		1: attendance.StatusPresent,
		2: attendance.StatusAbsent,
		3: attendance.StatusLeave,
	}
}

var testAdmin = account.Account{ID: "acct-admin", Username: "warden", Role: account.RoleAdmin}

var testOperator = account.Account{
	ID:           "acct-op",
	Username:     "op-morning",
	Role:         account.RoleOperator,
	BoundSession: attendance.SessionMorning,
}

func submitDeps(roster *mockRosterStore, records *mockRecordStore, locks *mockLockStore, audits *mockAuditStore) SubmitAttendanceDeps {
	deps := SubmitAttendanceDeps{
		RosterStore: roster,
		RecordStore: records,
		LockStore:   locks,
		Keys:        NewKeyedMutex(),
		Now:         func() time.Time { return time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC) },
	}
	if audits != nil {
		deps.AuditStore = audits
	}
	return deps
}

func TestExecuteSubmitAttendance_HappyPath(t *testing.T) {
	records := &mockRecordStore{}
	locks := newMockLockStore()
	audits := &mockAuditStore{}
	deps := submitDeps(&mockRosterStore{people: testRoster}, records, locks, audits)

	result, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionMorning, Marks: fullMarks()},
		Actor: testOperator,
	}, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RecordsWritten != 3 {
		t.Errorf("expected 3 records written, got %d", result.RecordsWritten)
	}
	if len(records.appended) != 3 {
		t.Errorf("expected 3 appended records, got %d", len(records.appended))
	}
	if result.Summary[attendance.StatusPresent] != 1 || result.Summary[attendance.StatusAbsent] != 1 {
		t.Errorf("unexpected summary: %v", result.Summary)
	}
	// The summary covers every status even when unused.
	for _, st := range attendance.Statuses {
		if _, ok := result.Summary[st]; !ok {
			t.Errorf("summary missing status %s", st)
		}
	}
	entry, ok := locks.entries["2026-03-02|morning"]
	if !ok || !entry.Locked {
		t.Errorf("expected session locked after commit, got %+v (found=%v)", entry, ok)
	}
	if len(audits.events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(audits.events))
	}
	if audits.events[0].Action != audit.ActionSubmit {
		t.Errorf("expected submit audit action, got %s", audits.events[0].Action)
	}
}

func TestExecuteSubmitAttendance_RecordsSortedByPersonID(t *testing.T) {
	records := &mockRecordStore{}
	deps := submitDeps(&mockRosterStore{people: testRoster}, records, newMockLockStore(), nil)

	_, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionMorning, Marks: fullMarks()},
		Actor: testAdmin,
	}, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(records.appended); i++ {
		if records.appended[i-1].PersonID >= records.appended[i].PersonID {
			t.Fatalf("records not ordered by person id: %d before %d",
				records.appended[i-1].PersonID, records.appended[i].PersonID)
		}
	}
}

func TestExecuteSubmitAttendance_MissingMark(t *testing.T) {
	deps := submitDeps(&mockRosterStore{people: testRoster}, &mockRecordStore{}, newMockLockStore(), nil)
	marks := fullMarks()
	delete(marks, 2)

	_, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionMorning, Marks: marks},
		Actor: testOperator,
	}, deps)
	if !errors.Is(err, attendance.ErrIncompleteMarks) {
		t.Fatalf("expected ErrIncompleteMarks, got %v", err)
	}
}

func TestExecuteSubmitAttendance_UnknownPerson(t *testing.T) {
	deps := submitDeps(&mockRosterStore{people: testRoster}, &mockRecordStore{}, newMockLockStore(), nil)
	marks := fullMarks()
	marks[99] = attendance.StatusPresent

	_, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionMorning, Marks: marks},
		Actor: testOperator,
	}, deps)
	if !errors.Is(err, attendance.ErrUnknownPerson) {
		t.Fatalf("expected ErrUnknownPerson, got %v", err)
	}
}

func TestExecuteSubmitAttendance_OperatorWrongSession(t *testing.T) {
	deps := submitDeps(&mockRosterStore{people: testRoster}, &mockRecordStore{}, newMockLockStore(), nil)

	_, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionNight, Marks: fullMarks()},
		Actor: testOperator,
	}, deps)
	if !errors.Is(err, attendance.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestExecuteSubmitAttendance_LockedSessionBlocksOperator(t *testing.T) {
	locks := newMockLockStore()
	locks.entries["2026-03-02|morning"] = lock.Entry{
		Date: "2026-03-02", Session: attendance.SessionMorning, Locked: true,
	}
	deps := submitDeps(&mockRosterStore{people: testRoster}, &mockRecordStore{}, locks, nil)

	_, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionMorning, Marks: fullMarks()},
		Actor: testOperator,
	}, deps)
	if !errors.Is(err, attendance.ErrLockConflict) {
		t.Fatalf("expected ErrLockConflict, got %v", err)
	}
}

func TestExecuteSubmitAttendance_AdminBypassesLock(t *testing.T) {
	locks := newMockLockStore()
	locks.entries["2026-03-02|morning"] = lock.Entry{
		Date: "2026-03-02", Session: attendance.SessionMorning, Locked: true,
	}
	stale := attendance.Record{
		ID: "stale", Date: "2026-03-02", Session: attendance.SessionMorning,
		PersonID: 1, Status: attendance.StatusAbsent,
	}
	records := &mockRecordStore{exists: true, appended: []attendance.Record{stale}}
	audits := &mockAuditStore{}
	deps := submitDeps(&mockRosterStore{people: testRoster}, records, locks, audits)

	result, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionMorning, Marks: fullMarks()},
		Actor: testAdmin,
	}, deps)
	if err != nil {
		t.Fatalf("expected admin override to succeed, got %v", err)
	}
	if result.RecordsWritten != 3 {
		t.Errorf("expected 3 records written, got %d", result.RecordsWritten)
	}
	// The prior set is swapped out, not appended to.
	if records.deletes != 1 {
		t.Errorf("expected prior records cleared once, got %d deletes", records.deletes)
	}
	if len(records.appended) != 3 {
		t.Fatalf("expected 3 records after replacement, got %d", len(records.appended))
	}
	for _, r := range records.appended {
		if r.ID == "stale" {
			t.Error("stale record survived the resubmission")
		}
	}
	// The resubmission is flagged as a warning in the trail.
	if len(audits.events) != 1 || audits.events[0].Severity != audit.SeverityWarning {
		t.Errorf("expected one warning audit event, got %+v", audits.events)
	}
}

func TestExecuteSubmitAttendance_DuplicateBlocksOperator(t *testing.T) {
	// Lock flag absent but records exist: the half-committed state after
	// a crash between the two writes. The records alone must block.
	records := &mockRecordStore{exists: true}
	deps := submitDeps(&mockRosterStore{people: testRoster}, records, newMockLockStore(), nil)

	_, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionMorning, Marks: fullMarks()},
		Actor: testOperator,
	}, deps)
	if !errors.Is(err, attendance.ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}
	if len(records.appended) != 0 {
		t.Errorf("expected no records appended, got %d", len(records.appended))
	}
}

func TestExecuteSubmitAttendance_PreconditionOrder(t *testing.T) {
	// A draft that fails several preconditions at once reports the
	// roster gap first: wrong session for the operator, locked, already
	// submitted, and a missing mark.
	locks := newMockLockStore()
	locks.entries["2026-03-02|night"] = lock.Entry{
		Date: "2026-03-02", Session: attendance.SessionNight, Locked: true,
	}
	records := &mockRecordStore{exists: true}
	deps := submitDeps(&mockRosterStore{people: testRoster}, records, locks, nil)
	marks := fullMarks()
	delete(marks, 3)

	_, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionNight, Marks: marks},
		Actor: testOperator,
	}, deps)
	if !errors.Is(err, attendance.ErrIncompleteMarks) {
		t.Fatalf("expected roster coverage to be checked first, got %v", err)
	}
}

func TestExecuteSubmitAttendance_LockWriteFailure(t *testing.T) {
	records := &mockRecordStore{}
	locks := newMockLockStore()
	locks.upsertErr = errors.New("disk full")
	deps := submitDeps(&mockRosterStore{people: testRoster}, records, locks, nil)

	_, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionMorning, Marks: fullMarks()},
		Actor: testOperator,
	}, deps)
	if err == nil {
		t.Fatal("expected error from failed lock write")
	}
	// Records landed before the lock write failed: the session still
	// reads as submitted.
	if len(records.appended) != 3 {
		t.Errorf("expected records written despite lock failure, got %d", len(records.appended))
	}
	exists, _ := records.ExistsForKey(context.Background(), "2026-03-02", attendance.SessionMorning)
	if !exists {
		t.Error("expected key to read as submitted after record write")
	}
}

func TestExecuteSubmitAttendance_ConcurrentSameKey(t *testing.T) {
	// Two racing submissions for the same (date, session): exactly one
	// wins, the other sees the duplicate error.
	records := &mockRecordStore{}
	locks := newMockLockStore()
	deps := submitDeps(&mockRosterStore{people: testRoster}, records, locks, nil)
	deps.SubmitWait = time.Second

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
				Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionMorning, Marks: fullMarks()},
				Actor: testOperator,
			}, deps)
		}(i)
	}
	wg.Wait()

	var okCount, dupCount int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, attendance.ErrDuplicateSubmission):
			dupCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || dupCount != 1 {
		t.Fatalf("expected exactly one winner and one duplicate, got ok=%d dup=%d", okCount, dupCount)
	}
	if len(records.appended) != 3 {
		t.Errorf("expected exactly one record set, got %d records", len(records.appended))
	}
}

func TestExecuteSubmitAttendance_BusyWhenKeyHeld(t *testing.T) {
	deps := submitDeps(&mockRosterStore{people: testRoster}, &mockRecordStore{}, newMockLockStore(), nil)
	deps.SubmitWait = 20 * time.Millisecond

	key := "2026-03-02|morning"
	if !deps.Keys.TryLock(key, 0) {
		t.Fatal("setup: could not take key")
	}
	defer deps.Keys.Unlock(key)

	_, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionMorning, Marks: fullMarks()},
		Actor: testOperator,
	}, deps)
	if !errors.Is(err, attendance.ErrSubmitBusy) {
		t.Fatalf("expected ErrSubmitBusy, got %v", err)
	}
}

func TestExecuteSubmitAttendance_DifferentKeysProceedIndependently(t *testing.T) {
	records := &mockRecordStore{}
	deps := submitDeps(&mockRosterStore{people: testRoster}, records, newMockLockStore(), nil)

	// Morning held by someone else; night still goes through.
	if !deps.Keys.TryLock("2026-03-02|morning", 0) {
		t.Fatal("setup: could not take morning key")
	}
	defer deps.Keys.Unlock("2026-03-02|morning")

	_, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
		Draft: attendance.Draft{Date: "2026-03-02", Session: attendance.SessionNight, Marks: fullMarks()},
		Actor: testAdmin,
	}, deps)
	if err != nil {
		t.Fatalf("unexpected error for independent key: %v", err)
	}
}

func TestExecuteSubmitAttendance_InvalidInputs(t *testing.T) {
	deps := submitDeps(&mockRosterStore{people: testRoster}, &mockRecordStore{}, newMockLockStore(), nil)

	cases := []struct {
		name  string
		draft attendance.Draft
		want  error
	}{
		{"bad date", attendance.Draft{Date: "02-03-2026", Session: attendance.SessionMorning, Marks: fullMarks()}, attendance.ErrInvalidDate},
		{"bad session", attendance.Draft{Date: "2026-03-02", Session: "afternoon", Marks: fullMarks()}, attendance.ErrInvalidSession},
		{"bad status", attendance.Draft{Date: "2026-03-02", Session: attendance.SessionMorning, Marks: map[int64]attendance.Status{1: "X", 2: "P", 3: "P"}}, attendance.ErrInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExecuteSubmitAttendance(context.Background(), SubmitAttendanceInput{
				Draft: tc.draft,
				Actor: testAdmin,
			}, deps)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
