package projections

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rollcall/internal/domain/attendance"
	"rollcall/internal/domain/lock"
)

// DefaultLockStateTTL bounds how stale a cached lock-state read may be.
// Readers never block on writers; they may briefly see the state from
// before the most recent commit.
const DefaultLockStateTTL = 10 * time.Second

// LockStateLockStore defines the lock store interface needed by reads.
type LockStateLockStore interface {
	Get(ctx context.Context, date string, session attendance.Session) (lock.Entry, bool, error)
}

// LockStateRecordStore defines the record store interface needed by reads.
type LockStateRecordStore interface {
	ExistsForKey(ctx context.Context, date string, session attendance.Session) (bool, error)
}

type lockState struct {
	locked    bool
	submitted bool
	fetchedAt time.Time
}

// LockStateReader answers "is this session locked / already submitted"
// through a short-TTL cache in front of the store. The caller that just
// mutated a key should Invalidate it so its own next read is fresh.
type LockStateReader struct {
	lockStore   LockStateLockStore
	recordStore LockStateRecordStore
	ttl         time.Duration
	now         func() time.Time

	mu    sync.Mutex
	cache map[string]lockState
}

// NewLockStateReader creates a reader with the given TTL.
// PRE: lockStore and recordStore are non-nil
// POST: Returns a ready reader; ttl <= 0 selects DefaultLockStateTTL
func NewLockStateReader(lockStore LockStateLockStore, recordStore LockStateRecordStore, ttl time.Duration) *LockStateReader {
	if ttl <= 0 {
		ttl = DefaultLockStateTTL
	}
	return &LockStateReader{
		lockStore:   lockStore,
		recordStore: recordStore,
		ttl:         ttl,
		now:         time.Now,
		cache:       make(map[string]lockState),
	}
}

// IsLocked reports the lock flag for (date, session). An unknown key
// reads as unlocked, never as an error.
// PRE: date is YYYY-MM-DD, session is valid
// POST: Returns the flag, at most TTL stale
func (r *LockStateReader) IsLocked(ctx context.Context, date string, session attendance.Session) (bool, error) {
	st, err := r.state(ctx, date, session)
	if err != nil {
		return false, err
	}
	return st.locked, nil
}

// HasSubmission reports whether any record exists for (date, session).
// Callers use this to short-circuit before building a full mark set.
// PRE: date is YYYY-MM-DD, session is valid
// POST: Returns record existence, at most TTL stale
func (r *LockStateReader) HasSubmission(ctx context.Context, date string, session attendance.Session) (bool, error) {
	st, err := r.state(ctx, date, session)
	if err != nil {
		return false, err
	}
	return st.submitted, nil
}

// Invalidate drops the cached state for a key after a write.
// PRE: none
// POST: The next read for the key goes to the store
func (r *LockStateReader) Invalidate(date string, session attendance.Session) {
	r.mu.Lock()
	delete(r.cache, cacheKey(date, session))
	r.mu.Unlock()
}

func (r *LockStateReader) state(ctx context.Context, date string, session attendance.Session) (lockState, error) {
	key := cacheKey(date, session)

	r.mu.Lock()
	st, ok := r.cache[key]
	r.mu.Unlock()
	if ok && r.now().Sub(st.fetchedAt) < r.ttl {
		return st, nil
	}

	entry, found, err := r.lockStore.Get(ctx, date, session)
	if err != nil {
		return lockState{}, fmt.Errorf("%s %s: read lock: %w", date, session, err)
	}
	submitted, err := r.recordStore.ExistsForKey(ctx, date, session)
	if err != nil {
		return lockState{}, fmt.Errorf("%s %s: read records: %w", date, session, err)
	}

	st = lockState{
		locked:    found && entry.Locked,
		submitted: submitted,
		fetchedAt: r.now(),
	}
	r.mu.Lock()
	r.cache[key] = st
	r.mu.Unlock()
	return st, nil
}

func cacheKey(date string, session attendance.Session) string {
	return date + "|" + string(session)
}
