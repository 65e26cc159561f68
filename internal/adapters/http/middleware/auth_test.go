package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rollcall/internal/domain/account"
	"rollcall/internal/domain/attendance"
)

func testSession(role string) Session {
	return Session{
		AccountID:   "acct-1",
		Username:    "warden",
		DisplayName: "Warden",
		Role:        role,
	}
}

// TestSessionStore_CreateAndGet verifies the session round trip.
func TestSessionStore_CreateAndGet(t *testing.T) {
	store := NewSessionStore()

	token, err := store.Create(testSession(account.RoleAdmin))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	got, ok := store.Get(token)
	if !ok {
		t.Fatal("expected session for token")
	}
	if got.AccountID != "acct-1" || got.Role != account.RoleAdmin {
		t.Errorf("unexpected session: %+v", got)
	}
}

// TestSessionStore_UnknownToken verifies lookup misses.
func TestSessionStore_UnknownToken(t *testing.T) {
	store := NewSessionStore()
	if _, ok := store.Get("bogus"); ok {
		t.Error("expected no session for unknown token")
	}
}

// TestSessionStore_Expiry verifies sessions lapse after 24 hours.
func TestSessionStore_Expiry(t *testing.T) {
	store := NewSessionStore()
	token, err := store.Create(testSession(account.RoleOperator))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	store.mu.Lock()
	s := store.sessions[token]
	s.CreatedAt = time.Now().Add(-25 * time.Hour)
	store.sessions[token] = s
	store.mu.Unlock()

	if _, ok := store.Get(token); ok {
		t.Error("expected expired session to be rejected")
	}
	// The expired entry is dropped, so a second read also misses.
	if _, ok := store.Get(token); ok {
		t.Error("expected expired session to stay gone")
	}
}

// TestSessionStore_Delete verifies logout removes the session.
func TestSessionStore_Delete(t *testing.T) {
	store := NewSessionStore()
	token, err := store.Create(testSession(account.RoleAdmin))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	store.Delete(token)
	if _, ok := store.Get(token); ok {
		t.Error("expected session removed after Delete")
	}
}

// TestAuth_InjectsSessionIntoContext verifies cookie-based context injection.
func TestAuth_InjectsSessionIntoContext(t *testing.T) {
	store := NewSessionStore()
	s := testSession(account.RoleOperator)
	s.BoundSession = attendance.SessionNight
	token, err := store.Create(s)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var got Session
	var found bool
	handler := Auth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = GetSessionFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/roster", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !found {
		t.Fatal("expected session in context")
	}
	if got.BoundSession != attendance.SessionNight {
		t.Errorf("BoundSession = %q, want %q", got.BoundSession, attendance.SessionNight)
	}
}

// TestAuth_PassesThroughWithoutCookie verifies anonymous requests are not blocked here.
func TestAuth_PassesThroughWithoutCookie(t *testing.T) {
	store := NewSessionStore()
	called := false
	handler := Auth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := GetSessionFromContext(r.Context()); ok {
			t.Error("expected no session in context")
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/roster", nil))
	if !called {
		t.Error("expected handler to run")
	}
}

// TestRequireAuth verifies unauthenticated requests are rejected.
func TestRequireAuth(t *testing.T) {
	handler := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/roster", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

// TestRequireRole verifies role gating.
func TestRequireRole(t *testing.T) {
	store := NewSessionStore()
	adminGate := func(next http.Handler) http.Handler {
		return Auth(store)(RequireRole(account.RoleAdmin)(next))
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	adminToken, _ := store.Create(testSession(account.RoleAdmin))
	operatorToken, _ := store.Create(testSession(account.RoleOperator))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"admin allowed", adminToken, http.StatusOK},
		{"operator forbidden", operatorToken, http.StatusForbidden},
		{"anonymous unauthorized", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/admin/lock", nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: tt.token})
			}
			rr := httptest.NewRecorder()
			adminGate(ok).ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

// TestIsAdmin verifies the context helper.
func TestIsAdmin(t *testing.T) {
	store := NewSessionStore()
	token, _ := store.Create(testSession(account.RoleAdmin))

	var adminSeen bool
	handler := Auth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminSeen = IsAdmin(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !adminSeen {
		t.Error("expected IsAdmin true for admin session")
	}
}

// TestRateLimiter_Allow verifies the token bucket refuses once drained.
func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(0.0001, 3)
	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("expected bucket drained after capacity requests")
	}
	// Another client has its own bucket.
	if !limiter.Allow("10.0.0.2") {
		t.Error("expected independent bucket per key")
	}
}

// TestRateLimiter_LimitMiddleware verifies 429 responses once the bucket drains.
func TestRateLimiter_LimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(0.0001, 2)
	handler := limiter.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/roster", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/roster", nil)
	req.RemoteAddr = "10.0.0.1:5001"
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rr.Code)
	}
}
