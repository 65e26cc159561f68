package web

import (
	"net/http"
	"os"
	"time"

	"rollcall/internal/adapters/http/middleware"
	"rollcall/internal/adapters/http/perf"
	accountStore "rollcall/internal/adapters/storage/account"
	attendanceStore "rollcall/internal/adapters/storage/attendance"
	auditStore "rollcall/internal/adapters/storage/audit"
	lockStore "rollcall/internal/adapters/storage/lock"
	outboxStore "rollcall/internal/adapters/storage/outbox"
	personStore "rollcall/internal/adapters/storage/person"
	"rollcall/internal/application/orchestrators"
	"rollcall/internal/application/projections"
	"rollcall/internal/domain/account"
)

// Stores holds all storage dependencies.
type Stores struct {
	AccountStore accountStore.Store
	PersonStore  personStore.Store
	RecordStore  attendanceStore.Store
	LockStore    lockStore.Store
	AuditStore   auditStore.Store
	OutboxStore  outboxStore.Store
}

// Config carries the handler-level settings the wiring layer decides.
type Config struct {
	CSRFKey         []byte
	TrustedOrigins  []string
	AlertRecipients []string
	LockStateTTL    time.Duration
}

// Global stores instance (set by NewMux)
var stores *Stores

// Global session store instance
var sessions *middleware.SessionStore

// Global perf collector (set by NewMux)
var perfCollector *perf.Collector

// Global lock-state reader (set by NewMux)
var lockState *projections.LockStateReader

// Global keyed mutex serialising submits per (date, session)
var submitKeys *orchestrators.KeyedMutex

// Alert recipients for the red-flag digest scan endpoint
var alertRecipients []string

// RateLimitPerSecond controls the per-IP rate limit. Tests can increase this.
var RateLimitPerSecond = 10.0

// NewMux wires HTTP handlers for the app.
func NewMux(s *Stores, collector *perf.Collector, cfg Config) http.Handler {
	stores = s
	perfCollector = collector
	sessions = middleware.NewSessionStore()
	submitKeys = orchestrators.NewKeyedMutex()
	lockState = projections.NewLockStateReader(s.LockStore, s.RecordStore, cfg.LockStateTTL)
	alertRecipients = cfg.AlertRecipients
	middleware.SecureCookies = os.Getenv("ROLLCALL_ENV") == "production"

	mux := http.NewServeMux()
	registerRoutes(mux)

	limiter := middleware.NewRateLimiter(RateLimitPerSecond, 2*RateLimitPerSecond)

	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(cfg.CSRFKey, cfg.TrustedOrigins),
		middleware.Auth(sessions),
		limiter.Limit,
		middleware.Timing(collector),
	)
}

func registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/api/login", handleLogin)
	mux.HandleFunc("/api/logout", handleLogout)

	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAuth(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, middleware.RequireRole(account.RoleAdmin))
	}

	mux.Handle("/api/roster", authed(handleRoster))
	mux.Handle("/api/roster/rename", admin(handleRenamePerson))
	mux.Handle("/api/roster/active", admin(handleSetPersonActive))
	mux.Handle("/api/attendance", authed(handleAttendance))
	mux.Handle("/api/attendance/state", authed(handleAttendanceState))
	mux.Handle("/api/analytics", authed(handleAnalytics))
	mux.Handle("/api/export", authed(handleExport))
	mux.Handle("/api/admin/lock", admin(handleSetLock))
	mux.Handle("/api/admin/accounts", admin(handleCreateAccount))
	mux.Handle("/api/admin/audit", admin(handleAuditList))
	mux.Handle("/api/admin/alerts", admin(handleAlertScan))
	mux.Handle("/api/admin/perf", admin(handlePerfSnapshot))
}

// SessionTestHook creates a session directly, bypassing login. Test use only.
func SessionTestHook(s middleware.Session) (string, error) {
	return sessions.Create(s)
}

// actorFromSession rebuilds the acting account from session data. The
// orchestrators only consult identity, role and bound session, so the
// stored account is not re-read on every request.
func actorFromSession(s middleware.Session) account.Account {
	return account.Account{
		ID:           s.AccountID,
		Username:     s.Username,
		DisplayName:  s.DisplayName,
		Role:         s.Role,
		BoundSession: s.BoundSession,
	}
}
