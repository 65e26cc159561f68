package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	auditStore "rollcall/internal/adapters/storage/audit"
	attendanceStore "rollcall/internal/adapters/storage/attendance"
	"rollcall/internal/adapters/export"
	"rollcall/internal/adapters/http/middleware"
	"rollcall/internal/application/orchestrators"
	"rollcall/internal/application/projections"
	"rollcall/internal/domain/account"
	"rollcall/internal/domain/attendance"
	"rollcall/internal/domain/audit"
	"rollcall/internal/domain/person"
)

// timeNow is a variable for testability.
var timeNow = time.Now

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json_encode_failed", "error", err.Error())
	}
}

// domainError maps ledger errors onto HTTP statuses. Conflicts between
// concurrent submitters and lock overrides surface as 409 so clients can
// refresh and re-check state.
func domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attendance.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, attendance.ErrLockConflict),
		errors.Is(err, attendance.ErrDuplicateSubmission),
		errors.Is(err, person.ErrNameTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, attendance.ErrSubmitBusy):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, person.ErrNotFound), errors.Is(err, account.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, attendance.ErrInvalidDate),
		errors.Is(err, attendance.ErrInvalidSession),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrIncompleteMarks),
		errors.Is(err, attendance.ErrUnknownPerson),
		errors.Is(err, person.ErrEmptyName),
		errors.Is(err, account.ErrEmptyUsername),
		errors.Is(err, account.ErrInvalidRole),
		errors.Is(err, account.ErrMissingSession),
		errors.Is(err, account.ErrPasswordTooShort),
		errors.Is(err, account.ErrEmptyPassword):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		internalError(w, err)
	}
}

// handleHealth handles GET /healthz
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLogin handles POST /api/login
func handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{
		Username: req.Username,
		Password: req.Password,
	}, orchestrators.LoginDeps{AccountStore: stores.AccountStore})
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, account.ErrAccountLocked) {
			status = http.StatusLocked
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	token, err := sessions.Create(middleware.Session{
		AccountID:    result.AccountID,
		Username:     result.Username,
		DisplayName:  result.DisplayName,
		Role:         result.Role,
		BoundSession: result.BoundSession,
	})
	if err != nil {
		internalError(w, err)
		return
	}

	middleware.SetSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{
		"username":      result.Username,
		"display_name":  result.DisplayName,
		"role":          result.Role,
		"bound_session": result.BoundSession,
	})
}

// handleLogout handles POST /api/logout
func handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if cookie, err := r.Cookie("rollcall_session"); err == nil {
		sessions.Delete(cookie.Value)
	}
	middleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleRoster handles GET (list) and POST (add person) for /api/roster
func handleRoster(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.GetSessionFromContext(r.Context())

	switch r.Method {
	case "GET":
		var (
			people []person.Person
			err    error
		)
		if r.URL.Query().Get("all") == "1" {
			people, err = stores.PersonStore.List(r.Context())
		} else {
			people, err = stores.PersonStore.ListActive(r.Context())
		}
		if err != nil {
			internalError(w, err)
			return
		}
		type entry struct {
			ID     int64  `json:"id"`
			Name   string `json:"name"`
			Active bool   `json:"active"`
		}
		out := make([]entry, 0, len(people))
		for _, p := range people {
			out = append(out, entry{ID: p.ID, Name: p.Name, Active: p.Active})
		}
		writeJSON(w, http.StatusOK, out)

	case "POST":
		var req struct {
			Name string `json:"name"`
		}
		if err := strictDecode(r, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		created, err := orchestrators.ExecuteAddPerson(r.Context(), orchestrators.AddPersonInput{
			Name:  req.Name,
			Actor: actorFromSession(session),
		}, orchestrators.RosterDeps{
			RosterStore: stores.PersonStore,
			AuditStore:  stores.AuditStore,
		})
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": created.ID, "name": created.Name})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleRenamePerson handles POST /api/roster/rename
func handleRenamePerson(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, _ := middleware.GetSessionFromContext(r.Context())

	var req struct {
		PersonID int64  `json:"person_id"`
		Name     string `json:"name"`
	}
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := orchestrators.ExecuteRenamePerson(r.Context(), orchestrators.RenamePersonInput{
		PersonID: req.PersonID,
		NewName:  req.Name,
		Actor:    actorFromSession(session),
	}, orchestrators.RosterDeps{
		RosterStore: stores.PersonStore,
		AuditStore:  stores.AuditStore,
	})
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

// handleSetPersonActive handles POST /api/roster/active
func handleSetPersonActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, _ := middleware.GetSessionFromContext(r.Context())

	var req struct {
		PersonID int64 `json:"person_id"`
		Active   bool  `json:"active"`
	}
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := orchestrators.ExecuteSetPersonActive(r.Context(), orchestrators.SetPersonActiveInput{
		PersonID: req.PersonID,
		Active:   req.Active,
		Actor:    actorFromSession(session),
	}, orchestrators.RosterDeps{
		RosterStore: stores.PersonStore,
		AuditStore:  stores.AuditStore,
	})
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleAttendance handles GET (query records) and POST (submit marks)
// for /api/attendance
func handleAttendance(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		handleAttendanceQuery(w, r)
	case "POST":
		handleAttendanceSubmit(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func handleAttendanceQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := attendanceStore.Filter{
		DateFrom: q.Get("from"),
		DateTo:   q.Get("to"),
		Session:  attendance.Session(q.Get("session")),
	}
	if raw := q.Get("person_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid person_id", http.StatusBadRequest)
			return
		}
		filter.PersonID = id
	}

	records, err := stores.RecordStore.Query(r.Context(), filter)
	if err != nil {
		internalError(w, err)
		return
	}

	type entry struct {
		Date     string `json:"date"`
		Session  string `json:"session"`
		PersonID int64  `json:"person_id"`
		Status   string `json:"status"`
		MarkedBy string `json:"marked_by"`
		MarkedAt string `json:"marked_at"`
	}
	out := make([]entry, 0, len(records))
	for _, rec := range records {
		out = append(out, entry{
			Date:     rec.Date,
			Session:  string(rec.Session),
			PersonID: rec.PersonID,
			Status:   string(rec.Status),
			MarkedBy: rec.MarkedBy,
			MarkedAt: rec.MarkedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func handleAttendanceSubmit(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.GetSessionFromContext(r.Context())

	var req struct {
		Date    string            `json:"date"`
		Session string            `json:"session"`
		Marks   map[string]string `json:"marks"` // person ID -> status code
	}
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	marks := make(map[int64]attendance.Status, len(req.Marks))
	for rawID, rawStatus := range req.Marks {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid person id %q", rawID), http.StatusBadRequest)
			return
		}
		marks[id] = attendance.Status(rawStatus)
	}

	result, err := orchestrators.ExecuteSubmitAttendance(r.Context(), orchestrators.SubmitAttendanceInput{
		Draft: attendance.Draft{
			Date:    req.Date,
			Session: attendance.Session(req.Session),
			Marks:   marks,
		},
		Actor: actorFromSession(session),
	}, orchestrators.SubmitAttendanceDeps{
		RosterStore: stores.PersonStore,
		RecordStore: stores.RecordStore,
		LockStore:   stores.LockStore,
		AuditStore:  stores.AuditStore,
		Keys:        submitKeys,
	})
	if err != nil {
		domainError(w, err)
		return
	}

	lockState.Invalidate(result.Date, result.Session)

	summary := make(map[string]int, len(result.Summary))
	for status, n := range result.Summary {
		summary[string(status)] = n
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"date":            result.Date,
		"session":         result.Session,
		"records_written": result.RecordsWritten,
		"summary":         summary,
	})
}

// handleAttendanceState handles GET /api/attendance/state
func handleAttendanceState(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	date := r.URL.Query().Get("date")
	sess := attendance.Session(r.URL.Query().Get("session"))
	if !attendance.ValidDate(date) || !attendance.ValidSession(sess) {
		http.Error(w, "date and session query parameters are required", http.StatusBadRequest)
		return
	}

	locked, err := lockState.IsLocked(r.Context(), date, sess)
	if err != nil {
		internalError(w, err)
		return
	}
	submitted, err := lockState.HasSubmission(r.Context(), date, sess)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":      date,
		"session":   sess,
		"locked":    locked,
		"submitted": submitted,
	})
}

// handleSetLock handles POST /api/admin/lock
func handleSetLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, _ := middleware.GetSessionFromContext(r.Context())

	var req struct {
		Date    string `json:"date"`
		Session string `json:"session"`
		Locked  bool   `json:"locked"`
	}
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := orchestrators.ExecuteSetLock(r.Context(), orchestrators.SetLockInput{
		Date:    req.Date,
		Session: attendance.Session(req.Session),
		Locked:  req.Locked,
		Actor:   actorFromSession(session),
	}, orchestrators.SetLockDeps{
		LockStore:   stores.LockStore,
		RecordStore: stores.RecordStore,
		AuditStore:  stores.AuditStore,
	})
	if err != nil {
		domainError(w, err)
		return
	}

	lockState.Invalidate(req.Date, attendance.Session(req.Session))
	writeJSON(w, http.StatusOK, map[string]any{
		"date":    req.Date,
		"session": req.Session,
		"locked":  req.Locked,
	})
}

// handleAnalytics handles GET /api/analytics
func handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	query := projections.GetAnalyticsQuery{
		DateFrom: q.Get("from"),
		DateTo:   q.Get("to"),
		Session:  attendance.Session(q.Get("session")),
	}
	if raw := q.Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > 100 {
			http.Error(w, "invalid threshold", http.StatusBadRequest)
			return
		}
		query.FlagThreshold = v
	}
	if raw := q.Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid top", http.StatusBadRequest)
			return
		}
		query.TopN = n
	}

	result, err := projections.QueryGetAnalytics(r.Context(), query, projections.GetAnalyticsDeps{
		RecordStore: stores.RecordStore,
		RosterStore: stores.PersonStore,
	})
	if err != nil {
		domainError(w, err)
		return
	}

	type standing struct {
		PersonID   int64   `json:"person_id"`
		Name       string  `json:"name"`
		Percentage float64 `json:"percentage"`
		Records    int     `json:"records"`
	}
	standings := func(in []projections.PersonStanding) []standing {
		out := make([]standing, 0, len(in))
		for _, s := range in {
			out = append(out, standing{
				PersonID:   s.Person.ID,
				Name:       s.Person.Name,
				Percentage: s.Percentage,
				Records:    s.Records,
			})
		}
		return out
	}

	distribution := make(map[string]int, len(result.Distribution))
	for status, n := range result.Distribution {
		distribution[string(status)] = n
	}
	monthly := make([]map[string]any, 0, len(result.Monthly))
	for _, m := range result.Monthly {
		monthly = append(monthly, map[string]any{"month": m.Month, "count": m.Count})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_records": result.TotalRecords,
		"distribution":  distribution,
		"flagged":       standings(result.Flagged),
		"leaderboard":   standings(result.Leaderboard),
		"monthly":       monthly,
	})
}

// handleExport handles GET /api/export, streaming an xlsx workbook.
func handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	data, err := projections.QueryGetReportData(r.Context(), projections.GetReportDataQuery{
		DateFrom: q.Get("from"),
		DateTo:   q.Get("to"),
		Session:  attendance.Session(q.Get("session")),
	}, projections.GetReportDataDeps{
		RecordStore: stores.RecordStore,
		RosterStore: stores.PersonStore,
	})
	if err != nil {
		domainError(w, err)
		return
	}

	blob, err := export.WriteXLSX(data)
	if err != nil {
		internalError(w, err)
		return
	}

	filename := fmt.Sprintf("attendance-%s.xlsx", timeNow().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	if _, err := w.Write(blob); err != nil {
		slog.Error("export_write_failed", "error", err.Error())
	}
}

// handleCreateAccount handles POST /api/admin/accounts
func handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, _ := middleware.GetSessionFromContext(r.Context())

	var req struct {
		Username     string `json:"username"`
		Password     string `json:"password"`
		DisplayName  string `json:"display_name"`
		Role         string `json:"role"`
		BoundSession string `json:"bound_session"`
	}
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	created, err := orchestrators.ExecuteCreateAccount(r.Context(), orchestrators.CreateAccountInput{
		Username:     req.Username,
		Password:     req.Password,
		DisplayName:  req.DisplayName,
		Role:         req.Role,
		BoundSession: attendance.Session(req.BoundSession),
		Actor:        actorFromSession(session),
	}, orchestrators.CreateAccountDeps{
		AccountStore: stores.AccountStore,
		AuditStore:   stores.AuditStore,
	})
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       created.ID,
		"username": created.Username,
		"role":     created.Role,
	})
}

// handleAuditList handles GET /api/admin/audit
func handleAuditList(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	var filter auditStore.Filter
	if raw := q.Get("category"); raw != "" {
		c := audit.Category(raw)
		filter.Category = &c
	}
	if raw := q.Get("date"); raw != "" {
		filter.Date = &raw
	}
	if raw := q.Get("session"); raw != "" {
		filter.Session = &raw
	}

	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := stores.AuditStore.List(r.Context(), filter, limit)
	if err != nil {
		internalError(w, err)
		return
	}

	type entry struct {
		ID          string `json:"id"`
		Timestamp   string `json:"timestamp"`
		Category    string `json:"category"`
		Action      string `json:"action"`
		Severity    string `json:"severity"`
		ActorID     string `json:"actor_id"`
		ActorName   string `json:"actor_name"`
		Date        string `json:"date,omitempty"`
		Session     string `json:"session,omitempty"`
		Description string `json:"description"`
	}
	out := make([]entry, 0, len(events))
	for _, e := range events {
		out = append(out, entry{
			ID:          e.ID,
			Timestamp:   e.Timestamp.Format(time.RFC3339),
			Category:    string(e.Category),
			Action:      string(e.Action),
			Severity:    string(e.Severity),
			ActorID:     e.ActorID,
			ActorName:   e.ActorName,
			Date:        e.Date,
			Session:     e.Session,
			Description: e.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAlertScan handles POST /api/admin/alerts, running the red-flag
// digest scan on demand.
func handleAlertScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Date      string  `json:"date"`
		Threshold float64 `json:"threshold"`
	}
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		req.Date = timeNow().Format(attendance.DateLayout)
	}

	result, err := orchestrators.ExecuteFlagAlerts(r.Context(), orchestrators.FlagAlertsInput{
		Date:       req.Date,
		Threshold:  req.Threshold,
		Recipients: alertRecipients,
	}, orchestrators.FlagAlertsDeps{
		RecordStore: stores.RecordStore,
		RosterStore: stores.PersonStore,
		OutboxStore: stores.OutboxStore,
	})
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":     req.Date,
		"flagged":  result.FlaggedCount,
		"enqueued": result.Enqueued,
	})
}

// handlePerfSnapshot handles GET /api/admin/perf
func handlePerfSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	minutes := 15
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 24*60 {
			http.Error(w, "invalid minutes", http.StatusBadRequest)
			return
		}
		minutes = n
	}
	topN := 10
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			http.Error(w, "invalid top", http.StatusBadRequest)
			return
		}
		topN = n
	}

	since := timeNow().Add(-time.Duration(minutes) * time.Minute)
	snapshot := perfCollector.Snapshot(since, topN)
	writeJSON(w, http.StatusOK, snapshot)
}
