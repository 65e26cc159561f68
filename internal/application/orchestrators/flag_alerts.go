package orchestrators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	attendanceStore "rollcall/internal/adapters/storage/attendance"
	"rollcall/internal/application/projections"
	"rollcall/internal/domain/attendance"
	"rollcall/internal/domain/outbox"
	"rollcall/internal/domain/person"
)

// AlertOutboxStore defines the outbox store interface needed by alerts.
type AlertOutboxStore interface {
	Insert(ctx context.Context, value outbox.Entry) (bool, error)
}

// AlertRecordStore defines the record store interface needed by alerts.
type AlertRecordStore interface {
	Query(ctx context.Context, filter attendanceStore.Filter) ([]attendance.Record, error)
}

// AlertRosterStore defines the roster store interface needed by alerts.
type AlertRosterStore interface {
	ListActive(ctx context.Context) ([]person.Person, error)
}

// AlertEmailPayload is the JSON stored in the outbox for replay.
type AlertEmailPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// FlagAlertsInput carries input for the red-flag digest.
type FlagAlertsInput struct {
	Date       string   // digest date, YYYY-MM-DD
	Threshold  float64  // optional: projections.DefaultFlagThreshold when zero
	Recipients []string // warden addresses
}

// FlagAlertsResult reports what the scan produced.
type FlagAlertsResult struct {
	FlaggedCount int
	Enqueued     bool // false when nobody is flagged or today's digest already exists
}

// FlagAlertsDeps holds dependencies for FlagAlerts.
type FlagAlertsDeps struct {
	RecordStore AlertRecordStore
	RosterStore AlertRosterStore
	OutboxStore AlertOutboxStore
}

// ExecuteFlagAlerts scans attendance percentages and queues one digest
// email listing everyone below the threshold. Deduplicated per day
// through the outbox, so repeated scans never double-send.
// PRE: Date is YYYY-MM-DD; Recipients is non-empty
// POST: At most one outbox entry exists per date
func ExecuteFlagAlerts(ctx context.Context, input FlagAlertsInput, deps FlagAlertsDeps) (FlagAlertsResult, error) {
	if !attendance.ValidDate(input.Date) {
		return FlagAlertsResult{}, attendance.ErrInvalidDate
	}
	if len(input.Recipients) == 0 {
		return FlagAlertsResult{}, fmt.Errorf("alert digest needs at least one recipient")
	}
	threshold := input.Threshold
	if threshold <= 0 {
		threshold = projections.DefaultFlagThreshold
	}

	records, err := deps.RecordStore.Query(ctx, attendanceStore.Filter{DateTo: input.Date})
	if err != nil {
		return FlagAlertsResult{}, fmt.Errorf("load records: %w", err)
	}
	roster, err := deps.RosterStore.ListActive(ctx)
	if err != nil {
		return FlagAlertsResult{}, fmt.Errorf("load roster: %w", err)
	}

	standings := make([]projections.PersonStanding, 0, len(roster))
	for _, p := range roster {
		total := 0
		for _, r := range records {
			if r.PersonID == p.ID {
				total++
			}
		}
		standings = append(standings, projections.PersonStanding{
			Person:     p,
			Percentage: projections.AttendancePercentage(records, p.ID),
			Records:    total,
		})
	}
	flagged := projections.Flagged(standings, threshold)
	if len(flagged) == 0 {
		return FlagAlertsResult{FlaggedCount: 0, Enqueued: false}, nil
	}

	html, err := renderAlertBody(input.Date, threshold, flagged)
	if err != nil {
		return FlagAlertsResult{}, fmt.Errorf("render digest: %w", err)
	}

	payload, err := json.Marshal(AlertEmailPayload{
		To:      input.Recipients,
		Subject: fmt.Sprintf("Attendance red flags for %s", input.Date),
		HTML:    html,
	})
	if err != nil {
		return FlagAlertsResult{}, err
	}

	entry := outbox.Entry{
		ID:          uuid.New().String(),
		ActionType:  outbox.ActionTypeAlertEmail,
		DedupeKey:   "alert:" + input.Date,
		Payload:     string(payload),
		Status:      outbox.StatusPending,
		MaxAttempts: 5,
		CreatedAt:   time.Now(),
	}
	if err := entry.Validate(); err != nil {
		return FlagAlertsResult{}, err
	}

	inserted, err := deps.OutboxStore.Insert(ctx, entry)
	if err != nil {
		return FlagAlertsResult{}, fmt.Errorf("enqueue digest: %w", err)
	}

	slog.Info("flag_alert_scan",
		"date", input.Date,
		"flagged", len(flagged),
		"enqueued", inserted,
	)
	return FlagAlertsResult{FlaggedCount: len(flagged), Enqueued: inserted}, nil
}

// renderAlertBody builds the digest in markdown and renders it to HTML.
func renderAlertBody(date string, threshold float64, flagged []projections.PersonStanding) (string, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "## Attendance red flags: %s\n\n", date)
	fmt.Fprintf(&md, "People below %.0f%% attendance, worst first:\n\n", threshold)
	for _, s := range flagged {
		fmt.Fprintf(&md, "- **%s**: %.1f%% over %d records\n", s.Person.Name, s.Percentage, s.Records)
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &html); err != nil {
		return "", err
	}
	return html.String(), nil
}
