package projections

import (
	"context"
	"sort"

	attendanceStore "rollcall/internal/adapters/storage/attendance"
	"rollcall/internal/domain/attendance"
	"rollcall/internal/domain/person"
)

// Aggregation defaults.
const (
	DefaultFlagThreshold = 75.0
	DefaultLeaderboardN  = 10
	// MinLeaderboardRecords keeps people with almost no history off the
	// leaderboard; one lucky Present should not rank above a full month.
	MinLeaderboardRecords = 5
)

// AnalyticsRecordStore defines the record store interface needed by analytics.
type AnalyticsRecordStore interface {
	Query(ctx context.Context, filter attendanceStore.Filter) ([]attendance.Record, error)
}

// AnalyticsRosterStore defines the roster store interface needed by analytics.
type AnalyticsRosterStore interface {
	ListActive(ctx context.Context) ([]person.Person, error)
}

// GetAnalyticsQuery carries input for the analytics projection. Zero
// filter fields mean "all".
type GetAnalyticsQuery struct {
	DateFrom      string // inclusive YYYY-MM-DD
	DateTo        string // inclusive YYYY-MM-DD
	Session       attendance.Session
	FlagThreshold float64 // default DefaultFlagThreshold
	TopN          int     // default DefaultLeaderboardN
}

// PersonStanding pairs a person with their computed attendance percentage.
type PersonStanding struct {
	Person     person.Person
	Percentage float64
	Records    int
}

// MonthCount is one chronological bucket of Present marks.
type MonthCount struct {
	Month string // YYYY-MM
	Count int
}

// GetAnalyticsResult carries the output of the analytics projection.
type GetAnalyticsResult struct {
	TotalRecords int
	Distribution map[attendance.Status]int
	Flagged      []PersonStanding
	Leaderboard  []PersonStanding
	Monthly      []MonthCount
}

// GetAnalyticsDeps holds dependencies for the analytics projection.
type GetAnalyticsDeps struct {
	RecordStore AnalyticsRecordStore
	RosterStore AnalyticsRosterStore
}

// QueryGetAnalytics derives all reporting views from one record snapshot.
// Read-only; never touches locks or records.
// PRE: filter dates, when set, are YYYY-MM-DD
// POST: Distribution covers every status; orderings are deterministic
func QueryGetAnalytics(ctx context.Context, query GetAnalyticsQuery, deps GetAnalyticsDeps) (GetAnalyticsResult, error) {
	threshold := query.FlagThreshold
	if threshold <= 0 {
		threshold = DefaultFlagThreshold
	}
	topN := query.TopN
	if topN <= 0 {
		topN = DefaultLeaderboardN
	}

	records, err := deps.RecordStore.Query(ctx, attendanceStore.Filter{
		DateFrom: query.DateFrom,
		DateTo:   query.DateTo,
		Session:  query.Session,
	})
	if err != nil {
		return GetAnalyticsResult{}, err
	}
	roster, err := deps.RosterStore.ListActive(ctx)
	if err != nil {
		return GetAnalyticsResult{}, err
	}

	standings := computeStandings(roster, records)

	return GetAnalyticsResult{
		TotalRecords: len(records),
		Distribution: StatusDistribution(records),
		Flagged:      Flagged(standings, threshold),
		Leaderboard:  Leaderboard(standings, topN),
		Monthly:      MonthlyPresentCounts(records),
	}, nil
}

// StatusDistribution counts records per status. Every status appears in
// the result, zero-filled when absent from the record set.
// POST: len(result) == len(attendance.Statuses)
func StatusDistribution(records []attendance.Record) map[attendance.Status]int {
	dist := attendance.NewSummary()
	for _, r := range records {
		if _, ok := dist[r.Status]; ok {
			dist[r.Status]++
		}
	}
	return dist
}

// AttendancePercentage returns 100 * Present / total for one person over
// the record set, and exactly 0 when the person has no records.
// POST: result is in [0, 100]
func AttendancePercentage(records []attendance.Record, personID int64) float64 {
	total, present := 0, 0
	for _, r := range records {
		if r.PersonID != personID {
			continue
		}
		total++
		if r.Status == attendance.StatusPresent {
			present++
		}
	}
	if total == 0 {
		return 0
	}
	return 100 * float64(present) / float64(total)
}

// Flagged returns active people strictly below threshold, worst first.
// Ties break by ascending person ID for a stable ordering.
func Flagged(standings []PersonStanding, threshold float64) []PersonStanding {
	out := []PersonStanding{}
	for _, s := range standings {
		if s.Percentage < threshold {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Percentage != out[j].Percentage {
			return out[i].Percentage < out[j].Percentage
		}
		return out[i].Person.ID < out[j].Person.ID
	})
	return out
}

// Leaderboard ranks active people with enough history by percentage
// descending. Ties break by higher record count, then ascending person
// ID, so repeated calls over the same input agree.
func Leaderboard(standings []PersonStanding, topN int) []PersonStanding {
	out := []PersonStanding{}
	for _, s := range standings {
		if s.Records >= MinLeaderboardRecords {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Percentage != out[j].Percentage {
			return out[i].Percentage > out[j].Percentage
		}
		if out[i].Records != out[j].Records {
			return out[i].Records > out[j].Records
		}
		return out[i].Person.ID < out[j].Person.ID
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// MonthlyPresentCounts buckets Present marks by YYYY-MM, chronologically.
func MonthlyPresentCounts(records []attendance.Record) []MonthCount {
	byMonth := make(map[string]int)
	for _, r := range records {
		if r.Status == attendance.StatusPresent {
			byMonth[attendance.MonthKey(r.Date)]++
		}
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	out := make([]MonthCount, 0, len(months))
	for _, m := range months {
		out = append(out, MonthCount{Month: m, Count: byMonth[m]})
	}
	return out
}

// computeStandings pairs each active roster entry with its percentage
// and record count over the filtered record set.
func computeStandings(roster []person.Person, records []attendance.Record) []PersonStanding {
	counts := make(map[int64]int, len(roster))
	for _, r := range records {
		counts[r.PersonID]++
	}
	standings := make([]PersonStanding, 0, len(roster))
	for _, p := range roster {
		standings = append(standings, PersonStanding{
			Person:     p,
			Percentage: AttendancePercentage(records, p.ID),
			Records:    counts[p.ID],
		})
	}
	return standings
}
