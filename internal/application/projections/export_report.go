package projections

import (
	"context"

	attendanceStore "rollcall/internal/adapters/storage/attendance"
	"rollcall/internal/domain/attendance"
	"rollcall/internal/domain/person"
)

// ExportRosterStore defines the roster store interface needed by export.
type ExportRosterStore interface {
	List(ctx context.Context) ([]person.Person, error)
}

// GetReportDataQuery carries filter input for the report export.
type GetReportDataQuery struct {
	DateFrom string
	DateTo   string
	Session  attendance.Session
}

// ReportRow is one exported record with the person's name resolved.
type ReportRow struct {
	Date       string
	Session    attendance.Session
	PersonID   int64
	PersonName string
	Status     attendance.Status
}

// GetReportDataResult carries everything the exporter needs: the
// filtered rows plus the summary counts. Formatting stays out of the
// core; the export adapter turns this into bytes.
type GetReportDataResult struct {
	Rows    []ReportRow
	Summary map[attendance.Status]int
}

// GetReportDataDeps holds dependencies for the report projection.
type GetReportDataDeps struct {
	RecordStore AnalyticsRecordStore
	RosterStore ExportRosterStore
}

// QueryGetReportData collects the filtered record set for export.
// Includes deactivated people so historical reports stay complete.
// PRE: filter dates, when set, are YYYY-MM-DD
// POST: Rows follow store order (date, session, person); Summary covers
// every status
func QueryGetReportData(ctx context.Context, query GetReportDataQuery, deps GetReportDataDeps) (GetReportDataResult, error) {
	records, err := deps.RecordStore.Query(ctx, attendanceStore.Filter{
		DateFrom: query.DateFrom,
		DateTo:   query.DateTo,
		Session:  query.Session,
	})
	if err != nil {
		return GetReportDataResult{}, err
	}
	people, err := deps.RosterStore.List(ctx)
	if err != nil {
		return GetReportDataResult{}, err
	}

	names := make(map[int64]string, len(people))
	for _, p := range people {
		names[p.ID] = p.Name
	}

	rows := make([]ReportRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, ReportRow{
			Date:       r.Date,
			Session:    r.Session,
			PersonID:   r.PersonID,
			PersonName: names[r.PersonID],
			Status:     r.Status,
		})
	}

	return GetReportDataResult{
		Rows:    rows,
		Summary: StatusDistribution(records),
	}, nil
}
