package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	attendance "axiapac.com/workforce/attendance/core"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	TableAssignmentScheduleSync = "assignment_schedule_sync"
	TableAttendanceIntegrity    = "attendance_integrity"
	TableUserIntegrity          = "user_integrity"
)

type scan struct {
	table string
	run   func(ctx context.Context, db *gorm.DB, report *ConsistencyReport) error
}

// Auditor checks and repairs the attendance tables of one company database.
type Auditor struct {
	db           *gorm.DB
	policy       attendance.WorkPolicy
	queryTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
	scans        []scan
}

type Option func(*Auditor)

func WithClock(now func() time.Time) Option {
	return func(a *Auditor) { a.now = now }
}

func WithQueryTimeout(d time.Duration) Option {
	return func(a *Auditor) { a.queryTimeout = d }
}

func NewAuditor(db *gorm.DB, policy attendance.WorkPolicy, opts ...Option) *Auditor {
	a := &Auditor{
		db:           db,
		policy:       policy,
		queryTimeout: 30 * time.Second,
		now:          time.Now,
		logger:       slog.With("component", "audit"),
	}
	a.scans = []scan{
		{table: TableAssignmentScheduleSync, run: a.checkAssignmentScheduleSync},
		{table: TableAttendanceIntegrity, run: a.checkAttendanceIntegrity},
		{table: TableUserIntegrity, run: a.checkUserIntegrity},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunFullCheck runs every scan concurrently. A scan that fails or panics
// yields a report with a single error issue; the others still complete.
func (a *Auditor) RunFullCheck(ctx context.Context) []ConsistencyReport {
	reports := make([]ConsistencyReport, len(a.scans))
	var g errgroup.Group
	for i, s := range a.scans {
		i, s := i, s
		g.Go(func() error {
			reports[i] = a.runScan(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (a *Auditor) runScan(ctx context.Context, s scan) (report ConsistencyReport) {
	report = ConsistencyReport{TableName: s.table, Issues: []Issue{}, LastChecked: a.now()}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("consistency scan panicked", "table", s.table, "panic", r)
			report = failedReport(s.table, fmt.Errorf("panic: %v", r), a.now())
		}
	}()

	qctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()
	if err := s.run(qctx, a.db.WithContext(qctx), &report); err != nil {
		a.logger.Error("consistency scan failed", "table", s.table, "error", err)
		return failedReport(s.table, err, a.now())
	}
	return report
}

func failedReport(table string, err error, now time.Time) ConsistencyReport {
	return ConsistencyReport{
		TableName:   table,
		Issues:      []Issue{{Type: IssueError, Description: "check failed: " + err.Error(), Count: 1}},
		LastChecked: now,
	}
}

// schedules that no assignment covers, matching null site/project as empty
const uncoveredSchedules = `
FROM schedules s
WHERE NOT EXISTS (
	SELECT 1 FROM employee_assignments a
	WHERE a.user_id = s.user_id
	AND COALESCE(a.site_name, '') = COALESCE(s.site_name, '')
	AND COALESCE(a.project_name, '') = COALESCE(s.project_name, '')
	AND (a.start_date IS NULL OR a.start_date <= s.date)
	AND (a.end_date IS NULL OR a.end_date >= s.date)
)`

func (a *Auditor) checkAssignmentScheduleSync(ctx context.Context, db *gorm.DB, report *ConsistencyReport) error {
	if err := db.Table("employee_assignments").Count(&report.TotalRecords).Error; err != nil {
		return err
	}

	var uncovered int64
	if err := db.Raw("SELECT COUNT(*) " + uncoveredSchedules).Scan(&uncovered).Error; err != nil {
		return err
	}
	report.add(IssueError, uncovered, "schedules without a covering assignment")

	var unscheduled int64
	err := db.Raw(`
		SELECT COUNT(*) FROM employee_assignments a
		WHERE a.end_date IS NULL
		AND NOT EXISTS (
			SELECT 1 FROM schedules s
			WHERE s.user_id = a.user_id
			AND COALESCE(s.site_name, '') = COALESCE(a.site_name, '')
			AND COALESCE(s.project_name, '') = COALESCE(a.project_name, '')
		)`).Scan(&unscheduled).Error
	if err != nil {
		return err
	}
	report.add(IssueWarning, unscheduled, "open-ended assignments without any schedule")
	return nil
}

// clock events that no entry and no day points at
const orphanedEvents = `
FROM clock_events e
WHERE NOT EXISTS (
	SELECT 1 FROM attendance_entries n
	WHERE n.clock_in_event_id = e.id OR n.clock_out_event_id = e.id
)
AND NOT EXISTS (
	SELECT 1 FROM attendance_days d
	WHERE d.clock_in_event_id = e.id OR d.clock_out_event_id = e.id
)`

func (a *Auditor) checkAttendanceIntegrity(ctx context.Context, db *gorm.DB, report *ConsistencyReport) error {
	if err := db.Table("clock_events").Count(&report.TotalRecords).Error; err != nil {
		return err
	}

	var orphaned int64
	if err := db.Raw("SELECT COUNT(*) " + orphanedEvents).Scan(&orphaned).Error; err != nil {
		return err
	}
	report.add(IssueError, orphaned, "clock events not linked to any attendance entry or day")

	var dayless int64
	err := db.Raw(`
		SELECT COUNT(*) FROM attendance_entries n
		WHERE NOT EXISTS (
			SELECT 1 FROM attendance_days d WHERE d.user_id = n.user_id AND d.date = n.date
		)`).Scan(&dayless).Error
	if err != nil {
		return err
	}
	report.add(IssueError, dayless, "attendance entries without an attendance day")

	var stale int64
	cutoff := a.now().Add(-attendance.MaxShiftLength).UnixMilli()
	err = db.Raw(`
		SELECT COUNT(*) FROM attendance_entries n
		JOIN clock_events e ON e.id = n.clock_in_event_id
		WHERE n.clock_out_event_id IS NULL AND e.timestamp_ms < ?`, cutoff).Scan(&stale).Error
	if err != nil {
		return err
	}
	report.add(IssueWarning, stale, "clock-ins older than 24 hours without a clock-out")

	var negative int64
	err = db.Table("attendance_days").
		Where("normal_hours < 0 OR overtime_hours < 0").
		Count(&negative).Error
	if err != nil {
		return err
	}
	report.add(IssueError, negative, "attendance days with negative hours")
	return nil
}

func (a *Auditor) checkUserIntegrity(ctx context.Context, db *gorm.DB, report *ConsistencyReport) error {
	if err := db.Table("users").Count(&report.TotalRecords).Error; err != nil {
		return err
	}

	var duplicated int64
	err := db.Raw(`
		SELECT COUNT(*) FROM (
			SELECT employee_no FROM users GROUP BY employee_no HAVING COUNT(*) > 1
		) dup`).Scan(&duplicated).Error
	if err != nil {
		return err
	}
	report.add(IssueError, duplicated, "employee numbers shared by more than one user")

	var negative int64
	if err := db.Table("leave_balances").Where("balance < 0").Count(&negative).Error; err != nil {
		return err
	}
	report.add(IssueWarning, negative, "negative leave balances")
	return nil
}
