package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	attendance "axiapac.com/workforce/attendance/core"
	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	testNow    = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	testPolicy = attendance.WorkPolicy{Location: time.UTC, WorkStart: "08:00", WorkEnd: "17:00", StandardHours: 8}
)

func openTenantDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "tenant.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.TenantModels()...))
	return db
}

func newTestAuditor(db *gorm.DB) *Auditor {
	return NewAuditor(db, testPolicy, WithClock(func() time.Time { return testNow }))
}

func event(id string, userID uint, kind model.ClockType, ts time.Time, site *string) model.ClockEvent {
	return model.ClockEvent{ID: id, UserID: userID, Type: kind, Timestamp: ts.UnixMilli(), Method: model.MethodButton, SiteName: site}
}

func reportFor(t *testing.T, reports []ConsistencyReport, table string) ConsistencyReport {
	t.Helper()
	for _, r := range reports {
		if r.TableName == table {
			return r
		}
	}
	t.Fatalf("no report for %s", table)
	return ConsistencyReport{}
}

func issueCount(r ConsistencyReport, description string) int64 {
	for _, issue := range r.Issues {
		if issue.Description == description {
			return issue.Count
		}
	}
	return 0
}

// seedInconsistencies creates one instance of every repairable problem.
func seedInconsistencies(t *testing.T, db *gorm.DB) {
	t.Helper()
	north := utils.Ptr("North")
	require.NoError(t, db.Create(&[]model.User{
		{EmployeeNo: "E1", Name: "One", Active: true},
		{EmployeeNo: "E2", Name: "Two", Active: true},
	}).Error)

	// schedule without assignment, assignment without schedule
	require.NoError(t, db.Create(&model.Schedule{UserID: 1, Date: "2025-03-03", SiteName: north}).Error)
	require.NoError(t, db.Create(&model.EmployeeAssignment{UserID: 1, SiteName: utils.Ptr("South")}).Error)

	// clock-in and clock-out that never made it into an entry
	require.NoError(t, db.Create(&[]model.ClockEvent{
		event("ev-in", 1, model.ClockIn, time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC), north),
		event("ev-out", 1, model.ClockOut, time.Date(2025, 3, 3, 16, 0, 0, 0, time.UTC), north),
		event("ev2-in", 2, model.ClockIn, time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC), nil),
		event("ev2-out", 2, model.ClockOut, time.Date(2025, 3, 2, 17, 0, 0, 0, time.UTC), nil),
	}).Error)

	// entry without a day
	require.NoError(t, db.Create(&model.AttendanceEntry{
		UserID: 2, Date: "2025-03-02", ClockInEventID: utils.Ptr("ev2-in"), ClockOutEventID: utils.Ptr("ev2-out"),
	}).Error)

	// day with negative hours and nothing behind it
	require.NoError(t, db.Create(&model.AttendanceDay{UserID: 2, Date: "2025-03-01", NormalHours: -2, Status: model.StatusPresent}).Error)
}

func TestRunFullCheckCleanDatabase(t *testing.T) {
	reports := newTestAuditor(openTenantDB(t)).RunFullCheck(context.Background())
	require.Len(t, reports, 3)
	assert.Equal(t, TableAssignmentScheduleSync, reports[0].TableName)
	assert.Equal(t, TableAttendanceIntegrity, reports[1].TableName)
	assert.Equal(t, TableUserIntegrity, reports[2].TableName)
	for _, r := range reports {
		assert.Empty(t, r.Issues, r.TableName)
		assert.Equal(t, testNow, r.LastChecked)
	}
}

func TestRunFullCheckReportsIssues(t *testing.T) {
	db := openTenantDB(t)
	seedInconsistencies(t, db)
	require.NoError(t, db.Create(&model.User{EmployeeNo: "E1", Name: "Copy", Active: true}).Error)
	require.NoError(t, db.Create(&model.LeaveBalance{UserID: 1, LeaveType: "annual", Balance: -4}).Error)
	// open since yesterday morning
	require.NoError(t, db.Create(&model.ClockEvent{ID: "ev3-in", UserID: 2, Type: model.ClockIn, Timestamp: testNow.Add(-30 * time.Hour).UnixMilli(), Method: model.MethodButton}).Error)
	require.NoError(t, db.Create(&model.AttendanceEntry{UserID: 2, Date: "2025-03-03", ClockInEventID: utils.Ptr("ev3-in")}).Error)

	reports := newTestAuditor(db).RunFullCheck(context.Background())

	sync := reportFor(t, reports, TableAssignmentScheduleSync)
	assert.Equal(t, int64(1), sync.TotalRecords)
	assert.Equal(t, int64(1), issueCount(sync, "schedules without a covering assignment"))
	assert.Equal(t, int64(1), issueCount(sync, "open-ended assignments without any schedule"))

	integrity := reportFor(t, reports, TableAttendanceIntegrity)
	assert.Equal(t, int64(5), integrity.TotalRecords)
	assert.Equal(t, int64(2), issueCount(integrity, "clock events not linked to any attendance entry or day"))
	assert.Equal(t, int64(2), issueCount(integrity, "attendance entries without an attendance day"))
	assert.Equal(t, int64(1), issueCount(integrity, "clock-ins older than 24 hours without a clock-out"))
	assert.Equal(t, int64(1), issueCount(integrity, "attendance days with negative hours"))

	users := reportFor(t, reports, TableUserIntegrity)
	assert.Equal(t, int64(3), users.TotalRecords)
	assert.Equal(t, int64(1), issueCount(users, "employee numbers shared by more than one user"))
	assert.Equal(t, int64(1), issueCount(users, "negative leave balances"))
	assert.Equal(t, int64(1), users.Errors())
	assert.Equal(t, int64(1), users.Warnings())
}

func TestRunFullCheckSurvivesFailingScan(t *testing.T) {
	db := openTenantDB(t)
	require.NoError(t, db.Migrator().DropTable(&model.LeaveBalance{}))

	reports := newTestAuditor(db).RunFullCheck(context.Background())
	require.Len(t, reports, 3)

	failed := reportFor(t, reports, TableUserIntegrity)
	require.Len(t, failed.Issues, 1)
	assert.Equal(t, IssueError, failed.Issues[0].Type)
	assert.Contains(t, failed.Issues[0].Description, "check failed")

	assert.Empty(t, reportFor(t, reports, TableAssignmentScheduleSync).Issues)
	assert.Empty(t, reportFor(t, reports, TableAttendanceIntegrity).Issues)
}

func TestRunFullCheckRecoversPanics(t *testing.T) {
	a := newTestAuditor(openTenantDB(t))
	a.scans = append(a.scans,
		scan{table: "exploding", run: func(context.Context, *gorm.DB, *ConsistencyReport) error {
			panic("boom")
		}},
		scan{table: "erroring", run: func(context.Context, *gorm.DB, *ConsistencyReport) error {
			return errors.New("no such table")
		}},
	)

	reports := a.RunFullCheck(context.Background())
	require.Len(t, reports, 5)
	assert.Contains(t, reportFor(t, reports, "exploding").Issues[0].Description, "panic: boom")
	assert.Contains(t, reportFor(t, reports, "erroring").Issues[0].Description, "no such table")
	assert.Empty(t, reportFor(t, reports, TableUserIntegrity).Issues)
}

func TestFixIsIdempotent(t *testing.T) {
	db := openTenantDB(t)
	seedInconsistencies(t, db)
	a := newTestAuditor(db)
	ctx := context.Background()

	first := a.Fix(ctx)
	assert.Empty(t, first.Errors)
	// assignment, clock-in, clock-out, three days
	assert.Equal(t, 6, first.Fixed)

	second := a.Fix(ctx)
	assert.Empty(t, second.Errors)
	assert.Zero(t, second.Fixed)

	var entry model.AttendanceEntry
	require.NoError(t, db.Where("clock_in_event_id = ?", "ev-in").Take(&entry).Error)
	assert.Equal(t, "2025-03-03", entry.Date)
	assert.Equal(t, "North", entry.SiteName)
	assert.Equal(t, "ev-out", utils.Deref(entry.ClockOutEventID))

	var day model.AttendanceDay
	require.NoError(t, db.Where("user_id = ? AND date = ?", 1, "2025-03-03").Take(&day).Error)
	assert.Equal(t, 8.0, day.NormalHours)
	assert.Equal(t, model.StatusEarlyExit, day.Status)

	require.NoError(t, db.Where("user_id = ? AND date = ?", 2, "2025-03-01").Take(&day).Error)
	assert.Zero(t, day.NormalHours)
	assert.Equal(t, model.StatusAbsent, day.Status)

	reports := a.RunFullCheck(ctx)
	assert.Zero(t, reportFor(t, reports, TableAssignmentScheduleSync).Errors())
	assert.Empty(t, reportFor(t, reports, TableAttendanceIntegrity).Issues)
}

func TestFixLeavesAmbiguousClockOut(t *testing.T) {
	db := openTenantDB(t)
	require.NoError(t, db.Create(&[]model.ClockEvent{
		event("in-a", 1, model.ClockIn, time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC), utils.Ptr("A")),
		event("in-b", 1, model.ClockIn, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), utils.Ptr("B")),
		event("out", 1, model.ClockOut, time.Date(2025, 3, 3, 17, 0, 0, 0, time.UTC), nil),
	}).Error)
	require.NoError(t, db.Create(&[]model.AttendanceEntry{
		{UserID: 1, Date: "2025-03-03", SiteName: "A", ClockInEventID: utils.Ptr("in-a")},
		{UserID: 1, Date: "2025-03-03", SiteName: "B", ClockInEventID: utils.Ptr("in-b")},
	}).Error)

	res := newTestAuditor(db).Fix(context.Background())
	assert.Empty(t, res.Errors)

	var open int64
	require.NoError(t, db.Model(&model.AttendanceEntry{}).Where("clock_out_event_id IS NULL").Count(&open).Error)
	assert.Equal(t, int64(2), open, "a clock-out without site is not guessed between two entries")
}
