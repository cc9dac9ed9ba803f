package core

import (
	"context"
	"testing"
	"time"

	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historical(row int, emp string, kind model.ClockType, ts time.Time) HistoricalClock {
	return HistoricalClock{Row: row, EmployeeNo: emp, Type: kind, Time: ts}
}

func TestBackfill(t *testing.T) {
	f := newFixture(t)
	p := f.processor(DefaultConfig())
	ctx := context.Background()
	day := func(h, m int) time.Time { return time.Date(2025, 2, 10, h, m, 0, 0, time.UTC) }

	clocks := []HistoricalClock{
		// out of order on purpose
		historical(3, "E100", model.ClockOut, day(17, 30)),
		historical(2, "E100", model.ClockIn, day(7, 55)),
		historical(4, "E999", model.ClockIn, day(8, 0)),
		historical(5, "E100", model.ClockOut, day(18, 0)),
	}

	res, err := p.Backfill(ctx, "acme", clocks)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, BackfillRejection{Row: 4, Reason: ReasonUserNotFound, Message: reasons[ReasonUserNotFound].message}, res.Rejected[0])
	assert.Equal(t, 5, res.Rejected[1].Row)
	assert.Equal(t, ReasonDuplicateClockEvent, res.Rejected[1].Reason)

	var stored model.AttendanceDay
	require.NoError(t, f.db.Where("user_id = ? AND date = ?", f.user.ID, "2025-02-10").Take(&stored).Error)
	assert.Equal(t, 8.0, stored.NormalHours)
	assert.InDelta(t, 1.58, stored.OvertimeHours, 0.001)
	assert.Equal(t, model.StatusPresent, stored.Status)

	var event model.ClockEvent
	require.NoError(t, f.db.Where("id = ?", HistoricalEventID("ACME", clocks[1])).Take(&event).Error)
	assert.Equal(t, model.MethodImport, event.Method)

	// same file again
	again, err := p.Backfill(ctx, "ACME", clocks)
	require.NoError(t, err)
	assert.Zero(t, again.Imported)
	assert.Equal(t, 2, again.Skipped)
	assert.Equal(t, int64(2), countRows(t, f.db, &model.ClockEvent{}))
}

func TestBackfillPerSite(t *testing.T) {
	f := newFixture(t)
	p := f.processor(DefaultConfig())
	day := func(h int) time.Time { return time.Date(2025, 2, 11, h, 0, 0, 0, time.UTC) }

	inA := historical(1, "E100", model.ClockIn, day(8))
	inA.SiteName = utils.Ptr("A")
	outA := historical(2, "E100", model.ClockOut, day(12))
	outA.SiteName = utils.Ptr("A")
	inB := historical(3, "E100", model.ClockIn, day(13))
	inB.SiteName = utils.Ptr("B")
	outB := historical(4, "E100", model.ClockOut, day(17))
	outB.SiteName = utils.Ptr("B")

	res, err := p.Backfill(context.Background(), "ACME", []HistoricalClock{inA, outA, inB, outB})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Imported)
	assert.Empty(t, res.Rejected)
	assert.Equal(t, int64(2), countRows(t, f.db, &model.AttendanceEntry{}))

	var stored model.AttendanceDay
	require.NoError(t, f.db.Where("user_id = ?", f.user.ID).Take(&stored).Error)
	assert.Equal(t, 8.0, stored.NormalHours)
}

func TestBackfillUnknownCompany(t *testing.T) {
	f := newFixture(t)
	_, err := f.processor(DefaultConfig()).Backfill(context.Background(), "NOPE", nil)
	requireReason(t, err, ReasonCompanyNotFound, 404)
}
