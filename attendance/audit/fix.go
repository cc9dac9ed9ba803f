package audit

import (
	"context"
	"fmt"

	attendance "axiapac.com/workforce/attendance/core"
	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fix repairs what the scans report. Every repair runs in its own transaction
// and only touches rows that still need it, so a second run fixes nothing.
func (a *Auditor) Fix(ctx context.Context) FixResult {
	result := FixResult{Errors: []string{}}
	repairs := []struct {
		name string
		run  func(ctx context.Context, result *FixResult) error
	}{
		{"assignments from schedules", a.createAssignmentsFromSchedules},
		{"orphaned clock-ins", a.attachOrphanedClockIns},
		{"orphaned clock-outs", a.attachOrphanedClockOuts},
		{"attendance days", a.recomputeDays},
	}
	for _, r := range repairs {
		if err := r.run(ctx, &result); err != nil {
			a.logger.Error("repair failed", "repair", r.name, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.name, err))
		}
	}
	a.logger.Info("repairs finished", "fixed", result.Fixed, "errors", len(result.Errors))
	return result
}

func (a *Auditor) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	qctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()
	return a.db.WithContext(qctx).Transaction(fn)
}

// createAssignmentsFromSchedules adds a single-day assignment for every
// schedule no assignment covers.
func (a *Auditor) createAssignmentsFromSchedules(ctx context.Context, result *FixResult) error {
	return a.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Exec(`
			INSERT INTO employee_assignments (user_id, site_name, project_name, start_date, end_date)
			SELECT DISTINCT s.user_id, s.site_name, s.project_name, s.date, s.date ` + uncoveredSchedules)
		if res.Error != nil {
			return res.Error
		}
		result.Fixed += int(res.RowsAffected)
		return nil
	})
}

func (a *Auditor) orphans(ctx context.Context, kind model.ClockType) ([]model.ClockEvent, error) {
	qctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()
	var events []model.ClockEvent
	err := a.db.WithContext(qctx).Raw(`
		SELECT e.* FROM clock_events e
		WHERE e.type = ?
		AND NOT EXISTS (
			SELECT 1 FROM attendance_entries n
			WHERE n.clock_in_event_id = e.id OR n.clock_out_event_id = e.id
		)
		ORDER BY e.timestamp_ms`, kind).Scan(&events).Error
	return events, err
}

// attachOrphanedClockIns creates the entry a clock-in event should have opened.
// An existing entry for the same key wins.
func (a *Auditor) attachOrphanedClockIns(ctx context.Context, result *FixResult) error {
	events, err := a.orphans(ctx, model.ClockIn)
	if err != nil {
		return err
	}
	for _, e := range events {
		err := a.transaction(ctx, func(tx *gorm.DB) error {
			entry := model.AttendanceEntry{
				UserID:         e.UserID,
				Date:           attendance.DateOf(e.Time(), a.policy.Location),
				SiteName:       utils.Deref(e.SiteName),
				ProjectName:    utils.Deref(e.ProjectName),
				ClockInEventID: utils.Ptr(e.ID),
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
			if res.Error != nil {
				return res.Error
			}
			result.Fixed += int(res.RowsAffected)
			return nil
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("clock-in %s: %v", e.ID, err))
		}
	}
	return nil
}

// attachOrphanedClockOuts closes the open entry a clock-out event belongs to:
// the entry with the same key, or the only open entry of the day when the
// event names no site or project.
func (a *Auditor) attachOrphanedClockOuts(ctx context.Context, result *FixResult) error {
	events, err := a.orphans(ctx, model.ClockOut)
	if err != nil {
		return err
	}
	for _, e := range events {
		err := a.transaction(ctx, func(tx *gorm.DB) error {
			date := attendance.DateOf(e.Time(), a.policy.Location)
			q := tx.Table("attendance_entries AS n").
				Select("n.id").
				Joins("JOIN clock_events c ON c.id = n.clock_in_event_id").
				Where("n.user_id = ? AND n.date = ? AND n.clock_out_event_id IS NULL AND c.timestamp_ms <= ?", e.UserID, date, e.Timestamp)
			if e.SiteName != nil || e.ProjectName != nil {
				q = q.Where("n.site_name = ? AND n.project_name = ?", utils.Deref(e.SiteName), utils.Deref(e.ProjectName))
			}
			var ids []uint
			if err := q.Scan(&ids).Error; err != nil {
				return err
			}
			if len(ids) != 1 {
				return nil
			}
			res := tx.Model(&model.AttendanceEntry{}).
				Where("id = ? AND clock_out_event_id IS NULL", ids[0]).
				Update("clock_out_event_id", e.ID)
			if res.Error != nil {
				return res.Error
			}
			result.Fixed += int(res.RowsAffected)
			return nil
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("clock-out %s: %v", e.ID, err))
		}
	}
	return nil
}

type dayKey struct {
	UserID uint
	Date   string
}

// recomputeDays rewrites every day whose stored values differ from its entries,
// including days that are missing.
func (a *Auditor) recomputeDays(ctx context.Context, result *FixResult) error {
	var keys []dayKey
	err := func() error {
		qctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()
		return a.db.WithContext(qctx).Raw(`
			SELECT user_id, date FROM attendance_entries
			UNION
			SELECT user_id, date FROM attendance_days
			ORDER BY date, user_id`).Scan(&keys).Error
	}()
	if err != nil {
		return err
	}
	for _, k := range keys {
		err := a.transaction(ctx, func(tx *gorm.DB) error {
			_, changed, err := attendance.RecomputeDay(tx, k.UserID, k.Date, a.policy)
			if err != nil {
				return err
			}
			if changed {
				result.Fixed++
			}
			return nil
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("day %d/%s: %v", k.UserID, k.Date, err))
		}
	}
	return nil
}
