package core

import (
	"errors"
	"fmt"

	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WriteOutcome classifies the result of an insert guarded by a unique index.
type WriteOutcome int

const (
	WriteOK WriteOutcome = iota
	WriteDuplicate
	WriteFailed
)

func (o WriteOutcome) String() string {
	switch o {
	case WriteOK:
		return "ok"
	case WriteDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

const mysqlDuplicateEntry = 1062

// ClassifyWrite maps a write error onto WriteOutcome. Pools are opened with
// TranslateError, the raw MySQL code is checked as well for callers that are not.
func ClassifyWrite(err error) WriteOutcome {
	if err == nil {
		return WriteOK
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return WriteDuplicate
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return WriteDuplicate
	}
	return WriteFailed
}

// RecomputeDay rebuilds the attendance day of a user from its entries and
// upserts it. changed is false when the stored row already matched.
func RecomputeDay(tx *gorm.DB, userID uint, date string, policy WorkPolicy) (model.AttendanceDay, bool, error) {
	var entries []model.AttendanceEntry
	if err := tx.Where("user_id = ? AND date = ?", userID, date).Order("id").Find(&entries).Error; err != nil {
		return model.AttendanceDay{}, false, fmt.Errorf("load entries: %w", err)
	}

	var existing model.AttendanceDay
	found := true
	if err := tx.Where("user_id = ? AND date = ?", userID, date).Take(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return model.AttendanceDay{}, false, fmt.Errorf("load day: %w", err)
		}
		found = false
	}
	if len(entries) == 0 && !found {
		return model.AttendanceDay{UserID: userID, Date: date, Status: model.StatusAbsent}, false, nil
	}

	events, err := loadEvents(tx, entries)
	if err != nil {
		return model.AttendanceDay{}, false, err
	}

	day := model.AttendanceDay{UserID: userID, Date: date}
	var spans []Span
	var firstIn, lastOut *model.ClockEvent
	open := false
	for _, e := range entries {
		in, ok := events[utils.Deref(e.ClockInEventID)]
		if !ok {
			continue
		}
		span := Span{In: in.Time()}
		if firstIn == nil || in.Timestamp < firstIn.Timestamp {
			firstIn = in
		}
		if out, ok := events[utils.Deref(e.ClockOutEventID)]; ok {
			t := out.Time()
			span.Out = &t
			if lastOut == nil || out.Timestamp > lastOut.Timestamp {
				lastOut = out
			}
		} else {
			open = true
		}
		spans = append(spans, span)
	}

	summary, err := ComputeDay(date, spans, policy)
	if err != nil {
		return model.AttendanceDay{}, false, err
	}
	day.NormalHours = summary.NormalHours
	day.OvertimeHours = summary.OvertimeHours
	day.Status = summary.Status
	if firstIn != nil {
		day.ClockInEventID = &firstIn.ID
	}
	if lastOut != nil && !open {
		day.ClockOutEventID = &lastOut.ID
	}

	if found && sameDay(existing, day) {
		return existing, false, nil
	}

	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"clock_in_event_id", "clock_out_event_id", "normal_hours", "overtime_hours", "status", "updated_at",
		}),
	}).Create(&day).Error
	if err != nil {
		return model.AttendanceDay{}, false, fmt.Errorf("upsert day: %w", err)
	}
	if found {
		day.ID = existing.ID
	}
	return day, true, nil
}

func loadEvents(tx *gorm.DB, entries []model.AttendanceEntry) (map[string]*model.ClockEvent, error) {
	var ids []string
	for _, e := range entries {
		if e.ClockInEventID != nil {
			ids = append(ids, *e.ClockInEventID)
		}
		if e.ClockOutEventID != nil {
			ids = append(ids, *e.ClockOutEventID)
		}
	}
	out := make(map[string]*model.ClockEvent, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var events []model.ClockEvent
	if err := tx.Where("id IN ?", ids).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("load clock events: %w", err)
	}
	for i := range events {
		out[events[i].ID] = &events[i]
	}
	return out, nil
}

func sameDay(a, b model.AttendanceDay) bool {
	return utils.Deref(a.ClockInEventID) == utils.Deref(b.ClockInEventID) &&
		utils.Deref(a.ClockOutEventID) == utils.Deref(b.ClockOutEventID) &&
		RoundHours(a.NormalHours) == RoundHours(b.NormalHours) &&
		RoundHours(a.OvertimeHours) == RoundHours(b.OvertimeHours) &&
		a.Status == b.Status
}
