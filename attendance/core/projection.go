package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/utils"
	"gorm.io/gorm"
)

// MaxHistoryDays bounds a history query.
const MaxHistoryDays = 366

type EntryView struct {
	model.AttendanceEntry
	ClockIn  *model.ClockEvent `json:"clockIn"`
	ClockOut *model.ClockEvent `json:"clockOut"`
}

// DayView is an attendance day with its entries. Day is nil when nothing was
// recorded for the date.
type DayView struct {
	Date    string               `json:"date"`
	Day     *model.AttendanceDay `json:"day"`
	Entries []EntryView          `json:"entries"`
}

// Today returns the attendance of the employee for the current date of the company.
func (p *Processor) Today(ctx context.Context, companyCode, employeeNo string) (*DayView, error) {
	company, db, user, cerr := p.identify(ctx, companyCode, employeeNo)
	if cerr != nil {
		return nil, cerr
	}
	date := DateOf(p.now(), company.Location())
	views, err := p.loadViews(ctx, db, user.ID, date, date)
	if err != nil {
		return nil, newClockError(ReasonInternal, err)
	}
	if len(views) == 0 {
		return &DayView{Date: date, Entries: []EntryView{}}, nil
	}
	return &views[0], nil
}

// History returns the recorded days between from and to, inclusive, newest first.
func (p *Processor) History(ctx context.Context, companyCode, employeeNo, from, to string) ([]DayView, error) {
	start, err := time.Parse(model.DateLayout, from)
	if err != nil {
		return nil, invalidRequest("Field 'startDate' must be a date (yyyy-MM-dd)")
	}
	end, err := time.Parse(model.DateLayout, to)
	if err != nil {
		return nil, invalidRequest("Field 'endDate' must be a date (yyyy-MM-dd)")
	}
	if end.Before(start) {
		return nil, invalidRequest("Field 'endDate' must not be before 'startDate'")
	}
	if end.Sub(start) > MaxHistoryDays*24*time.Hour {
		return nil, invalidRequest(fmt.Sprintf("History is limited to %d days", MaxHistoryDays))
	}

	_, db, user, cerr := p.identify(ctx, companyCode, employeeNo)
	if cerr != nil {
		return nil, cerr
	}
	views, err := p.loadViews(ctx, db, user.ID, from, to)
	if err != nil {
		return nil, newClockError(ReasonInternal, err)
	}
	return views, nil
}

func (p *Processor) loadViews(ctx context.Context, db *gorm.DB, userID uint, from, to string) ([]DayView, error) {
	qctx, cancel := context.WithTimeout(ctx, p.config.QueryTimeout)
	defer cancel()
	db = db.WithContext(qctx)

	var days []model.AttendanceDay
	if err := db.Where("user_id = ? AND date BETWEEN ? AND ?", userID, from, to).Find(&days).Error; err != nil {
		return nil, fmt.Errorf("load days: %w", err)
	}
	var entries []model.AttendanceEntry
	if err := db.Where("user_id = ? AND date BETWEEN ? AND ?", userID, from, to).Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	events, err := loadEvents(db, entries)
	if err != nil {
		return nil, err
	}

	byDate := utils.GroupBy(entries, func(e model.AttendanceEntry) string { return e.Date })
	dates := make(map[string]*DayView)
	for i := range days {
		dates[days[i].Date] = &DayView{Date: days[i].Date, Day: &days[i]}
	}
	for date := range byDate {
		if _, ok := dates[date]; !ok {
			dates[date] = &DayView{Date: date}
		}
	}

	views := make([]DayView, 0, len(dates))
	for date, view := range dates {
		view.Entries = utils.Map(byDate[date], func(e model.AttendanceEntry) EntryView {
			return EntryView{
				AttendanceEntry: e,
				ClockIn:         events[utils.Deref(e.ClockInEventID)],
				ClockOut:        events[utils.Deref(e.ClockOutEventID)],
			}
		})
		views = append(views, *view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Date > views[j].Date })
	return views, nil
}
