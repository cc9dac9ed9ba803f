package model

import "time"

const DateLayout = "2006-01-02"

// AttendanceEntry is the attendance of one user at one site/project on one day.
// Site and project are stored as empty strings when absent so the unique key
// treats "no site" as a value.
type AttendanceEntry struct {
	ID              uint    `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID          uint    `gorm:"not null;uniqueIndex:idx_attendance_entry_key,priority:1;column:user_id" json:"userId"`
	Date            string  `gorm:"size:10;not null;uniqueIndex:idx_attendance_entry_key,priority:2;column:date" json:"date"`
	SiteName        string  `gorm:"size:255;not null;default:'';uniqueIndex:idx_attendance_entry_key,priority:3;column:site_name" json:"siteName"`
	ProjectName     string  `gorm:"size:255;not null;default:'';uniqueIndex:idx_attendance_entry_key,priority:4;column:project_name" json:"projectName"`
	ClockInEventID  *string `gorm:"size:36;column:clock_in_event_id" json:"clockInEventId"`
	ClockOutEventID *string `gorm:"size:36;column:clock_out_event_id" json:"clockOutEventId"`

	CreatedAt time.Time `gorm:"autoCreateTime;<-:create" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (AttendanceEntry) TableName() string {
	return "attendance_entries"
}

func (e *AttendanceEntry) IsOpen() bool {
	return e.ClockInEventID != nil && e.ClockOutEventID == nil
}

type DayStatus string

const (
	StatusPresent   DayStatus = "present"
	StatusLate      DayStatus = "late"
	StatusEarlyExit DayStatus = "early-exit"
	StatusAbsent    DayStatus = "absent"
)

// AttendanceDay is derived from the entries of a user for one date.
type AttendanceDay struct {
	ID              uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID          uint      `gorm:"not null;uniqueIndex:idx_attendance_day_key,priority:1;column:user_id" json:"userId"`
	Date            string    `gorm:"size:10;not null;uniqueIndex:idx_attendance_day_key,priority:2;column:date" json:"date"`
	ClockInEventID  *string   `gorm:"size:36;column:clock_in_event_id" json:"clockInEventId"`
	ClockOutEventID *string   `gorm:"size:36;column:clock_out_event_id" json:"clockOutEventId"`
	NormalHours     float64   `gorm:"type:decimal(6,2);not null;default:0;column:normal_hours" json:"normalHours"`
	OvertimeHours   float64   `gorm:"type:decimal(6,2);not null;default:0;column:overtime_hours" json:"overtimeHours"`
	Status          DayStatus `gorm:"size:16;not null;default:absent;column:status" json:"status"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (AttendanceDay) TableName() string {
	return "attendance_days"
}
