package model

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	EmployeeNo   string    `gorm:"size:64;not null;index;column:employee_no" json:"employeeNo"`
	Name         string    `gorm:"size:255;not null;default:'';column:name" json:"name"`
	FaceTemplate *string   `gorm:"type:text;column:face_template" json:"-"`
	Active       bool      `gorm:"not null;default:true;column:active" json:"active"`
	CreatedAt    time.Time `gorm:"autoCreateTime;<-:create" json:"createdAt"`
}

func (User) TableName() string {
	return "users"
}

// EmployeeAssignment lists where a user may clock in. Null dates are open-ended.
type EmployeeAssignment struct {
	ID          uint    `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID      uint    `gorm:"not null;index;column:user_id" json:"userId"`
	SiteName    *string `gorm:"size:255;column:site_name" json:"siteName"`
	ProjectName *string `gorm:"size:255;column:project_name" json:"projectName"`
	StartDate   *string `gorm:"size:10;column:start_date" json:"startDate"`
	EndDate     *string `gorm:"size:10;column:end_date" json:"endDate"`
}

func (EmployeeAssignment) TableName() string {
	return "employee_assignments"
}

type Schedule struct {
	ID          uint    `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID      uint    `gorm:"not null;index;column:user_id" json:"userId"`
	Date        string  `gorm:"size:10;not null;index;column:date" json:"date"`
	SiteName    *string `gorm:"size:255;column:site_name" json:"siteName"`
	ProjectName *string `gorm:"size:255;column:project_name" json:"projectName"`
}

func (Schedule) TableName() string {
	return "schedules"
}

type LeaveBalance struct {
	ID        uint    `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID    uint    `gorm:"not null;index;column:user_id" json:"userId"`
	LeaveType string  `gorm:"size:64;not null;column:leave_type" json:"leaveType"`
	Balance   float64 `gorm:"type:decimal(8,2);not null;default:0;column:balance" json:"balance"`
}

func (LeaveBalance) TableName() string {
	return "leave_balances"
}

// TenantModels are the tables this service reads and writes in a company
// database. The schema is owned elsewhere; AutoMigrate is only used by tests
// and local set-up.
func TenantModels() []any {
	return []any{
		&User{},
		&ClockEvent{},
		&AttendanceEntry{},
		&AttendanceDay{},
		&EmployeeAssignment{},
		&Schedule{},
		&LeaveBalance{},
	}
}
