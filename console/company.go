package console

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Company is a tenant row in the master database. It carries the credentials of
// the tenant database and the attendance policy of the company.
type Company struct {
	ID          int    `gorm:"primaryKey;autoIncrement;column:id"`
	Code        string `gorm:"size:64;not null;uniqueIndex;column:code"`
	DisplayName string `gorm:"size:255;not null;column:display_name"`
	DBHost      string `gorm:"size:255;not null;column:db_host"`
	DBPort      int    `gorm:"not null;default:3306;column:db_port"`
	DBUser      string `gorm:"size:255;not null;column:db_user"`
	DBPassword  string `gorm:"size:255;not null;column:db_password"`
	DBName      string `gorm:"size:255;not null;column:db_name"`
	Active      bool   `gorm:"not null;default:true;column:active"`

	Timezone              string  `gorm:"size:64;not null;default:UTC;column:timezone"`
	WorkStart             string  `gorm:"size:8;not null;default:08:00;column:work_start"`
	WorkEnd               string  `gorm:"size:8;not null;default:17:00;column:work_end"`
	StandardWorkHours     float64 `gorm:"type:decimal(5,2);not null;default:8;column:standard_work_hours"`
	GraceMinutes          int     `gorm:"not null;default:0;column:grace_minutes"`
	SkipAssignmentCheck   bool    `gorm:"not null;default:false;column:skip_assignment_check"`
	ForceFaceVerification bool    `gorm:"not null;default:false;column:force_face_verification"`

	CreatedAt time.Time `gorm:"autoCreateTime;column:created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;column:updated_at"`
}

func (Company) TableName() string {
	return "companies"
}

// NormalizeCode trims and uppercases a company code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Location returns the company time zone, falling back to UTC.
func (c *Company) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Fingerprint identifies the connection settings. A change means the tenant
// pool has to be reopened.
func (c *Company) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s|%s|%s", c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)))
	return hex.EncodeToString(sum[:])
}
