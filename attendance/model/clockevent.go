package model

import "time"

type ClockType string

const (
	ClockIn  ClockType = "in"
	ClockOut ClockType = "out"
)

type ClockMethod string

const (
	MethodFace   ClockMethod = "face"
	MethodButton ClockMethod = "button"
	// events loaded from a historical export
	MethodImport ClockMethod = "import"
)

// ClockEvent is one physical clock action. Rows are never updated.
type ClockEvent struct {
	ID          string      `gorm:"primaryKey;size:36;column:id" json:"id"`
	UserID      uint        `gorm:"not null;index;column:user_id" json:"userId"`
	Timestamp   int64       `gorm:"not null;column:timestamp_ms" json:"timestamp"` // epoch millis
	Type        ClockType   `gorm:"size:8;not null;column:type" json:"type"`
	Latitude    float64     `gorm:"not null;column:latitude" json:"latitude"`
	Longitude   float64     `gorm:"not null;column:longitude" json:"longitude"`
	Address     string      `gorm:"size:512;not null;default:'';column:address" json:"address"`
	Method      ClockMethod `gorm:"size:16;not null;column:method" json:"method"`
	ImageURI    *string     `gorm:"type:text;column:image_uri" json:"imageUri,omitempty"`
	Accuracy    *float64    `gorm:"column:accuracy" json:"accuracy,omitempty"`
	SiteName    *string     `gorm:"size:255;column:site_name" json:"siteName,omitempty"`
	ProjectName *string     `gorm:"size:255;column:project_name" json:"projectName,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;<-:create" json:"createdAt"`
}

func (ClockEvent) TableName() string {
	return "clock_events"
}

func (e *ClockEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}
