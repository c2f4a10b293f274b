package entities

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Flow is the persisted flow document. Content holds the full JSON document; the other
// columns are denormalized for listing.
type Flow struct {
	ID            string         `gorm:"primaryKey;size:64"`
	Title         string         `gorm:"type:text;not null"`
	Language      string         `gorm:"size:35"`
	Category      string         `gorm:"type:text"`
	Version       int            `gorm:"not null"`
	StepCount     int            `gorm:"not null"`
	SectionTitles pq.StringArray `gorm:"type:text[]"`
	Content       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Flow) TableName() string {
	return "flow_api.flows"
}
