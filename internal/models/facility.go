package models

import "time"

type FacilityType string

const (
	FacilityTrashBin        FacilityType = "trash_bin"
	FacilityRecyclingCenter FacilityType = "recycling_center"
	FacilityWasteBank       FacilityType = "waste_bank"
)

type Facility struct {
	ID      string       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name    string       `gorm:"column:name;type:text" json:"name"`
	Type    FacilityType `gorm:"column:type;type:text;index" json:"type"`
	Address string       `gorm:"column:address;type:text" json:"address"`

	Latitude  float64 `gorm:"column:latitude;type:double precision" json:"latitude"`
	Longitude float64 `gorm:"column:longitude;type:double precision" json:"longitude"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Facility) TableName() string { return "facilities" }
