package models

// ScanRange selects which part of the media a scan samples
type ScanRange string

const (
	ScanRangeFull         ScanRange = "full"
	ScanRangeFirstHalf    ScanRange = "first-half"
	ScanRangeSecondHalf   ScanRange = "second-half"
	ScanRangeFirstQuarter ScanRange = "first-quarter"
	ScanRangeLastQuarter  ScanRange = "last-quarter"
)

// Project represents one video being curated, using GORM.
// It corresponds to the 'projects' table.
type Project struct {
	ID                  string    `gorm:"primaryKey" json:"id"`
	Name                string    `gorm:"not null" json:"name"`
	MediaPath           string    `gorm:"not null" json:"mediaPath"`
	Duration            float64   `gorm:"not null" json:"videoDuration"` // seconds
	ScanRange           ScanRange `gorm:"not null;default:full" json:"scanRange"`
	ScanInterval        float64   `gorm:"not null" json:"scanInterval"` // seconds
	FrameNamingTemplate *string   `gorm:"" json:"frameNamingTemplate,omitempty"` // Nullable
	Categories          []string  `gorm:"serializer:json" json:"categories,omitempty"`
	CreatedAt           int64     `gorm:"not null;autoCreateTime:false" json:"createdAt"`               // unix ms
	UpdatedAt           int64     `gorm:"not null;index;autoUpdateTime:false" json:"lastModified"` // unix ms
}

// TableName explicitly sets the table name for GORM.
func (Project) TableName() string {
	return "projects"
}

// Clone returns a deep copy
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	out := *p
	out.Categories = cloneStrings(p.Categories)
	if p.FrameNamingTemplate != nil {
		t := *p.FrameNamingTemplate
		out.FrameNamingTemplate = &t
	}
	return &out
}
