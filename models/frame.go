package models

// EnhancementRecord is one immutable step in a frame's enhancement chain
type EnhancementRecord struct {
	ID              string            `json:"id"`
	Timestamp       int64             `json:"timestamp"` // unix ms
	Styles          EnhancementStyles `json:"styles"`
	InputImageData  []byte            `json:"inputImageData"`
	OutputImageData []byte            `json:"outputImageData"`
}

// Frame represents a still sampled from a project's media, using GORM.
// It corresponds to the 'frames' table.
type Frame struct {
	ID                string  `gorm:"primaryKey" json:"id"`
	ProjectID         string  `gorm:"not null;index" json:"projectId"`
	Timestamp         float64 `gorm:"not null;index" json:"timestamp"` // seconds into the media
	ImageData         []byte  `gorm:"not null" json:"imageData"`
	EnhancedImageData []byte  `gorm:"" json:"enhancedImageData,omitempty"` // Nullable, present iff IsEnhanced

	Analysis *Analysis `gorm:"serializer:json" json:"analysis,omitempty"`

	IsKeeper     bool  `gorm:"not null;default:false;index" json:"isKeeper"`
	IsEnhanced   bool  `gorm:"not null;default:false" json:"isEnhanced"`
	IsProcessing bool  `gorm:"not null;default:false" json:"isProcessing"`
	CreatedAt    int64 `gorm:"not null;autoCreateTime:false" json:"createdAt"` // unix ms

	EnhancementHistory  []EnhancementRecord `gorm:"serializer:json" json:"enhancementHistory,omitempty"`
	AppliedEnhancements []StyleKey          `gorm:"serializer:json" json:"appliedEnhancements,omitempty"`
	Categories          []string            `gorm:"serializer:json" json:"categories,omitempty"`

	CustomName    *string `gorm:"" json:"customName,omitempty"`          // Nullable
	ParentFrameID *string `gorm:"index" json:"parentFrameId,omitempty"` // Nullable, set by save-as-new
	IsSavedState  bool    `gorm:"not null;default:false" json:"isSavedState"`
}

// TableName explicitly sets the table name for GORM.
func (Frame) TableName() string {
	return "frames"
}

// DisplayImage is the enhanced image when present, else the original
func (f *Frame) DisplayImage() []byte {
	if f.IsEnhanced && len(f.EnhancedImageData) > 0 {
		return f.EnhancedImageData
	}
	return f.ImageData
}

// Clone returns a deep copy so callers never share slices with the store
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := *f
	out.ImageData = cloneBytes(f.ImageData)
	out.EnhancedImageData = cloneBytes(f.EnhancedImageData)
	out.Analysis = f.Analysis.Clone()
	out.Categories = cloneStrings(f.Categories)
	if f.AppliedEnhancements != nil {
		out.AppliedEnhancements = append([]StyleKey{}, f.AppliedEnhancements...)
	}
	if f.EnhancementHistory != nil {
		out.EnhancementHistory = make([]EnhancementRecord, len(f.EnhancementHistory))
		for i, rec := range f.EnhancementHistory {
			out.EnhancementHistory[i] = EnhancementRecord{
				ID:              rec.ID,
				Timestamp:       rec.Timestamp,
				Styles:          rec.Styles.Clone(),
				InputImageData:  cloneBytes(rec.InputImageData),
				OutputImageData: cloneBytes(rec.OutputImageData),
			}
		}
	}
	if f.CustomName != nil {
		n := *f.CustomName
		out.CustomName = &n
	}
	if f.ParentFrameID != nil {
		p := *f.ParentFrameID
		out.ParentFrameID = &p
	}
	return &out
}
