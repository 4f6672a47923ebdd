package models

// EnhancementStep is an EnhancementRecord without its image payloads
type EnhancementStep struct {
	ID        string     `json:"id"`
	Timestamp int64      `json:"timestamp"`
	Styles    []StyleKey `json:"styles"`
}

// FrameView is the wire form of a frame for listings and events. Images are
// fetched separately by id.
type FrameView struct {
	ID                  string            `json:"id"`
	ProjectID           string            `json:"projectId"`
	Timestamp           float64           `json:"timestamp"`
	Analysis            *Analysis         `json:"analysis,omitempty"`
	IsKeeper            bool              `json:"isKeeper"`
	IsEnhanced          bool              `json:"isEnhanced"`
	IsProcessing        bool              `json:"isProcessing"`
	CreatedAt           int64             `json:"createdAt"`
	EnhancementHistory  []EnhancementStep `json:"enhancementHistory"`
	AppliedEnhancements []StyleKey        `json:"appliedEnhancements"`
	Categories          []string          `json:"categories"`
	CustomName          *string           `json:"customName,omitempty"`
	ParentFrameID       *string           `json:"parentFrameId,omitempty"`
	IsSavedState        bool              `json:"isSavedState"`
}

func NewFrameView(f *Frame) FrameView {
	v := FrameView{
		ID:                  f.ID,
		ProjectID:           f.ProjectID,
		Timestamp:           f.Timestamp,
		Analysis:            f.Analysis.Clone(),
		IsKeeper:            f.IsKeeper,
		IsEnhanced:          f.IsEnhanced,
		IsProcessing:        f.IsProcessing,
		CreatedAt:           f.CreatedAt,
		EnhancementHistory:  make([]EnhancementStep, 0, len(f.EnhancementHistory)),
		AppliedEnhancements: append([]StyleKey{}, f.AppliedEnhancements...),
		Categories:          append([]string{}, f.Categories...),
		CustomName:          f.CustomName,
		ParentFrameID:       f.ParentFrameID,
		IsSavedState:        f.IsSavedState,
	}
	for _, rec := range f.EnhancementHistory {
		v.EnhancementHistory = append(v.EnhancementHistory, EnhancementStep{
			ID:        rec.ID,
			Timestamp: rec.Timestamp,
			Styles:    rec.Styles.Enabled(),
		})
	}
	return v
}

func NewFrameViews(frames []Frame) []FrameView {
	out := make([]FrameView, len(frames))
	for i := range frames {
		out[i] = NewFrameView(&frames[i])
	}
	return out
}
