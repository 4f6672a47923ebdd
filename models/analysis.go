package models

// Quality is the ordinal quality class assigned by the vision provider
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
)

// IsValid reports whether q is one of the three quality classes
func (q Quality) IsValid() bool {
	switch q {
	case QualityExcellent, QualityGood, QualityFair:
		return true
	}
	return false
}

// ShotType classifies how the subject was captured
type ShotType string

const (
	ShotPosed     ShotType = "posed"
	ShotCandid    ShotType = "candid"
	ShotUncertain ShotType = "uncertain"
)

// IsValid reports whether s is one of the three shot types
func (s ShotType) IsValid() bool {
	switch s {
	case ShotPosed, ShotCandid, ShotUncertain:
		return true
	}
	return false
}

// Analysis is the structured result of one vision call for a frame.
// A later analysis fully replaces an earlier one.
type Analysis struct {
	Quality          Quality  `json:"quality"`
	QualityReason    string   `json:"qualityReason"`
	People           []string `json:"people"`
	ShotType         ShotType `json:"shotType"`
	Tags             []string `json:"tags"`
	CompositionScore float64  `json:"compositionScore"` // 0-100 inclusive
	TechnicalAdvice  []string `json:"technicalAdvice"`
}

// Clone returns a deep copy
func (a *Analysis) Clone() *Analysis {
	if a == nil {
		return nil
	}
	out := *a
	out.People = cloneStrings(a.People)
	out.Tags = cloneStrings(a.Tags)
	out.TechnicalAdvice = cloneStrings(a.TechnicalAdvice)
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
