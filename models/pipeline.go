package models

// Stage is a pipeline state
type Stage string

const (
	StageIdle       Stage = "idle"
	StageSampling   Stage = "sampling"
	StageAnalyzing  Stage = "analyzing"
	StageClustering Stage = "clustering"
	StageComplete   Stage = "complete"
)

// PipelineStatus describes the progress of the active scan
type PipelineStatus struct {
	Stage            Stage   `json:"stage"`
	SamplingProgress float64 `json:"samplingProgress"` // percent of timestamps attempted
	AnalyzingCurrent int     `json:"analyzingCurrent"`
	AnalyzingTotal   int     `json:"analyzingTotal"`
	ExtractedCount   int     `json:"extractedCount"`
	Epoch            uint64  `json:"epoch"`
}

// IdleStatus is the reset value for a given epoch
func IdleStatus(epoch uint64) PipelineStatus {
	return PipelineStatus{Stage: StageIdle, Epoch: epoch}
}
