// Package enhance maintains per-frame enhancement chains and save-as-new lineage.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/camden-git/framesys/ai"
	"github.com/camden-git/framesys/framestore"
	"github.com/camden-git/framesys/metrics"
	"github.com/camden-git/framesys/models"
	"github.com/google/uuid"
)

// MaxBatchSize bounds a single batch enhancement request
const MaxBatchSize = 10

// ErrNotEnhanced is returned by SaveAsNew for a frame with no enhanced image
var ErrNotEnhanced = errors.New("frame has no enhanced image to save")

// Enhancer produces a new image from an input image and a style selection
type Enhancer interface {
	Enhance(ctx context.Context, image []byte, styles models.EnhancementStyles) ([]byte, error)
}

// BatchResult is the outcome for one frame of a batch
type BatchResult struct {
	FrameID string        `json:"frameId"`
	Frame   *models.Frame `json:"frame,omitempty"`
	Err     error         `json:"-"`
}

// Manager applies enhancements and flattens enhanced frames into new ones
type Manager struct {
	store    *framestore.Store
	enhancer Enhancer
	now      func() time.Time
	newID    func() string
	onChange func(*models.Frame)
	logger   *slog.Logger
}

func NewManager(store *framestore.Store, enhancer Enhancer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		enhancer: enhancer,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger.With("component", "enhance"),
	}
}

// WithClock overrides the wall clock and id source
func (m *Manager) WithClock(now func() time.Time, newID func() string) *Manager {
	if now != nil {
		m.now = now
	}
	if newID != nil {
		m.newID = newID
	}
	return m
}

// OnChange registers a hook called with every frame the manager writes
func (m *Manager) OnChange(fn func(*models.Frame)) {
	m.onChange = fn
}

func (m *Manager) changed(f *models.Frame) {
	if m.onChange != nil {
		m.onChange(f)
	}
}

// Enhance chains one enhancement onto a frame's current image. On failure the
// frame keeps its last good state and only the processing flag is cleared.
func (m *Manager) Enhance(ctx context.Context, frameID string, styles models.EnhancementStyles) (*models.Frame, error) {
	if err := ai.ValidateStyles(styles); err != nil {
		return nil, err
	}

	frame, err := m.store.MarkProcessing(ctx, frameID)
	if err != nil {
		return nil, err
	}
	m.changed(frame)

	input := frame.DisplayImage()
	output, err := m.enhancer.Enhance(ctx, input, styles)
	if err != nil {
		m.fail(ctx, frameID)
		m.logger.Warn("enhancement failed", "frame_id", frameID, "error", err)
		return nil, err
	}

	record := models.EnhancementRecord{
		ID:              m.newID(),
		Timestamp:       m.now().UnixMilli(),
		Styles:          styles.Clone(),
		InputImageData:  input,
		OutputImageData: output,
	}
	updated, err := m.store.Mutate(ctx, frameID, func(f *models.Frame) error {
		f.EnhancementHistory = append(f.EnhancementHistory, record)
		f.EnhancedImageData = output
		f.IsEnhanced = true
		f.AppliedEnhancements = models.UnionStyles(f.AppliedEnhancements, styles.Enabled())
		f.IsProcessing = false
		return nil
	})
	if err != nil {
		m.fail(ctx, frameID)
		return nil, fmt.Errorf("failed to record enhancement on frame %s: %w", frameID, err)
	}

	metrics.EnhancementsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	m.logger.Info("frame enhanced", "frame_id", frameID, "styles", styles.Enabled(), "history", len(updated.EnhancementHistory))
	m.changed(updated)
	return updated, nil
}

func (m *Manager) fail(ctx context.Context, frameID string) {
	metrics.EnhancementsTotal.WithLabelValues(metrics.ResultFailure).Inc()
	m.store.ClearProcessing(context.WithoutCancel(ctx), frameID)
	if f, err := m.store.Get(frameID); err == nil {
		m.changed(f)
	}
}

// SaveAsNew flattens a frame's current enhanced image into a brand-new frame.
// History does not carry over; applied styles and the parent id record
// provenance. The source frame is not modified.
func (m *Manager) SaveAsNew(ctx context.Context, frameID string) (*models.Frame, error) {
	src, err := m.store.Get(frameID)
	if err != nil {
		return nil, err
	}
	if !src.IsEnhanced || len(src.EnhancedImageData) == 0 {
		return nil, ErrNotEnhanced
	}

	parent := src.ID
	saved := models.Frame{
		ID:                  m.newID(),
		ProjectID:           src.ProjectID,
		Timestamp:           src.Timestamp,
		ImageData:           src.EnhancedImageData,
		Analysis:            src.Analysis,
		IsKeeper:            src.IsKeeper,
		CreatedAt:           m.now().UnixMilli(),
		AppliedEnhancements: src.AppliedEnhancements,
		Categories:          src.Categories,
		CustomName:          src.CustomName,
		ParentFrameID:       &parent,
		IsSavedState:        true,
	}
	if err := m.store.Add(ctx, saved); err != nil {
		return nil, fmt.Errorf("failed to save frame %s as new: %w", frameID, err)
	}

	out, err := m.store.Get(saved.ID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("saved enhanced frame as new", "frame_id", frameID, "new_frame_id", out.ID)
	m.changed(out)
	return out, nil
}

// ValidateBatch checks a batch request before any provider call
func ValidateBatch(frameIDs []string, styles models.EnhancementStyles) error {
	if len(frameIDs) > MaxBatchSize {
		return fmt.Errorf("%w: %d frames requested, limit is %d", ai.ErrBatchTooLarge, len(frameIDs), MaxBatchSize)
	}
	return ai.ValidateStyles(styles)
}

// BatchEnhance enhances frames one after another with the same styles. A
// failure on one frame is recorded in its result and the batch continues.
func (m *Manager) BatchEnhance(ctx context.Context, frameIDs []string, styles models.EnhancementStyles) ([]BatchResult, error) {
	if err := ValidateBatch(frameIDs, styles); err != nil {
		return nil, err
	}

	results := make([]BatchResult, 0, len(frameIDs))
	for _, id := range frameIDs {
		if err := ctx.Err(); err != nil {
			results = append(results, BatchResult{FrameID: id, Err: err})
			continue
		}
		frame, err := m.Enhance(ctx, id, styles)
		results = append(results, BatchResult{FrameID: id, Frame: frame, Err: err})
	}
	return results, nil
}
