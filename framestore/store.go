// Package framestore holds the authoritative in-memory frame collection for a
// session and mirrors every change to the durable store.
package framestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/camden-git/framesys/metrics"
	"github.com/camden-git/framesys/models"
)

var (
	ErrNotFound  = errors.New("frame not found")
	ErrFrameBusy = errors.New("frame is already processing")
	ErrInvariant = errors.New("frame invariant violated")
)

// Durable is the persistence the store mirrors into
type Durable interface {
	Save(ctx context.Context, frame *models.Frame) error
	SaveFrames(ctx context.Context, frames []models.Frame) error
	ListKeepers(ctx context.Context, projectID string) ([]models.Frame, error)
	Delete(ctx context.Context, id string) error
	DeleteByProject(ctx context.Context, projectID string) (int64, error)
}

// DurableErrorFunc is told about every durable write that failed
type DurableErrorFunc func(op string, frameID string, err error)

// FrameUpdate is a partial update. Nil fields are left untouched.
type FrameUpdate struct {
	IsKeeper     *bool
	IsProcessing *bool
	Analysis     *models.Analysis
	Categories   *[]string
	CustomName   *string
}

type entry struct {
	mu      sync.Mutex // serialises writers of this frame
	frame   *models.Frame
	seq     uint64
	removed bool
}

// Store is safe for concurrent use
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq uint64

	durable        Durable
	logger         *slog.Logger
	onDurableError DurableErrorFunc
}

// New returns an empty store. durable may be nil for a memory-only store.
func New(durable Durable, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries: make(map[string]*entry),
		durable: durable,
		logger:  logger.With("component", "framestore"),
	}
}

// OnDurableError registers the hook called after a failed durable write
func (s *Store) OnDurableError(fn DurableErrorFunc) {
	s.mu.Lock()
	s.onDurableError = fn
	s.mu.Unlock()
}

// Add inserts new frames and mirrors them in one durable multi-put
func (s *Store) Add(ctx context.Context, frames ...models.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	batch := make([]models.Frame, len(frames))
	seen := make(map[string]bool, len(frames))
	for i := range frames {
		f := frames[i].Clone()
		if err := validateFrame(f); err != nil {
			return err
		}
		if seen[f.ID] {
			return fmt.Errorf("%w: duplicate frame id %s in batch", ErrInvariant, f.ID)
		}
		seen[f.ID] = true
		batch[i] = *f
	}

	s.mu.Lock()
	for _, f := range batch {
		if _, exists := s.entries[f.ID]; exists {
			s.mu.Unlock()
			return fmt.Errorf("%w: frame id %s already exists", ErrInvariant, f.ID)
		}
	}
	for i := range batch {
		s.nextSeq++
		s.entries[batch[i].ID] = &entry{frame: batch[i].Clone(), seq: s.nextSeq}
	}
	s.mu.Unlock()

	if s.durable != nil {
		if err := s.durable.SaveFrames(ctx, batch); err != nil {
			s.reportDurable("save_frames", batch[0].ID, err)
		}
	}
	return nil
}

// Load replaces the in-memory contents with frames read back from the durable
// store, without writing them again.
func (s *Store) Load(frames []models.Frame) error {
	next := make(map[string]*entry, len(frames))
	var seq uint64
	for i := range frames {
		f := frames[i].Clone()
		if err := validateFrame(f); err != nil {
			return err
		}
		// a frame persisted mid-call is not busy any more
		f.IsProcessing = false
		seq++
		next[f.ID] = &entry{frame: f, seq: seq}
	}
	s.mu.Lock()
	s.entries = next
	s.nextSeq = seq
	s.mu.Unlock()
	return nil
}

// Get returns a copy of one frame
func (s *Store) Get(id string) (*models.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.frame.Clone(), nil
}

// List returns copies of a project's frames ordered by timestamp, then creation
func (s *Store) List(projectID string) []models.Frame {
	return s.collect(func(f *models.Frame) bool { return f.ProjectID == projectID })
}

// Keepers returns copies of a project's keeper frames in List order
func (s *Store) Keepers(projectID string) []models.Frame {
	return s.collect(func(f *models.Frame) bool { return f.ProjectID == projectID && f.IsKeeper })
}

// Len is the number of frames held in memory
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) collect(match func(*models.Frame) bool) []models.Frame {
	s.mu.RLock()
	type item struct {
		frame *models.Frame
		seq   uint64
	}
	var items []item
	for _, e := range s.entries {
		if match(e.frame) {
			items = append(items, item{frame: e.frame, seq: e.seq})
		}
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].frame, items[j].frame
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return items[i].seq < items[j].seq
	})

	out := make([]models.Frame, len(items))
	for i, it := range items {
		out[i] = *it.frame.Clone()
	}
	return out
}

// LibraryKeepers returns keeper frames across all projects. Durable rows are
// overlaid with in-memory state, which wins for any frame held in memory.
func (s *Store) LibraryKeepers(ctx context.Context) ([]models.Frame, error) {
	var persisted []models.Frame
	if s.durable != nil {
		var err error
		persisted, err = s.durable.ListKeepers(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load library keepers: %w", err)
		}
	}

	s.mu.RLock()
	var out []models.Frame
	for i := range persisted {
		if _, inMemory := s.entries[persisted[i].ID]; inMemory {
			continue
		}
		out = append(out, persisted[i])
	}
	s.mu.RUnlock()

	live := s.collect(func(f *models.Frame) bool { return f.IsKeeper })
	out = append(out, live...)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

// Update merges a partial update into a frame
func (s *Store) Update(ctx context.Context, id string, u FrameUpdate) (*models.Frame, error) {
	return s.Mutate(ctx, id, func(f *models.Frame) error {
		if u.IsKeeper != nil {
			f.IsKeeper = *u.IsKeeper
		}
		if u.IsProcessing != nil {
			f.IsProcessing = *u.IsProcessing
		}
		if u.Analysis != nil {
			f.Analysis = u.Analysis.Clone()
		}
		if u.Categories != nil {
			f.Categories = append([]string(nil), (*u.Categories)...)
		}
		if u.CustomName != nil {
			if *u.CustomName == "" {
				f.CustomName = nil
			} else {
				name := *u.CustomName
				f.CustomName = &name
			}
		}
		return nil
	})
}

// MarkProcessing sets IsProcessing, failing with ErrFrameBusy if it is already set
func (s *Store) MarkProcessing(ctx context.Context, id string) (*models.Frame, error) {
	return s.Mutate(ctx, id, func(f *models.Frame) error {
		if f.IsProcessing {
			return ErrFrameBusy
		}
		f.IsProcessing = true
		return nil
	})
}

// ClearProcessing resets IsProcessing. A frame that no longer exists is ignored.
func (s *Store) ClearProcessing(ctx context.Context, id string) {
	off := false
	if _, err := s.Update(ctx, id, FrameUpdate{IsProcessing: &off}); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("failed to clear processing flag", "frame_id", id, "error", err)
	}
}

// Mutate runs a read-modify-write on one frame while holding its lock. fn works
// on a private copy; the copy replaces the stored frame only if fn succeeds and
// the result keeps every frame invariant.
func (s *Store) Mutate(ctx context.Context, id string, fn func(*models.Frame) error) (*models.Frame, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s.mu.RLock()
	current, removed := e.frame, e.removed
	s.mu.RUnlock()
	if removed {
		return nil, ErrNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := checkTransition(current, next); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if e.removed {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	e.frame = next
	s.mu.Unlock()

	if s.durable != nil {
		if err := s.durable.Save(ctx, next); err != nil {
			s.reportDurable("save", id, err)
		}
	}
	return next.Clone(), nil
}

// Delete removes one frame from memory and the durable store
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s.mu.Lock()
	if e.removed {
		s.mu.Unlock()
		return ErrNotFound
	}
	e.removed = true
	delete(s.entries, id)
	s.mu.Unlock()

	if s.durable != nil {
		if err := s.durable.Delete(ctx, id); err != nil {
			s.reportDurable("delete", id, err)
		}
	}
	return nil
}

// DeleteProject removes every frame of a project. Writers already inside
// Mutate finish their durable save before the project's rows are deleted.
func (s *Store) DeleteProject(ctx context.Context, projectID string) int {
	removed := s.retire(func(f *models.Frame) bool { return f.ProjectID == projectID })

	if s.durable != nil {
		if _, err := s.durable.DeleteByProject(ctx, projectID); err != nil {
			s.reportDurable("delete_project", "", err)
		}
	}
	return removed
}

// Reset drops every in-memory frame. The durable store is left alone.
func (s *Store) Reset() {
	s.retire(func(*models.Frame) bool { return true })
}

// retire marks matching entries removed and drops them from the map. Each
// entry lock is taken in turn, so no writer is left between its in-memory
// commit and its durable save.
func (s *Store) retire(match func(*models.Frame) bool) int {
	s.mu.RLock()
	var victims []*entry
	for _, e := range s.entries {
		if match(e.frame) {
			victims = append(victims, e)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, e := range victims {
		e.mu.Lock()
		s.mu.Lock()
		if !e.removed {
			e.removed = true
			if s.entries[e.frame.ID] == e {
				delete(s.entries, e.frame.ID)
			}
			removed++
		}
		s.mu.Unlock()
		e.mu.Unlock()
	}
	return removed
}

func (s *Store) reportDurable(op, frameID string, err error) {
	metrics.DurableWriteFailuresTotal.Inc()
	s.logger.Error("durable write failed, keeping in-memory state", "op", op, "frame_id", frameID, "error", err)

	s.mu.RLock()
	hook := s.onDurableError
	s.mu.RUnlock()
	if hook != nil {
		hook(op, frameID, err)
	}
}

func validateFrame(f *models.Frame) error {
	if f.ID == "" {
		return fmt.Errorf("%w: frame has no id", ErrInvariant)
	}
	if f.ProjectID == "" {
		return fmt.Errorf("%w: frame %s has no project", ErrInvariant, f.ID)
	}
	if len(f.ImageData) == 0 {
		return fmt.Errorf("%w: frame %s has no image data", ErrInvariant, f.ID)
	}
	if f.IsEnhanced != (len(f.EnhancedImageData) > 0) {
		return fmt.Errorf("%w: frame %s enhanced flag disagrees with enhanced image", ErrInvariant, f.ID)
	}
	return nil
}

func checkTransition(prev, next *models.Frame) error {
	if err := validateFrame(next); err != nil {
		return err
	}
	if next.ID != prev.ID || next.ProjectID != prev.ProjectID {
		return fmt.Errorf("%w: frame %s identity changed", ErrInvariant, prev.ID)
	}
	if next.Timestamp != prev.Timestamp || next.CreatedAt != prev.CreatedAt {
		return fmt.Errorf("%w: frame %s timestamps changed", ErrInvariant, prev.ID)
	}
	if !models.ContainsAllStyles(next.AppliedEnhancements, prev.AppliedEnhancements) {
		return fmt.Errorf("%w: frame %s applied enhancements shrank", ErrInvariant, prev.ID)
	}
	if len(next.EnhancementHistory) < len(prev.EnhancementHistory) {
		return fmt.Errorf("%w: frame %s enhancement history shrank", ErrInvariant, prev.ID)
	}
	for i := range prev.EnhancementHistory {
		a, b := prev.EnhancementHistory[i], next.EnhancementHistory[i]
		if a.ID != b.ID || !bytes.Equal(a.OutputImageData, b.OutputImageData) {
			return fmt.Errorf("%w: frame %s enhancement history rewritten", ErrInvariant, prev.ID)
		}
	}
	return nil
}
