// Package session owns the state of the one project being worked on: its
// metadata, the bound media source, its frames and the pipeline that fills them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/camden-git/framesys/framestore"
	"github.com/camden-git/framesys/media"
	"github.com/camden-git/framesys/models"
	"github.com/camden-git/framesys/pipeline"
	"github.com/camden-git/framesys/repository"
	"github.com/google/uuid"
)

var (
	ErrNoProject          = errors.New("no project is open")
	ErrAlreadyScanned     = errors.New("project already has frames, rescan with replace to discard them")
	ErrScanSettingsLocked = errors.New("scan settings can only change while the pipeline is idle")
	ErrInvalidProject     = errors.New("invalid project")
)

// DefaultScanInterval is used when a project is created without an interval
const DefaultScanInterval = 2.0

// SourceOpener binds a media path to a frame source
type SourceOpener func(path string) (media.Source, error)

// CategorySuggester proposes category labels from a project's frames
type CategorySuggester interface {
	Suggest(ctx context.Context, frames []models.Frame) []string
}

// Events receives session-level changes for fan-out to clients
type Events interface {
	FrameChanged(frame *models.Frame)
	FrameDeleted(frameID string)
	ProjectChanged(project *models.Project)
}

type noEvents struct{}

func (noEvents) FrameChanged(*models.Frame)     {}
func (noEvents) FrameDeleted(string)            {}
func (noEvents) ProjectChanged(*models.Project) {}

// Config wires a Session to its collaborators
type Config struct {
	Projects     repository.ProjectRepositoryInterface
	Frames       repository.FrameRepositoryInterface
	Store        *framestore.Store
	Orchestrator *pipeline.Orchestrator
	Suggester    CategorySuggester
	OpenSource   SourceOpener
	Events       Events

	DefaultInterval float64
	Now             func() time.Time
	NewID           func() string
}

// ScanSettings is a partial update of a project's scan parameters
type ScanSettings struct {
	ScanRange      *models.ScanRange `json:"scanRange,omitempty"`
	ScanInterval   *float64          `json:"scanInterval,omitempty"`
	NamingTemplate *string           `json:"frameNamingTemplate,omitempty"`
}

// Session is safe for concurrent use
type Session struct {
	mu      sync.Mutex
	project *models.Project
	source  media.Source
	running bool
	runGen  uint64
	runDone chan struct{}

	cfg    Config
	events Events
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Session {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = DefaultScanInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	events := cfg.Events
	if events == nil {
		events = noEvents{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{cfg: cfg, events: events, logger: logger.With("component", "session")}
}

// SetEvents replaces the event sink
func (s *Session) SetEvents(events Events) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if events == nil {
		events = noEvents{}
	}
	s.events = events
}

func (s *Session) sink() Events {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// Project returns a copy of the open project
func (s *Session) Project() (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.project == nil {
		return nil, ErrNoProject
	}
	return s.project.Clone(), nil
}

// Status returns the pipeline status
func (s *Session) Status() models.PipelineStatus {
	return s.cfg.Orchestrator.Status()
}

// CreateProject probes the media at mediaPath, persists a new project and
// makes it the open one
func (s *Session) CreateProject(ctx context.Context, name, mediaPath string) (*models.Project, error) {
	if strings.TrimSpace(mediaPath) == "" {
		return nil, fmt.Errorf("%w: media path is required", ErrInvalidProject)
	}
	src, err := s.cfg.OpenSource(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open media %s: %w", mediaPath, err)
	}
	duration, err := src.Duration(ctx)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		base := filepath.Base(mediaPath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	now := s.cfg.Now().UnixMilli()
	project := &models.Project{
		ID:           s.cfg.NewID(),
		Name:         name,
		MediaPath:    mediaPath,
		Duration:     duration,
		ScanRange:    models.ScanRangeFull,
		ScanInterval: s.cfg.DefaultInterval,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.cfg.Projects.Create(ctx, project); err != nil {
		return nil, err
	}

	s.bind(project, src, nil)
	s.logger.Info("project created", "project_id", project.ID, "name", project.Name, "duration", duration)
	s.sink().ProjectChanged(project.Clone())
	return project.Clone(), nil
}

// OpenProject loads a saved project and its frames. A project whose media can
// no longer be opened is still loaded for curation, without a source.
func (s *Session) OpenProject(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.cfg.Projects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	frames, err := s.cfg.Frames.ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}

	var src media.Source
	if project.MediaPath != "" {
		src, err = s.cfg.OpenSource(project.MediaPath)
		if err != nil {
			s.logger.Warn("project media unavailable, opening without a source", "project_id", id, "path", project.MediaPath, "error", err)
			src = nil
		}
	}

	if err := s.bind(project, src, frames); err != nil {
		return nil, err
	}
	s.logger.Info("project opened", "project_id", id, "frames", len(frames), "has_media", src != nil)
	s.sink().ProjectChanged(project.Clone())
	return project.Clone(), nil
}

// bind tears down the previous session state and installs a new project
func (s *Session) bind(project *models.Project, src media.Source, frames []models.Frame) error {
	s.cfg.Orchestrator.Reset()
	s.cfg.Store.Reset()
	if err := s.cfg.Store.Load(frames); err != nil {
		return err
	}

	s.mu.Lock()
	s.project = project.Clone()
	s.source = src
	s.running = false
	s.mu.Unlock()
	return nil
}

// Reset is "new scan": the pipeline returns to idle, in-flight results are
// discarded and the open project is closed. Persisted data is kept.
func (s *Session) Reset() {
	s.cfg.Orchestrator.Reset()
	s.cfg.Store.Reset()

	s.mu.Lock()
	s.project = nil
	s.source = nil
	s.running = false
	s.mu.Unlock()
	s.logger.Info("session reset")
}

// SetScanSettings updates range, interval or naming template while idle
func (s *Session) SetScanSettings(ctx context.Context, settings ScanSettings) (*models.Project, error) {
	s.mu.Lock()
	if s.project == nil {
		s.mu.Unlock()
		return nil, ErrNoProject
	}
	if s.running || s.cfg.Orchestrator.Status().Stage != models.StageIdle {
		s.mu.Unlock()
		return nil, ErrScanSettingsLocked
	}
	next := s.project.Clone()
	if settings.ScanRange != nil {
		next.ScanRange = *settings.ScanRange
	}
	if settings.ScanInterval != nil {
		next.ScanInterval = *settings.ScanInterval
	}
	if settings.NamingTemplate != nil {
		if *settings.NamingTemplate == "" {
			next.FrameNamingTemplate = nil
		} else {
			tmpl := *settings.NamingTemplate
			next.FrameNamingTemplate = &tmpl
		}
	}
	if _, err := media.Sample(next.Duration, next.ScanRange, next.ScanInterval); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.project = next
	s.mu.Unlock()

	if err := s.cfg.Projects.Update(ctx, next); err != nil {
		return nil, err
	}
	s.sink().ProjectChanged(next.Clone())
	return next.Clone(), nil
}

// StartScan launches a scan of the open project in the background. A project
// that already has frames is only rescanned when replace is set, in which case
// its frames are deleted first.
func (s *Session) StartScan(ctx context.Context, replace bool) error {
	s.mu.Lock()
	if s.project == nil {
		s.mu.Unlock()
		return ErrNoProject
	}
	if s.source == nil {
		s.mu.Unlock()
		return pipeline.ErrNoMedia
	}
	if s.running {
		s.mu.Unlock()
		return pipeline.ErrScanInProgress
	}
	project := s.project.Clone()
	src := s.source
	if _, err := media.Sample(project.Duration, project.ScanRange, project.ScanInterval); err != nil {
		s.mu.Unlock()
		return err
	}
	if len(s.cfg.Store.List(project.ID)) > 0 {
		if !replace {
			s.mu.Unlock()
			return ErrAlreadyScanned
		}
		removed := s.cfg.Store.DeleteProject(ctx, project.ID)
		s.logger.Info("discarded previous frames for rescan", "project_id", project.ID, "frames", removed)
	}
	if s.cfg.Orchestrator.Status().Stage != models.StageIdle {
		s.cfg.Orchestrator.Reset()
	}
	s.running = true
	s.runGen++
	gen := s.runGen
	done := make(chan struct{})
	s.runDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		err := s.cfg.Orchestrator.Run(context.WithoutCancel(ctx), project, src)

		s.mu.Lock()
		if s.runGen == gen {
			s.running = false
		}
		s.mu.Unlock()

		switch {
		case errors.Is(err, pipeline.ErrSuperseded):
		case err != nil:
			s.logger.Error("scan ended with error", "project_id", project.ID, "error", err)
		default:
			s.touch(project.ID)
		}
	}()
	return nil
}

// Wait blocks until the most recently started scan goroutine exits
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.runDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Frames lists the open project's frames in display order
func (s *Session) Frames() ([]models.Frame, error) {
	project, err := s.Project()
	if err != nil {
		return nil, err
	}
	return s.cfg.Store.List(project.ID), nil
}

// Keepers lists the open project's keeper frames
func (s *Session) Keepers() ([]models.Frame, error) {
	project, err := s.Project()
	if err != nil {
		return nil, err
	}
	return s.cfg.Store.Keepers(project.ID), nil
}

// Frame returns one frame of the session
func (s *Session) Frame(id string) (*models.Frame, error) {
	return s.cfg.Store.Get(id)
}

// Library returns keeper frames across every project
func (s *Session) Library(ctx context.Context) ([]models.Frame, error) {
	return s.cfg.Store.LibraryKeepers(ctx)
}

// ToggleKeeper flips a frame's keeper flag
func (s *Session) ToggleKeeper(ctx context.Context, id string) (*models.Frame, error) {
	frame, err := s.cfg.Store.Mutate(ctx, id, func(f *models.Frame) error {
		f.IsKeeper = !f.IsKeeper
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.FrameChanged(frame)
	return frame, nil
}

// SetCategories replaces a frame's categories
func (s *Session) SetCategories(ctx context.Context, id string, categories []string) (*models.Frame, error) {
	cleaned := cleanCategories(categories)
	frame, err := s.cfg.Store.Update(ctx, id, framestore.FrameUpdate{Categories: &cleaned})
	if err != nil {
		return nil, err
	}
	s.FrameChanged(frame)
	return frame, nil
}

// RenameFrame sets a frame's custom name; an empty name clears it
func (s *Session) RenameFrame(ctx context.Context, id, name string) (*models.Frame, error) {
	name = strings.TrimSpace(name)
	frame, err := s.cfg.Store.Update(ctx, id, framestore.FrameUpdate{CustomName: &name})
	if err != nil {
		return nil, err
	}
	s.FrameChanged(frame)
	return frame, nil
}

// DeleteFrame removes a frame from the session and the durable store
func (s *Session) DeleteFrame(ctx context.Context, id string) error {
	frame, err := s.cfg.Store.Get(id)
	if err != nil {
		return err
	}
	if err := s.cfg.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.touch(frame.ProjectID)
	s.sink().FrameDeleted(id)
	return nil
}

// Reanalyze reruns analysis for one frame
func (s *Session) Reanalyze(ctx context.Context, id string) (*models.Frame, error) {
	frame, err := s.cfg.Orchestrator.Reanalyze(ctx, id)
	if err != nil {
		if f, getErr := s.cfg.Store.Get(id); getErr == nil {
			s.sink().FrameChanged(f)
		}
		return nil, err
	}
	s.FrameChanged(frame)
	return frame, nil
}

// SuggestCategories asks the vision provider for category labels from the
// open project's analyzed frames and stores them on the project. An empty
// suggestion leaves the project's categories unchanged.
func (s *Session) SuggestCategories(ctx context.Context) ([]string, error) {
	project, err := s.Project()
	if err != nil {
		return nil, err
	}
	if s.cfg.Suggester == nil {
		return []string{}, nil
	}
	suggestions := s.cfg.Suggester.Suggest(ctx, s.cfg.Store.List(project.ID))
	if len(suggestions) == 0 {
		return suggestions, nil
	}

	s.mu.Lock()
	if s.project == nil || s.project.ID != project.ID {
		s.mu.Unlock()
		return suggestions, nil
	}
	s.project.Categories = append([]string(nil), suggestions...)
	updated := s.project.Clone()
	s.mu.Unlock()

	if err := s.cfg.Projects.Update(ctx, updated); err != nil {
		return nil, err
	}
	s.sink().ProjectChanged(updated.Clone())
	return suggestions, nil
}

// ListProjects lists persisted projects
func (s *Session) ListProjects(ctx context.Context, sortOrder string) ([]models.Project, error) {
	return s.cfg.Projects.ListAll(ctx, sortOrder)
}

// DeleteProject removes a project and its frames. Deleting the open project
// resets the session first.
func (s *Session) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	open := s.project != nil && s.project.ID == id
	s.mu.Unlock()
	if open {
		s.Reset()
	}
	if err := s.cfg.Projects.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("project deleted", "project_id", id)
	return nil
}

// FrameChanged records that a frame of the session changed and forwards it to
// the event sink. The enhancement manager reports through here too.
func (s *Session) FrameChanged(frame *models.Frame) {
	if frame == nil {
		return
	}
	if !frame.IsProcessing {
		s.touch(frame.ProjectID)
	}
	s.sink().FrameChanged(frame)
}

func (s *Session) touch(projectID string) {
	if err := s.cfg.Projects.Touch(context.Background(), projectID); err != nil {
		s.logger.Warn("failed to bump project modification time", "project_id", projectID, "error", err)
	}
}

func cleanCategories(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
