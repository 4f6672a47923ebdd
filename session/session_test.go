package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/camden-git/framesys/database"
	"github.com/camden-git/framesys/framestore"
	"github.com/camden-git/framesys/media"
	"github.com/camden-git/framesys/models"
	"github.com/camden-git/framesys/pipeline"
	"github.com/camden-git/framesys/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct{}

func (fakeSource) Duration(context.Context) (float64, error) { return 10, nil }

func (fakeSource) Grab(_ context.Context, ts float64) ([]byte, error) {
	return []byte{0xFF, 0xD8, byte(ts)}, nil
}

type gateAnalyzer struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGateAnalyzer(blocking bool) *gateAnalyzer {
	g := &gateAnalyzer{entered: make(chan struct{}), release: make(chan struct{})}
	if !blocking {
		close(g.release)
	}
	return g
}

func (g *gateAnalyzer) Analyze(ctx context.Context, _ []byte) (*models.Analysis, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return &models.Analysis{Quality: models.QualityGood, ShotType: models.ShotPosed, CompositionScore: 80}, nil
}

type fakeSuggester struct{ labels []string }

func (f fakeSuggester) Suggest(context.Context, []models.Frame) []string { return f.labels }

type recordingEvents struct {
	mu       sync.Mutex
	changed  []string
	deleted  []string
	projects int
}

func (r *recordingEvents) FrameChanged(f *models.Frame) {
	r.mu.Lock()
	r.changed = append(r.changed, f.ID)
	r.mu.Unlock()
}

func (r *recordingEvents) FrameDeleted(id string) {
	r.mu.Lock()
	r.deleted = append(r.deleted, id)
	r.mu.Unlock()
}

func (r *recordingEvents) ProjectChanged(*models.Project) {
	r.mu.Lock()
	r.projects++
	r.mu.Unlock()
}

type fixture struct {
	session  *Session
	projects *repository.ProjectRepository
	frames   *repository.FrameRepository
	store    *framestore.Store
	events   *recordingEvents
}

func newFixture(t *testing.T, analyzer pipeline.Analyzer, suggester CategorySuggester) *fixture {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "session.db"), nil)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db, nil))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	projects := repository.NewProjectRepository(db)
	frames := repository.NewFrameRepository(db)
	store := framestore.New(frames, nil)
	orch := pipeline.NewOrchestrator(store, analyzer, pipeline.Options{
		Sleep: func(context.Context, time.Duration) error { return nil },
	}, nil)
	events := &recordingEvents{}

	s := New(Config{
		Projects:     projects,
		Frames:       frames,
		Store:        store,
		Orchestrator: orch,
		Suggester:    suggester,
		OpenSource: func(path string) (media.Source, error) {
			if path == "/missing.mp4" {
				return nil, errors.New("no such file")
			}
			return fakeSource{}, nil
		},
		Events: events,
	}, nil)
	return &fixture{session: s, projects: projects, frames: frames, store: store, events: events}
}

func TestCreateProjectAndScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newGateAnalyzer(false), nil)

	project, err := f.session.CreateProject(ctx, "", "/videos/Beach Day.mp4")
	require.NoError(t, err)
	assert.Equal(t, "Beach Day", project.Name)
	assert.Equal(t, 10.0, project.Duration)
	assert.Equal(t, DefaultScanInterval, project.ScanInterval)
	assert.Equal(t, models.ScanRangeFull, project.ScanRange)

	require.NoError(t, f.session.StartScan(ctx, false))
	f.session.Wait()

	status := f.session.Status()
	assert.Equal(t, models.StageComplete, status.Stage)
	assert.Equal(t, 5, status.ExtractedCount)

	frames, err := f.session.Frames()
	require.NoError(t, err)
	require.Len(t, frames, 5)
	for _, fr := range frames {
		require.NotNil(t, fr.Analysis)
		assert.False(t, fr.IsProcessing)
	}

	persisted, err := f.frames.ListByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, persisted, 5)
}

func TestRescanRequiresReplace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newGateAnalyzer(false), nil)

	project, err := f.session.CreateProject(ctx, "clip", "/videos/clip.mp4")
	require.NoError(t, err)
	require.NoError(t, f.session.StartScan(ctx, false))
	f.session.Wait()
	first, _ := f.session.Frames()

	assert.ErrorIs(t, f.session.StartScan(ctx, false), ErrAlreadyScanned)

	require.NoError(t, f.session.StartScan(ctx, true))
	f.session.Wait()
	second, err := f.session.Frames()
	require.NoError(t, err)
	require.Len(t, second, 5)
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.Equal(t, models.StageComplete, f.session.Status().Stage)

	persisted, err := f.frames.ListByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, persisted, 5)
}

func TestScanSettingsLockedWhileRunning(t *testing.T) {
	ctx := context.Background()
	gate := newGateAnalyzer(true)
	f := newFixture(t, gate, nil)

	_, err := f.session.CreateProject(ctx, "clip", "/videos/clip.mp4")
	require.NoError(t, err)
	require.NoError(t, f.session.StartScan(ctx, false))
	<-gate.entered

	interval := 1.0
	_, err = f.session.SetScanSettings(ctx, ScanSettings{ScanInterval: &interval})
	assert.ErrorIs(t, err, ErrScanSettingsLocked)
	assert.ErrorIs(t, f.session.StartScan(ctx, true), pipeline.ErrScanInProgress)

	close(gate.release)
	f.session.Wait()
	assert.Equal(t, models.StageComplete, f.session.Status().Stage)
}

func TestSetScanSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newGateAnalyzer(false), nil)

	_, err := f.session.SetScanSettings(ctx, ScanSettings{})
	assert.ErrorIs(t, err, ErrNoProject)

	project, err := f.session.CreateProject(ctx, "clip", "/videos/clip.mp4")
	require.NoError(t, err)

	bad := 0.0
	_, err = f.session.SetScanSettings(ctx, ScanSettings{ScanInterval: &bad})
	assert.ErrorIs(t, err, media.ErrInvalidSampling)

	r := models.ScanRangeFirstHalf
	interval := 1.0
	tmpl := "{project}-{index}"
	updated, err := f.session.SetScanSettings(ctx, ScanSettings{ScanRange: &r, ScanInterval: &interval, NamingTemplate: &tmpl})
	require.NoError(t, err)
	assert.Equal(t, models.ScanRangeFirstHalf, updated.ScanRange)

	stored, err := f.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored.ScanInterval)
	require.NotNil(t, stored.FrameNamingTemplate)
	assert.Equal(t, tmpl, *stored.FrameNamingTemplate)

	require.NoError(t, f.session.StartScan(ctx, false))
	f.session.Wait()
	frames, err := f.session.Frames()
	require.NoError(t, err)
	require.Len(t, frames, 5)
	require.NotNil(t, frames[0].CustomName)
	assert.Equal(t, "clip-1", *frames[0].CustomName)
}

func TestCurationAndReopen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newGateAnalyzer(false), nil)

	project, err := f.session.CreateProject(ctx, "clip", "/videos/clip.mp4")
	require.NoError(t, err)
	require.NoError(t, f.session.StartScan(ctx, false))
	f.session.Wait()
	frames, _ := f.session.Frames()

	kept, err := f.session.ToggleKeeper(ctx, frames[1].ID)
	require.NoError(t, err)
	assert.True(t, kept.IsKeeper)

	tagged, err := f.session.SetCategories(ctx, frames[1].ID, []string{" Portraits ", "portraits", "", "Groups"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Portraits", "Groups"}, tagged.Categories)

	require.NoError(t, f.session.DeleteFrame(ctx, frames[4].ID))
	assert.Equal(t, []string{frames[4].ID}, f.events.deleted)

	f.session.Reset()
	_, err = f.session.Project()
	assert.ErrorIs(t, err, ErrNoProject)
	assert.Equal(t, models.StageIdle, f.session.Status().Stage)

	library, err := f.session.Library(ctx)
	require.NoError(t, err)
	require.Len(t, library, 1)
	assert.Equal(t, frames[1].ID, library[0].ID)

	_, err = f.session.OpenProject(ctx, project.ID)
	require.NoError(t, err)
	reopened, err := f.session.Frames()
	require.NoError(t, err)
	require.Len(t, reopened, 4)
	assert.True(t, reopened[1].IsKeeper)
	assert.Equal(t, []string{"Portraits", "Groups"}, reopened[1].Categories)
	keepers, err := f.session.Keepers()
	require.NoError(t, err)
	assert.Len(t, keepers, 1)
}

func TestOpenProjectWithoutMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newGateAnalyzer(false), nil)

	project := &models.Project{ID: "gone", Name: "gone", MediaPath: "/missing.mp4", Duration: 10, ScanInterval: 2}
	require.NoError(t, f.projects.Create(ctx, project))

	_, err := f.session.OpenProject(ctx, "gone")
	require.NoError(t, err)
	assert.ErrorIs(t, f.session.StartScan(ctx, false), pipeline.ErrNoMedia)

	_, err = f.session.OpenProject(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSuggestCategoriesStoresOnProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newGateAnalyzer(false), fakeSuggester{labels: []string{"Portraits", "Dancing"}})

	_, err := f.session.SuggestCategories(ctx)
	assert.ErrorIs(t, err, ErrNoProject)

	project, err := f.session.CreateProject(ctx, "clip", "/videos/clip.mp4")
	require.NoError(t, err)
	labels, err := f.session.SuggestCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Portraits", "Dancing"}, labels)

	stored, err := f.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Portraits", "Dancing"}, stored.Categories)
	current, err := f.session.Project()
	require.NoError(t, err)
	assert.Equal(t, stored.Categories, current.Categories)
}

func TestDeleteOpenProjectResetsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newGateAnalyzer(false), nil)

	project, err := f.session.CreateProject(ctx, "clip", "/videos/clip.mp4")
	require.NoError(t, err)
	require.NoError(t, f.session.StartScan(ctx, false))
	f.session.Wait()

	require.NoError(t, f.session.DeleteProject(ctx, project.ID))
	_, err = f.session.Project()
	assert.ErrorIs(t, err, ErrNoProject)
	assert.Zero(t, f.store.Len())

	persisted, err := f.frames.ListByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, persisted)
	assert.ErrorIs(t, f.session.DeleteProject(ctx, project.ID), repository.ErrNotFound)
}

func TestResetDiscardsInFlightScan(t *testing.T) {
	ctx := context.Background()
	gate := newGateAnalyzer(true)
	f := newFixture(t, gate, nil)

	_, err := f.session.CreateProject(ctx, "clip", "/videos/clip.mp4")
	require.NoError(t, err)
	require.NoError(t, f.session.StartScan(ctx, false))
	<-gate.entered

	f.session.Reset()
	close(gate.release)
	f.session.Wait()

	assert.Equal(t, models.StageIdle, f.session.Status().Stage)
	assert.Zero(t, f.store.Len())
}
