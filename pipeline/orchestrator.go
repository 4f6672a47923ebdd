// Package pipeline drives a scan through sampling, analysis and clustering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/camden-git/framesys/framestore"
	"github.com/camden-git/framesys/media"
	"github.com/camden-git/framesys/metrics"
	"github.com/camden-git/framesys/models"
	"github.com/google/uuid"
)

var (
	ErrScanInProgress = errors.New("a scan is already in progress")
	ErrNoMedia        = errors.New("project has no bound media")
	// ErrSuperseded is returned by a run that was reset while in flight
	ErrSuperseded = errors.New("scan superseded by reset")
)

// DefaultClusterDelay is the length of the placeholder clustering stage
const DefaultClusterDelay = time.Second

// Analyzer produces an analysis for one image
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) (*models.Analysis, error)
}

// Observer receives every status change, in order. Observers must not call
// Run, Reset or Reanalyze.
type Observer func(models.PipelineStatus)

// Notifier surfaces terminal failures to the user
type Notifier func(level, message string)

// Options tunes timing and identity generation; zero values pick defaults
type Options struct {
	ClusterDelay time.Duration
	Sleep        func(ctx context.Context, d time.Duration) error
	Now          func() time.Time
	NewID        func() string
}

// Orchestrator owns the pipeline status for one session
type Orchestrator struct {
	mu        sync.Mutex
	emitMu    sync.Mutex
	status    models.PipelineStatus
	epoch     uint64
	observers []Observer
	notify    Notifier

	store    *framestore.Store
	analyzer Analyzer
	opts     Options
	logger   *slog.Logger
}

func NewOrchestrator(store *framestore.Store, analyzer Analyzer, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.ClusterDelay < 0 {
		opts.ClusterDelay = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		status:   models.IdleStatus(0),
		store:    store,
		analyzer: analyzer,
		opts:     opts,
		logger:   logger.With("component", "pipeline"),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Subscribe registers an observer for status changes
func (o *Orchestrator) Subscribe(fn Observer) {
	o.mu.Lock()
	o.observers = append(o.observers, fn)
	o.mu.Unlock()
}

// OnNotify registers the failure notifier
func (o *Orchestrator) OnNotify(fn Notifier) {
	o.mu.Lock()
	o.notify = fn
	o.mu.Unlock()
}

// Status returns the current status
func (o *Orchestrator) Status() models.PipelineStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Reset forces the pipeline back to idle and invalidates any run in flight.
// Outstanding calls finish but their results are discarded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.epoch++
	o.status = models.IdleStatus(o.epoch)
	o.emitLocked()
}

// emitLocked is called with o.mu held and releases it. Observers run in
// mutation order without o.mu held.
func (o *Orchestrator) emitLocked() {
	snapshot := o.status
	observers := append([]Observer(nil), o.observers...)
	o.emitMu.Lock()
	o.mu.Unlock()
	defer o.emitMu.Unlock()
	for _, fn := range observers {
		fn(snapshot)
	}
}

// update applies fn to the status if epoch is still current
func (o *Orchestrator) update(epoch uint64, fn func(*models.PipelineStatus)) bool {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return false
	}
	fn(&o.status)
	o.emitLocked()
	return true
}

// commit runs a store write only if epoch is still current. The write runs
// under o.mu so a concurrent Reset cannot interleave with it.
func (o *Orchestrator) commit(epoch uint64, fn func() error) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		return false, nil
	}
	return true, fn()
}

func (o *Orchestrator) current(epoch uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return epoch == o.epoch
}

// Run executes one scan synchronously: sampling, analyzing, clustering,
// complete. Per-frame failures are skipped; run-level failures reset the
// pipeline to idle and are returned. Frames already committed stay.
func (o *Orchestrator) Run(ctx context.Context, project *models.Project, src media.Source) (err error) {
	if project == nil || src == nil {
		return ErrNoMedia
	}

	o.mu.Lock()
	if o.status.Stage != models.StageIdle {
		o.mu.Unlock()
		return ErrScanInProgress
	}
	epoch := o.epoch
	o.status = models.PipelineStatus{Stage: models.StageSampling, Epoch: epoch}
	o.emitLocked()

	started := o.opts.Now()
	log := o.logger.With("project_id", project.ID, "epoch", epoch)
	log.Info("scan started", "duration", project.Duration, "range", project.ScanRange, "interval", project.ScanInterval)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panicked: %v", r)
		}
		outcome := metrics.ResultSuccess
		switch {
		case errors.Is(err, ErrSuperseded):
			outcome = metrics.ResultStale
			log.Info("scan superseded by reset")
		case err != nil:
			outcome = metrics.ResultFailure
			o.abort(epoch, err)
			log.Error("scan failed", "error", err)
		default:
			log.Info("scan complete", "elapsed", o.opts.Now().Sub(started))
		}
		metrics.ScanDuration.WithLabelValues(outcome).Observe(o.opts.Now().Sub(started).Seconds())
	}()

	ids, err := o.sample(ctx, epoch, project, src, log)
	if err != nil {
		return err
	}
	if err := o.analyze(ctx, epoch, ids, log); err != nil {
		return err
	}
	return o.cluster(ctx, epoch)
}

func (o *Orchestrator) abort(epoch uint64, cause error) {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}
	o.status = models.IdleStatus(epoch)
	notify := o.notify
	o.emitLocked()

	if notify != nil {
		notify("error", "Scan failed: "+cause.Error())
	}
}

func (o *Orchestrator) checkpoint(ctx context.Context, epoch uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !o.current(epoch) {
		return ErrSuperseded
	}
	return nil
}

func (o *Orchestrator) sample(ctx context.Context, epoch uint64, project *models.Project, src media.Source, log *slog.Logger) ([]string, error) {
	timestamps, err := media.Sample(project.Duration, project.ScanRange, project.ScanInterval)
	if err != nil {
		return nil, err
	}

	total := len(timestamps)
	var ids []string
	for i, ts := range timestamps {
		if err := o.checkpoint(ctx, epoch); err != nil {
			return ids, err
		}

		img, err := src.Grab(ctx, ts)
		switch {
		case err == nil:
			frame := models.Frame{
				ID:        o.opts.NewID(),
				ProjectID: project.ID,
				Timestamp: ts,
				ImageData: img,
				CreatedAt: o.opts.Now().UnixMilli(),
			}
			if project.FrameNamingTemplate != nil && *project.FrameNamingTemplate != "" {
				name := FrameName(*project.FrameNamingTemplate, project.Name, len(ids)+1, ts)
				frame.CustomName = &name
			}
			committed, err := o.commit(epoch, func() error { return o.store.Add(ctx, frame) })
			if err != nil {
				return ids, fmt.Errorf("failed to store frame at %.2fs: %w", ts, err)
			}
			if committed {
				ids = append(ids, frame.ID)
				metrics.FramesExtractedTotal.Inc()
			}
		case errors.Is(err, media.ErrMediaSeek):
			metrics.GrabFailuresTotal.Inc()
			log.Warn("skipping timestamp", "timestamp", ts, "error", err)
		default:
			return ids, fmt.Errorf("media became unreadable at %.2fs: %w", ts, err)
		}

		extracted := len(ids)
		o.update(epoch, func(s *models.PipelineStatus) {
			s.SamplingProgress = float64(i+1) / float64(total) * 100
			s.ExtractedCount = extracted
		})
	}
	log.Info("sampling complete", "timestamps", total, "extracted", len(ids))
	return ids, nil
}

func (o *Orchestrator) analyze(ctx context.Context, epoch uint64, ids []string, log *slog.Logger) error {
	if !o.update(epoch, func(s *models.PipelineStatus) {
		s.Stage = models.StageAnalyzing
		s.AnalyzingCurrent = 0
		s.AnalyzingTotal = len(ids)
	}) {
		return ErrSuperseded
	}

	for i, id := range ids {
		if err := o.checkpoint(ctx, epoch); err != nil {
			return err
		}
		o.analyzeFrame(ctx, epoch, id, log)
		o.update(epoch, func(s *models.PipelineStatus) { s.AnalyzingCurrent = i + 1 })
	}
	return nil
}

// analyzeFrame never fails the run: errors leave the frame without analysis
func (o *Orchestrator) analyzeFrame(ctx context.Context, epoch uint64, id string, log *slog.Logger) {
	frame, err := o.store.MarkProcessing(ctx, id)
	if err != nil {
		metrics.AnalysisTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		log.Info("skipping analysis", "frame_id", id, "error", err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.store.ClearProcessing(context.WithoutCancel(ctx), id)
			panic(r)
		}
	}()

	analysis, err := o.analyzer.Analyze(ctx, frame.ImageData)
	if err != nil {
		o.store.ClearProcessing(context.WithoutCancel(ctx), id)
		metrics.AnalysisTotal.WithLabelValues(metrics.ResultFailure).Inc()
		log.Warn("analysis failed", "frame_id", id, "error", err)
		return
	}

	off := false
	committed, err := o.commit(epoch, func() error {
		_, err := o.store.Update(ctx, id, framestore.FrameUpdate{Analysis: analysis, IsProcessing: &off})
		return err
	})
	if !committed || err != nil {
		o.store.ClearProcessing(context.WithoutCancel(ctx), id)
	}
	switch {
	case !committed:
		metrics.AnalysisTotal.WithLabelValues(metrics.ResultStale).Inc()
	case err != nil:
		metrics.AnalysisTotal.WithLabelValues(metrics.ResultFailure).Inc()
		log.Warn("failed to store analysis", "frame_id", id, "error", err)
	default:
		metrics.AnalysisTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	}
}

func (o *Orchestrator) cluster(ctx context.Context, epoch uint64) error {
	if !o.update(epoch, func(s *models.PipelineStatus) { s.Stage = models.StageClustering }) {
		return ErrSuperseded
	}
	// grouping is not implemented yet; the stage only holds its slot
	if err := o.opts.Sleep(ctx, o.opts.ClusterDelay); err != nil {
		return err
	}
	if !o.update(epoch, func(s *models.PipelineStatus) { s.Stage = models.StageComplete }) {
		return ErrSuperseded
	}
	return nil
}

// Reanalyze runs analysis for one frame outside a scan, replacing any prior result
func (o *Orchestrator) Reanalyze(ctx context.Context, id string) (*models.Frame, error) {
	frame, err := o.store.MarkProcessing(ctx, id)
	if err != nil {
		return nil, err
	}
	analysis, err := o.analyzer.Analyze(ctx, frame.ImageData)
	if err != nil {
		o.store.ClearProcessing(context.WithoutCancel(ctx), id)
		metrics.AnalysisTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, err
	}
	off := false
	updated, err := o.store.Update(ctx, id, framestore.FrameUpdate{Analysis: analysis, IsProcessing: &off})
	if err != nil {
		o.store.ClearProcessing(context.WithoutCancel(ctx), id)
		return nil, err
	}
	metrics.AnalysisTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return updated, nil
}

// FrameName renders a naming template. Supported placeholders are
// {project}, {index} and {timestamp}.
func FrameName(template, project string, index int, ts float64) string {
	return strings.NewReplacer(
		"{project}", project,
		"{index}", strconv.Itoa(index),
		"{timestamp}", strconv.FormatFloat(ts, 'f', 2, 64),
	).Replace(template)
}
