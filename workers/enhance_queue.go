package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/camden-git/framesys/ai"
	"github.com/camden-git/framesys/enhance"
	"github.com/camden-git/framesys/metrics"
	"github.com/camden-git/framesys/models"
)

// TaskType constants
const (
	TaskEnhance      = "enhance"
	TaskBatchEnhance = "batch_enhance"
	TaskReanalyze    = "reanalyze"
)

var ErrQueueFull = errors.New("enhancement queue is full")

// ErrAlreadyQueued is returned when the same task is already pending for a frame
var ErrAlreadyQueued = errors.New("task already queued for frame")

type EnhanceJob struct {
	TaskType string
	FrameIDs []string
	Styles   models.EnhancementStyles
}

func (j EnhanceJob) pendingKey() string {
	return fmt.Sprintf("%s:%s", strings.Join(j.FrameIDs, ","), j.TaskType)
}

// FrameEnhancer is implemented by enhance.Manager
type FrameEnhancer interface {
	Enhance(ctx context.Context, frameID string, styles models.EnhancementStyles) (*models.Frame, error)
	BatchEnhance(ctx context.Context, frameIDs []string, styles models.EnhancementStyles) ([]enhance.BatchResult, error)
}

// FrameAnalyzer reruns analysis for one frame
type FrameAnalyzer interface {
	Reanalyze(ctx context.Context, frameID string) (*models.Frame, error)
}

// JobDoneFunc is told about every finished job. err is nil on success; for a
// batch it joins the per-frame failures.
type JobDoneFunc func(job EnhanceJob, err error)

// EnhanceQueue runs provider-bound frame jobs one at a time
type EnhanceQueue struct {
	JobQueue chan EnhanceJob
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[string]bool
	Mutex    sync.Mutex

	enhancer FrameEnhancer
	analyzer FrameAnalyzer
	onDone   JobDoneFunc
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
}

func NewEnhanceQueue(enhancer FrameEnhancer, analyzer FrameAnalyzer, queueSize int, onDone JobDoneFunc, logger *slog.Logger) *EnhanceQueue {
	if queueSize <= 0 {
		queueSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &EnhanceQueue{
		JobQueue: make(chan EnhanceJob, queueSize),
		StopChan: make(chan struct{}),
		Pending:  make(map[string]bool),
		enhancer: enhancer,
		analyzer: analyzer,
		onDone:   onDone,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With("component", "workers.enhance"),
	}
	q.Wg.Add(1)
	go q.worker()
	q.logger.Info("started enhancement worker", "queue_size", queueSize)
	return q
}

func (q *EnhanceQueue) worker() {
	defer q.Wg.Done()
	for {
		select {
		case job, ok := <-q.JobQueue:
			if !ok {
				q.logger.Info("enhancement worker stopping, job queue closed")
				return
			}
			metrics.EnhanceQueueDepth.Set(float64(len(q.JobQueue)))
			q.process(job)

			q.Mutex.Lock()
			delete(q.Pending, job.pendingKey())
			q.Mutex.Unlock()

		case <-q.StopChan:
			q.logger.Info("enhancement worker stopping, stop signal received")
			return
		}
	}
}

func (q *EnhanceQueue) process(job EnhanceJob) {
	log := q.logger.With("task", job.TaskType, "frames", job.FrameIDs)
	log.Debug("processing job")

	var err error
	switch job.TaskType {
	case TaskEnhance:
		_, err = q.enhancer.Enhance(q.ctx, job.FrameIDs[0], job.Styles)
	case TaskBatchEnhance:
		var results []enhance.BatchResult
		results, err = q.enhancer.BatchEnhance(q.ctx, job.FrameIDs, job.Styles)
		if err == nil {
			var failures []error
			for _, r := range results {
				if r.Err != nil {
					failures = append(failures, fmt.Errorf("frame %s: %w", r.FrameID, r.Err))
				}
			}
			err = errors.Join(failures...)
		}
	case TaskReanalyze:
		_, err = q.analyzer.Reanalyze(q.ctx, job.FrameIDs[0])
	default:
		err = fmt.Errorf("unknown task type '%s'", job.TaskType)
	}

	if err != nil {
		log.Warn("job failed", "error", err)
	} else {
		log.Info("job complete")
	}
	if q.onDone != nil {
		q.onDone(job, err)
	}
}

// QueueJob queues a job unless the same task is already pending for its frames
func (q *EnhanceQueue) QueueJob(job EnhanceJob) error {
	if len(job.FrameIDs) == 0 {
		return fmt.Errorf("job '%s' names no frames", job.TaskType)
	}
	key := job.pendingKey()

	q.Mutex.Lock()
	if q.Pending[key] {
		q.Mutex.Unlock()
		return ErrAlreadyQueued
	}
	q.Pending[key] = true
	q.Mutex.Unlock()

	select {
	case q.JobQueue <- job:
		metrics.EnhanceQueueDepth.Set(float64(len(q.JobQueue)))
		q.logger.Debug("queued job", "task", job.TaskType, "frames", job.FrameIDs)
		return nil
	default:
		q.logger.Warn("enhancement job queue full", "task", job.TaskType, "frames", job.FrameIDs)
		q.Mutex.Lock()
		delete(q.Pending, key)
		q.Mutex.Unlock()
		return ErrQueueFull
	}
}

// Enhance queues a single-frame enhancement after validating the styles
func (q *EnhanceQueue) Enhance(frameID string, styles models.EnhancementStyles) error {
	if err := ai.ValidateStyles(styles); err != nil {
		return err
	}
	return q.QueueJob(EnhanceJob{TaskType: TaskEnhance, FrameIDs: []string{frameID}, Styles: styles.Clone()})
}

// BatchEnhance queues a batch after the size and style checks
func (q *EnhanceQueue) BatchEnhance(frameIDs []string, styles models.EnhancementStyles) error {
	if err := enhance.ValidateBatch(frameIDs, styles); err != nil {
		return err
	}
	return q.QueueJob(EnhanceJob{TaskType: TaskBatchEnhance, FrameIDs: append([]string(nil), frameIDs...), Styles: styles.Clone()})
}

// Reanalyze queues an analysis rerun for one frame
func (q *EnhanceQueue) Reanalyze(frameID string) error {
	return q.QueueJob(EnhanceJob{TaskType: TaskReanalyze, FrameIDs: []string{frameID}})
}

func (q *EnhanceQueue) Stop() {
	q.logger.Info("stopping enhancement worker")
	close(q.StopChan)
	q.cancel()
	q.Wg.Wait()
	q.logger.Info("enhancement worker stopped")
}

// FailureMessage turns a failed job into the text shown to the user
func FailureMessage(job EnhanceJob, err error) string {
	var what string
	switch job.TaskType {
	case TaskReanalyze:
		what = "Analysis"
	case TaskBatchEnhance:
		what = "Batch enhancement"
	default:
		what = "Enhancement"
	}
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		return what + " failed: rate limit reached, please try again shortly"
	case errors.Is(err, ai.ErrPaymentRequired):
		return what + " failed: AI credits exhausted"
	default:
		return what + " failed: " + err.Error()
	}
}
