// Package rebuilder repairs lost or corrupt chunks. It pulls tasks from a
// feed and runs each one to completion on one of a fixed number of workers.
// Failed tasks are reported, never retried here: the feed owner decides
// whether to submit them again, possibly with other options.
package rebuilder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zblob/internal/content"
	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
)

// Task outcomes, used as result labels.
const (
	OutcomeRebuilt            = "rebuilt"
	OutcomeObsolete           = "obsolete"
	OutcomeFrozen             = "frozen"
	OutcomeUnrecoverable      = "unrecoverable"
	OutcomeECDriver           = "ec_driver"
	OutcomeVerifyFailed       = "verify_failed"
	OutcomePlacementExhausted = "placement_exhausted"
	OutcomeConflict           = "conflict"
	OutcomeInvalid            = "invalid"
	OutcomeError              = "error"
)

// Config tunes a rebuilder.
type Config struct {
	Namespace               string
	Workers                 int
	AllowSameRawx           bool
	ReadAllAvailableSources bool
	// ServiceID is the node whose chunks are being rebuilt, used to pick
	// among replicated copies sharing a chunk id.
	ServiceID string
	// MetadataTimeout bounds the container status lookup. Zero means no bound.
	MetadataTimeout time.Duration
}

// ContentLoader loads contents with their chunk lists.
type ContentLoader interface {
	Get(ctx context.Context, containerID, contentID string) (content.Content, error)
}

// ContainerService reports container status.
type ContainerService interface {
	ContainerInfo(ctx context.Context, containerID string) (domain.Container, error)
}

// Result is the outcome of one task: a byte count or an error.
type Result struct {
	Task     domain.RebuildTask
	Bytes    int64
	Err      error
	Outcome  string
	Duration time.Duration
}

// Sink receives results. It is called from worker goroutines.
type Sink interface {
	Report(r Result)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(r Result)

func (f SinkFunc) Report(r Result) { f(r) }

// Rebuilder runs rebuild tasks.
type Rebuilder struct {
	cfg        Config
	loader     ContentLoader
	containers ContainerService
	metrics    *Metrics
}

// New creates a rebuilder. metrics may be nil.
func New(cfg Config, loader ContentLoader, containers ContainerService, metrics *Metrics) *Rebuilder {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Rebuilder{
		cfg:        cfg,
		loader:     loader,
		containers: containers,
		metrics:    metrics,
	}
}

// ProcessTask rebuilds one chunk and returns the number of bytes written.
func (r *Rebuilder) ProcessTask(ctx context.Context, task domain.RebuildTask) (int64, error) {
	if !task.Valid() {
		return 0, fmt.Errorf("%w: %+v", apperrors.ErrInvalidTask, task)
	}
	if task.Namespace != r.cfg.Namespace {
		return 0, fmt.Errorf("%w: namespace %s, expected %s", apperrors.ErrInvalidTask, task.Namespace, r.cfg.Namespace)
	}

	c, err := r.loader.Get(ctx, task.ContainerID, task.ContentID)
	if err != nil {
		return 0, err
	}

	container, err := r.containerInfo(ctx, task.ContainerID)
	if err != nil {
		return 0, err
	}
	if container.Status != domain.ContainerEnabled {
		return 0, fmt.Errorf("%w: %s is %s", apperrors.ErrFrozenContainer, task.ContainerID, container.Status)
	}

	return c.RebuildChunk(ctx, task.ChunkID, content.RebuildOptions{
		ServiceID:               r.cfg.ServiceID,
		AllowSameRawx:           r.cfg.AllowSameRawx,
		ReadAllAvailableSources: r.cfg.ReadAllAvailableSources,
	})
}

func (r *Rebuilder) containerInfo(ctx context.Context, containerID string) (domain.Container, error) {
	if r.cfg.MetadataTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.MetadataTimeout)
		defer cancel()
	}
	return r.containers.ContainerInfo(ctx, containerID)
}

// Run processes every task of feed with cfg.Workers workers and reports each
// result to sink. It returns when the feed is drained, or with the feed
// error or ctx error that stopped it.
func (r *Rebuilder) Run(ctx context.Context, feed Feed, sink Sink) error {
	tasks := make(chan domain.RebuildTask)
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for task := range tasks {
				sink.Report(r.run(ctx, worker, task))
			}
		}(i)
	}

	feedErr := r.dispatch(ctx, feed, tasks, sink)
	close(tasks)
	wg.Wait()
	return feedErr
}

func (r *Rebuilder) dispatch(ctx context.Context, feed Feed, tasks chan<- domain.RebuildTask, sink Sink) error {
	for {
		task, err := feed.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, apperrors.ErrInvalidTask) {
			result := Result{Err: err, Outcome: OutcomeInvalid}
			r.metrics.observe(result)
			sink.Report(result)
			continue
		}
		if err != nil {
			return err
		}

		select {
		case tasks <- task:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Rebuilder) run(ctx context.Context, worker int, task domain.RebuildTask) Result {
	logger := log.WithFields(log.Fields{
		"worker":       worker,
		"container_id": task.ContainerID,
		"content_id":   task.ContentID,
		"chunk_id":     task.ChunkID,
	})
	if r.metrics != nil {
		r.metrics.InFlight.Inc()
		defer r.metrics.InFlight.Dec()
	}

	start := time.Now()
	n, err := r.ProcessTask(ctx, task)
	result := Result{
		Task:     task,
		Bytes:    n,
		Err:      err,
		Outcome:  Classify(err),
		Duration: time.Since(start),
	}
	r.metrics.observe(result)

	switch result.Outcome {
	case OutcomeRebuilt:
		logger.WithField("bytes", n).Info("Chunk rebuilt")
	case OutcomeObsolete:
		logger.WithError(err).Info("Task dropped, chunk no longer referenced")
	default:
		logger.WithField("outcome", result.Outcome).WithError(err).Warn("Rebuild failed")
	}
	return result
}

// Classify maps a task error to its outcome label. The most specific kind
// wins.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeRebuilt
	case errors.Is(err, apperrors.ErrContentNotFound), errors.Is(err, apperrors.ErrOrphanChunk):
		return OutcomeObsolete
	case errors.Is(err, apperrors.ErrInvalidTask):
		return OutcomeInvalid
	case errors.Is(err, apperrors.ErrFrozenContainer):
		return OutcomeFrozen
	case errors.Is(err, apperrors.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, apperrors.ErrPlacementExhausted):
		return OutcomePlacementExhausted
	case errors.Is(err, apperrors.ErrECDriver):
		return OutcomeECDriver
	case errors.Is(err, apperrors.ErrVerifyFailed):
		return OutcomeVerifyFailed
	case errors.Is(err, apperrors.ErrUnrecoverableContent):
		return OutcomeUnrecoverable
	default:
		return OutcomeError
	}
}
