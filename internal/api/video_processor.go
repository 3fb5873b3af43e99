package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"streamtube/internal/models"
	"streamtube/internal/observability/metrics"
	"streamtube/internal/storage"
)

// MediaInfo describes what probing an uploaded video discovered.
type MediaInfo struct {
	Duration float64
}

// MediaProber inspects an uploaded video before it is published. Production
// wiring points this at an ffprobe sidecar; tests supply fakes.
type MediaProber interface {
	Probe(ctx context.Context, url string) (MediaInfo, error)
}

// NoopProber accepts every upload without inspecting it.
type NoopProber struct{}

func (NoopProber) Probe(ctx context.Context, url string) (MediaInfo, error) {
	return MediaInfo{}, ctx.Err()
}

// VideoProcessorConfig configures the background processing pool.
type VideoProcessorConfig struct {
	Store     storage.Repository
	Prober    MediaProber
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// VideoProcessor moves freshly uploaded videos from processing to ready (or
// failed) on a bounded worker pool. Interrupted jobs are re-queued on Start.
type VideoProcessor struct {
	store   storage.Repository
	prober  MediaProber
	workers int
	timeout time.Duration
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	queue chan string
	group *errgroup.Group

	mu       sync.Mutex
	inFlight map[string]struct{}
	started  bool
}

const (
	defaultProcessorWorkers   = 2
	defaultProcessorQueueSize = 64
	defaultProcessorTimeout   = 10 * time.Minute
)

func NewVideoProcessor(cfg VideoProcessorConfig) *VideoProcessor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultProcessorWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultProcessorQueueSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProcessorTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prober := cfg.Prober
	if prober == nil {
		prober = NoopProber{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &VideoProcessor{
		store:    cfg.Store,
		prober:   prober,
		workers:  workers,
		timeout:  timeout,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		queue:    make(chan string, queueSize),
		inFlight: make(map[string]struct{}),
	}
}

// Start launches the worker pool and re-queues videos left in the processing
// state by an earlier run.
func (p *VideoProcessor) Start() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.group = &errgroup.Group{}
	for i := 0; i < p.workers; i++ {
		p.group.Go(p.worker)
	}

	go p.recoverPending()
}

// Shutdown stops the pool and waits for in-flight jobs up to the context
// deadline.
func (p *VideoProcessor) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.cancel()
	if p.group == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue queues a video for processing. Calls after shutdown are dropped.
func (p *VideoProcessor) Enqueue(id string) {
	if p == nil || strings.TrimSpace(id) == "" {
		return
	}
	select {
	case <-p.ctx.Done():
		return
	default:
	}
	select {
	case p.queue <- id:
	case <-p.ctx.Done():
	}
}

func (p *VideoProcessor) worker() error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case id := <-p.queue:
			if strings.TrimSpace(id) == "" {
				continue
			}
			if !p.beginWork(id) {
				continue
			}
			p.processVideo(id)
			p.finishWork(id)
		}
	}
}

func (p *VideoProcessor) beginWork(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.inFlight[id]; exists {
		return false
	}
	p.inFlight[id] = struct{}{}
	return true
}

func (p *VideoProcessor) finishWork(id string) {
	p.mu.Lock()
	delete(p.inFlight, id)
	p.mu.Unlock()
}

func (p *VideoProcessor) recoverPending() {
	if p.store == nil {
		return
	}
	for _, video := range p.store.ListVideosByState(models.VideoStateProcessing) {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		p.Enqueue(video.ID)
	}
}

func (p *VideoProcessor) processVideo(id string) {
	if p.store == nil {
		return
	}
	video, ok := p.store.GetVideo(id)
	if !ok {
		return
	}
	if video.State != models.VideoStateProcessing {
		return
	}
	if strings.TrimSpace(video.VideoURL) == "" {
		p.failVideo(id, fmt.Errorf("video source URL is required"))
		return
	}

	metrics.ProcessingJobStarted("video")

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	info, err := p.prober.Probe(ctx, video.VideoURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				err = ctxErr
			}
		}
		p.failVideo(id, err)
		return
	}

	if _, err := p.store.SetVideoState(id, models.VideoStateReady, info.Duration); err != nil {
		p.logger.Error("failed to mark video ready", "video_id", id, "error", err)
		metrics.ProcessingJobFailed("video")
		return
	}
	metrics.ProcessingJobCompleted("video")
	p.logger.Info("video ready", "video_id", id, "duration", info.Duration)
}

func (p *VideoProcessor) failVideo(id string, cause error) {
	metrics.ProcessingJobFailed("video")
	p.logger.Error("video processing failed", "video_id", id, "error", cause)
	if _, err := p.store.SetVideoState(id, models.VideoStateFailed, 0); err != nil {
		p.logger.Error("failed to mark video failed", "video_id", id, "error", err)
	}
}
