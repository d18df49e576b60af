package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/tubefetch/internal/delivery"
	"github.com/iconidentify/tubefetch/internal/domain"
	"github.com/iconidentify/tubefetch/internal/repository"
)

// ErrShutdownTimeout is returned when workers don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// ErrStopped is returned when submitting to a stopped pool and given to
// requests still queued when it stopped.
var ErrStopped = fmt.Errorf("worker pool stopped: %w", domain.ErrShuttingDown)

// finishedRetention is how long finished jobs stay visible in queue stats.
const finishedRetention = time.Hour

// abandonTimeout bounds the message sent to each request dropped at shutdown.
const abandonTimeout = 5 * time.Second

// Processor runs one fetch request to completion.
type Processor interface {
	Process(ctx context.Context, req domain.DownloadRequest, sink delivery.Sink) error
	// Abandon reports err to a request that will never run.
	Abandon(ctx context.Context, req domain.DownloadRequest, sink delivery.Sink, err error)
}

// Pool manages a pool of workers for processing fetch jobs.
type Pool struct {
	workers        int
	queueSize      int
	pollInterval   time.Duration
	requestTimeout time.Duration
	jobRepo        repository.JobRepository
	processor      Processor
	logger         *slog.Logger

	mu    sync.Mutex
	sinks map[domain.JobID]delivery.Sink
	wake  chan struct{}

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker pool configuration.
type Config struct {
	Workers        int
	QueueSize      int
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// NewPool creates a new worker pool.
func NewPool(
	cfg Config,
	jobRepo repository.JobRepository,
	processor Processor,
	logger *slog.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:        cfg.Workers,
		queueSize:      cfg.QueueSize,
		pollInterval:   cfg.PollInterval,
		requestTimeout: cfg.RequestTimeout,
		jobRepo:        jobRepo,
		processor:      processor,
		logger:         logger,
		sinks:          make(map[domain.JobID]delivery.Sink),
		wake:           make(chan struct{}, cfg.Workers),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Submit queues a request. Its messages go to sink. It fails with
// domain.ErrQueueFull when the queue is at capacity.
func (p *Pool) Submit(ctx context.Context, req domain.DownloadRequest, sink delivery.Sink) (*domain.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// checked under the lock so Stop never misses a job enqueued concurrently
	if p.ctx.Err() != nil {
		return nil, ErrStopped
	}

	stats, err := p.jobRepo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	if stats.Queued >= p.queueSize {
		return nil, domain.ErrQueueFull
	}

	job := domain.NewJob(domain.JobID("job_"+uuid.New().String()[:8]), req)
	if err := p.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	p.sinks[job.ID] = sink

	select {
	case p.wake <- struct{}{}:
	default:
	}

	p.logger.Info("fetch queued",
		"job_id", job.ID,
		"request_id", req.ID,
		"queued", stats.Queued+1,
	)
	return job, nil
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "workers", p.workers, "queue_size", p.queueSize)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.janitor()
}

// Stop cancels running fetches and waits for workers to exit. Requests still
// queued are told they were dropped and marked failed.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")
	p.mu.Lock()
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-time.After(timeout):
		err = ErrShutdownTimeout
	}

	p.abandonQueued()
	return err
}

// abandonQueued drains the queue after workers stopped taking jobs.
func (p *Pool) abandonQueued() {
	ctx := context.WithoutCancel(p.ctx)
	for {
		job, err := p.jobRepo.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNoJobs) {
				p.logger.Error("failed to drain queue", "error", err)
			}
			return
		}

		logger := p.logger.With("job_id", job.ID, "request_id", job.Request.ID)
		sink := p.takeSink(job.ID, logger)

		msgCtx, cancel := context.WithTimeout(ctx, abandonTimeout)
		p.processor.Abandon(msgCtx, job.Request, sink, ErrStopped)
		cancel()

		job.MarkFailed(ErrStopped.Error())
		if err := p.jobRepo.Update(ctx, job); err != nil {
			logger.Error("failed to update dropped job", "error", err)
		}
		logger.Warn("queued fetch dropped at shutdown")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("worker stopping")
			return
		case <-p.wake:
		case <-ticker.C:
		}

		// drain the queue before sleeping again
		for p.ctx.Err() == nil && p.processNextJob(logger) {
		}
	}
}

// processNextJob runs one queued job. It reports whether a job was found.
func (p *Pool) processNextJob(logger *slog.Logger) bool {
	job, err := p.jobRepo.Dequeue(p.ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoJobs) {
			logger.Error("failed to dequeue job", "error", err)
		}
		return false
	}

	logger = logger.With("job_id", job.ID, "request_id", job.Request.ID)
	sink := p.takeSink(job.ID, logger)

	job.MarkProcessing()
	if err := p.jobRepo.Update(p.ctx, job); err != nil {
		logger.Error("failed to update job status", "error", err)
	}

	err = p.run(job, sink)
	if err != nil {
		job.MarkFailed(err.Error())
	} else {
		job.MarkCompleted()
	}
	if err := p.jobRepo.Update(p.ctx, job); err != nil {
		logger.Error("failed to update job after run", "error", err)
	}

	logger.Debug("job finished", "status", job.Status)
	return true
}

func (p *Pool) run(job *domain.Job, sink delivery.Sink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in worker", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", domain.ErrInternal, r)
		}
	}()

	ctx := p.ctx
	if p.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.requestTimeout)
		defer cancel()
	}

	return p.processor.Process(ctx, job.Request, sink)
}

func (p *Pool) takeSink(id domain.JobID, logger *slog.Logger) delivery.Sink {
	p.mu.Lock()
	defer p.mu.Unlock()

	sink, ok := p.sinks[id]
	delete(p.sinks, id)
	if !ok {
		return logSink{logger: logger}
	}
	return sink
}

// janitor prunes finished jobs so queue stats stay bounded.
func (p *Pool) janitor() {
	defer p.wg.Done()

	ticker := time.NewTicker(finishedRetention / 4)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			n, err := p.jobRepo.PruneFinished(p.ctx, time.Now().Add(-finishedRetention))
			if err != nil {
				p.logger.Warn("failed to prune jobs", "error", err)
			} else if n > 0 {
				p.logger.Debug("pruned finished jobs", "count", n)
			}
		}
	}
}

// logSink stands in for a job whose chat handle was lost.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) Progress(ctx context.Context, text string) error {
	s.logger.Debug("progress without sink", "text", text)
	return nil
}

func (s logSink) Deliver(ctx context.Context, msg domain.Message) error {
	s.logger.Warn("message without sink", "text", msg.Text, "link", msg.Link)
	return nil
}
