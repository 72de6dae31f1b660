package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pinscraper/pkg/logger"
)

// Task is one media file to fetch for a deduplicated pin
type Task struct {
	PinURL   string
	MediaURL string
	FileName string
}

// Result is the outcome of one task
type Result struct {
	Task     Task
	Path     string
	Skipped  bool
	Error    error
	Duration time.Duration
	Size     int
}

// Success reports whether the file is on disk after the task
func (r Result) Success() bool {
	return r.Error == nil
}

// Fetcher downloads the bytes behind a media URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Storage names, detects and saves downloaded files
type Storage interface {
	IsDownloaded(name string) bool
	Save(r io.Reader, name string) (string, error)
	Path(name string) string
}

// ErrPoolStopped is returned by Submit once the pool is shutting down
var ErrPoolStopped = errors.New("worker pool is shutting down")

// WorkerPool runs a fixed number of download workers over a bounded queue
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Task
	resultQueue chan Result
	group       *errgroup.Group
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     Fetcher
	storage     Storage
	limiter     *rate.Limiter
	logger      logger.Logger
}

// NewWorkerPool creates a new download worker pool. limiter may be nil.
// A pool is started once.
func NewWorkerPool(
	numWorkers int,
	fetcher Fetcher,
	storage Storage,
	limiter *rate.Limiter,
	log logger.Logger,
) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Task, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		fetcher:     fetcher,
		storage:     storage,
		limiter:     limiter,
		logger:      log.WithField("component", "downloader"),
	}
}

// NewRateLimiter returns a limiter allowing requestsPerSecond, or nil for no limit
func NewRateLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// Start launches the workers. They stop when ctx is cancelled or after Stop.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.ctx, wp.cancel = context.WithCancel(ctx)
	wp.group = new(errgroup.Group)

	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		id := i
		wp.group.Go(func() error {
			return wp.worker(id)
		})
	}
}

// Stop closes the queue, waits for in-flight tasks and closes Results.
// It returns the context error if the workers were cancelled.
func (wp *WorkerPool) Stop() error {
	close(wp.jobQueue)
	err := wp.group.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Info("Worker pool stopped")
	return err
}

// Submit queues a task, blocking while the queue is full
func (wp *WorkerPool) Submit(task Task) error {
	if wp.ctx.Err() != nil {
		return ErrPoolStopped
	}
	select {
	case wp.jobQueue <- task:
		return nil
	case <-wp.ctx.Done():
		return ErrPoolStopped
	}
}

// Results returns the result channel. It must be drained while tasks are submitted.
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

// Process runs every task through the pool. handle is called for each
// result in completion order from a single goroutine.
func (wp *WorkerPool) Process(ctx context.Context, tasks []Task, handle func(Result)) error {
	wp.Start(ctx)

	submitErr := make(chan error, 1)
	go func() {
		defer close(submitErr)
		for _, t := range tasks {
			if err := wp.Submit(t); err != nil {
				submitErr <- err
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range wp.Results() {
			if handle != nil {
				handle(r)
			}
		}
	}()

	err := <-submitErr
	stopErr := wp.Stop()
	<-done

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if stopErr != nil {
		return stopErr
	}
	return err
}

func (wp *WorkerPool) worker(id int) error {
	for {
		select {
		case <-wp.ctx.Done():
			return wp.ctx.Err()
		case task, ok := <-wp.jobQueue:
			if !ok {
				return nil
			}
			result := wp.processJob(task, id)
			select {
			case wp.resultQueue <- result:
			case <-wp.ctx.Done():
				return wp.ctx.Err()
			}
		}
	}
}

// processJob handles a single download task
func (wp *WorkerPool) processJob(task Task, workerID int) Result {
	start := time.Now()
	result := Result{Task: task, Path: wp.storage.Path(task.FileName)}

	if wp.storage.IsDownloaded(task.FileName) {
		result.Skipped = true
		result.Duration = time.Since(start)
		logger.LogDownload(wp.logger, task.PinURL, result.Path, true, nil)
		return result
	}

	if wp.limiter != nil {
		if err := wp.limiter.Wait(wp.ctx); err != nil {
			result.Error = fmt.Errorf("rate limit wait: %w", err)
			result.Duration = time.Since(start)
			return result
		}
	}

	data, err := wp.fetcher.Fetch(wp.ctx, task.MediaURL)
	if err != nil {
		result.Error = fmt.Errorf("download failed: %w", err)
		result.Duration = time.Since(start)
		wp.logger.ErrorWithFields("Worker failed to download media", map[string]interface{}{
			"worker_id": workerID,
			"pin_url":   task.PinURL,
			"error":     err.Error(),
		})
		return result
	}
	result.Size = len(data)

	path, err := wp.storage.Save(bytes.NewReader(data), task.FileName)
	if err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)
		logger.LogDownload(wp.logger, task.PinURL, result.Path, false, result.Error)
		return result
	}

	result.Path = path
	result.Duration = time.Since(start)
	logger.LogDownload(wp.logger, task.PinURL, path, false, nil)
	return result
}
