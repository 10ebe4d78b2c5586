package backtest

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
)

type indexedJob struct {
	index int
	job   Job
}

type indexedResult struct {
	index  int
	result Result
}

// WorkerPool runs independent simulations in parallel. Each job owns its
// account and orchestrator, so workers share nothing but the logger.
type WorkerPool struct {
	workerCount int
	logger      *logger.Logger
	progress    *ProgressTracker
}

// NewWorkerPool creates a pool with workerCount workers; <= 0 uses NumCPU
func NewWorkerPool(workerCount int, log *logger.Logger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &WorkerPool{workerCount: workerCount, logger: log}
}

// Progress returns the tracker of the batch in flight, or nil
func (wp *WorkerPool) Progress() *ProgressTracker {
	return wp.progress
}

// RunBatch runs every job and returns results in job order. Jobs without an
// ID get a fresh uuid. Jobs not started before ctx is done report ctx.Err().
func (wp *WorkerPool) RunBatch(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}
	wp.progress = NewProgressTracker(len(jobs))

	jobQueue := make(chan indexedJob)
	resultQueue := make(chan indexedResult, len(jobs))

	workers := wp.workerCount
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ij := range jobQueue {
				res := Run(ctx, ij.job, wp.logger)
				wp.progress.Increment()
				resultQueue <- indexedResult{index: ij.index, result: res}
			}
		}()
	}

	submitted := make([]bool, len(jobs))
submit:
	for i, job := range jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		select {
		case jobQueue <- indexedJob{index: i, job: job}:
			submitted[i] = true
		case <-ctx.Done():
			break submit
		}
	}
	close(jobQueue)
	wg.Wait()
	close(resultQueue)

	for r := range resultQueue {
		results[r.index] = r.result
	}
	for i, ok := range submitted {
		if !ok {
			results[i] = Result{ID: jobs[i].ID, Symbol: jobs[i].Symbol, Error: ctx.Err()}
		}
	}

	done, total, pct, elapsed := wp.progress.GetProgress()
	wp.logger.Info("Backtest batch finished: %d/%d jobs (%.0f%%) in %s", done, total, pct, elapsed.Round(time.Millisecond))
	return results
}

// ProgressTracker tracks the progress of batch processing
type ProgressTracker struct {
	total     int
	completed int
	startTime time.Time
	mutex     sync.RWMutex
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{total: total, startTime: time.Now()}
}

// Increment increments the completion count
func (pt *ProgressTracker) Increment() {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()
	pt.completed++
}

// GetProgress returns completed, total, percent and elapsed time
func (pt *ProgressTracker) GetProgress() (int, int, float64, time.Duration) {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	progress := 0.0
	if pt.total > 0 {
		progress = float64(pt.completed) / float64(pt.total) * 100
	}
	return pt.completed, pt.total, progress, time.Since(pt.startTime)
}

// EstimateTimeRemaining extrapolates from the average job time so far
func (pt *ProgressTracker) EstimateTimeRemaining() time.Duration {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	if pt.completed == 0 {
		return 0
	}
	avg := time.Since(pt.startTime) / time.Duration(pt.completed)
	return avg * time.Duration(pt.total-pt.completed)
}
