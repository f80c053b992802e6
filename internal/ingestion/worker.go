package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jeovahfialho/capital-gains/internal/domain"
	"github.com/jeovahfialho/capital-gains/pkg/logger"
	"go.uber.org/zap"
)

// BatchProcessor evaluates one batch against a fresh ledger.
type BatchProcessor interface {
	Process(ops []domain.Operation) []domain.Result
}

type WorkerPool struct {
	workers   int
	processor BatchProcessor
	jobQueue  chan Job
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Job struct {
	Index  int
	Batch  domain.Batch
	Result chan<- JobResult
}

type JobResult struct {
	Index   int
	BatchID string
	Results []domain.Result
	Err     error
}

// ErrBatchPanic reports a batch whose evaluation panicked. The other batches
// and the process are not affected.
var ErrBatchPanic = errors.New("falha inesperada ao avaliar lote")

func NewWorkerPool(workers int, processor BatchProcessor) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers:   workers,
		processor: processor,
		jobQueue:  make(chan Job, workers*2),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop closes the queue and waits for the workers. Only the goroutine that
// submits jobs may call it.
func (wp *WorkerPool) Stop() {
	wp.closeQueue()
	wp.wg.Wait()
}

func (wp *WorkerPool) closeQueue() {
	wp.closeOnce.Do(func() { close(wp.jobQueue) })
}

// Submit queues job, giving up when ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.jobQueue <- job:
		return nil
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case job, ok := <-wp.jobQueue:
			if !ok {
				return
			}

			job.Result <- wp.run(id, job)
		}
	}
}

func (wp *WorkerPool) run(id int, job Job) (res JobResult) {
	res = JobResult{Index: job.Index, BatchID: job.Batch.ID}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic ao avaliar lote",
				zap.Int("worker", id),
				zap.Int("batch", job.Index+1),
				zap.String("batch_id", job.Batch.ID),
				zap.Any("panic", r))
			res.Results = nil
			res.Err = fmt.Errorf("%w %s: %v", ErrBatchPanic, batchLabel(job), r)
		}
	}()

	res.Results = wp.processor.Process(job.Batch.Operations)
	return res
}

func batchLabel(job Job) string {
	if job.Batch.ID != "" {
		return job.Batch.ID
	}
	return fmt.Sprintf("%d", job.Index+1)
}

// Evaluate runs every batch through a fresh pool and returns the results in
// the same order as batches. Batches share no state, so they run in parallel.
func Evaluate(ctx context.Context, workers int, processor BatchProcessor, batches []domain.Batch) ([][]domain.Result, error) {
	if len(batches) == 0 {
		return [][]domain.Result{}, nil
	}
	if workers > len(batches) {
		workers = len(batches)
	}

	ctx, cancel := context.WithCancel(ctx)

	wp := NewWorkerPool(workers, processor)
	wp.Start(ctx)

	results := make(chan JobResult, len(batches))
	fed := make(chan struct{})

	// the feeder is the only sender, so it owns stopping the pool
	go func() {
		defer close(fed)
		defer wp.closeQueue()
		for i, b := range batches {
			if err := wp.Submit(ctx, Job{Index: i, Batch: b, Result: results}); err != nil {
				return
			}
		}
	}()

	defer func() {
		cancel()
		<-fed
		wp.Stop()
	}()

	out := make([][]domain.Result, len(batches))
	for i := 0; i < len(batches); i++ {
		select {
		case r := <-results:
			if r.Err != nil {
				return nil, r.Err
			}
			out[r.Index] = r.Results
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return out, nil
}
