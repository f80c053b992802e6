package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/capital-gains/internal/domain"
)

// countingProcessor returns one result per operation holding its quantity.
type countingProcessor struct {
	calls atomic.Int64
	delay time.Duration
}

func (p *countingProcessor) Process(ops []domain.Operation) []domain.Result {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	out := make([]domain.Result, len(ops))
	for i, op := range ops {
		out[i] = domain.TaxResult(decimal.NewFromInt(op.Quantity))
	}
	return out
}

func batchesOf(n int) []domain.Batch {
	batches := make([]domain.Batch, n)
	for i := range batches {
		batches[i] = domain.Batch{
			ID: fmt.Sprintf("b%d", i),
			Operations: []domain.Operation{
				{Kind: domain.Buy, UnitCost: decimal.NewFromInt(1), Quantity: int64(i + 1)},
			},
		}
	}
	return batches
}

func TestEvaluatePreservesOrder(t *testing.T) {
	for _, workers := range []int{1, 3, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			proc := &countingProcessor{}
			out, err := Evaluate(context.Background(), workers, proc, batchesOf(50))
			require.NoError(t, err)
			require.Len(t, out, 50)

			for i, results := range out {
				require.Len(t, results, 1)
				assert.Equal(t, int64(i+1), results[0].Tax.IntPart())
			}
			assert.Equal(t, int64(50), proc.calls.Load())
		})
	}
}

func TestEvaluateEmpty(t *testing.T) {
	out, err := Evaluate(context.Background(), 4, &countingProcessor{}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEvaluateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Evaluate(ctx, 2, &countingProcessor{delay: 10 * time.Millisecond}, batchesOf(20))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerPoolSubmit(t *testing.T) {
	proc := &countingProcessor{}
	wp := NewWorkerPool(2, proc)
	wp.Start(context.Background())

	results := make(chan JobResult, 3)
	for i, b := range batchesOf(3) {
		require.NoError(t, wp.Submit(context.Background(), Job{Index: i, Batch: b, Result: results}))
	}
	wp.Stop()
	close(results)

	seen := map[string]bool{}
	for r := range results {
		seen[r.BatchID] = true
	}
	assert.Equal(t, map[string]bool{"b0": true, "b1": true, "b2": true}, seen)
}

// panickingProcessor panics on the batch whose single operation has the given quantity.
type panickingProcessor struct {
	countingProcessor
	quantity int64
}

func (p *panickingProcessor) Process(ops []domain.Operation) []domain.Result {
	if len(ops) > 0 && ops[0].Quantity == p.quantity {
		panic("integer divide by zero")
	}
	return p.countingProcessor.Process(ops)
}

func TestEvaluateRecoversFromPanic(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			proc := &panickingProcessor{quantity: 3}

			out, err := Evaluate(context.Background(), workers, proc, batchesOf(10))
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, ErrBatchPanic))
			assert.Contains(t, err.Error(), "b2")
			assert.Contains(t, err.Error(), "integer divide by zero")

			// later evaluations are unaffected
			out, err = Evaluate(context.Background(), workers, &countingProcessor{}, batchesOf(3))
			require.NoError(t, err)
			assert.Len(t, out, 3)
		})
	}
}
