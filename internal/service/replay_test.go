package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/capital-gains/internal/domain"
	"github.com/jeovahfialho/capital-gains/internal/ingestion"
	"github.com/jeovahfialho/capital-gains/internal/storage/postgres"
)

type memoryStore struct {
	batches map[string]domain.Batch
	order   []string
	failOn  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{batches: make(map[string]domain.Batch)}
}

func (s *memoryStore) SaveBatch(_ context.Context, source string, ops []domain.Operation) (string, error) {
	if s.failOn > 0 && len(s.order)+1 == s.failOn {
		return "", errors.New("disco cheio")
	}
	id := fmt.Sprintf("%s-%d", source, len(s.order)+1)
	s.batches[id] = domain.Batch{ID: id, Operations: ops}
	s.order = append(s.order, id)
	return id, nil
}

func (s *memoryStore) LoadBatch(_ context.Context, id string) (domain.Batch, error) {
	b, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, fmt.Errorf("%w: %s", postgres.ErrBatchNotFound, id)
	}
	return b, nil
}

func (s *memoryStore) ListBatches(_ context.Context, limit int) ([]postgres.BatchSummary, error) {
	out := make([]postgres.BatchSummary, 0, len(s.order))
	for _, id := range s.order {
		if len(out) == limit {
			break
		}
		out = append(out, postgres.BatchSummary{
			ID:        id,
			Size:      len(s.batches[id].Operations),
			CreatedAt: time.Now(),
		})
	}
	return out, nil
}

func newTestReplay(store BatchStore) *ReplayService {
	parser := ingestion.NewParser(0)
	return NewReplayService(store, parser, NewCalculatorService(NewTaxEngine(DefaultRules()), parser, nil, 2))
}

func TestImportAndReplay(t *testing.T) {
	store := newMemoryStore()
	replay := newTestReplay(store)
	ctx := context.Background()

	ids, err := replay.Import(ctx, "case", strings.NewReader(sampleInput))
	require.NoError(t, err)
	assert.Equal(t, []string{"case-1", "case-2"}, ids)

	results, err := replay.Replay(ctx, ids[1], ids[0])
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"0", "10000", "0"}, taxes(results[0]))
	assert.Equal(t, []string{"0", "0", "0"}, taxes(results[1]))

	// a replay never sees state from an earlier one
	again, err := replay.Replay(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, taxes(results[0]), taxes(again[0]))

	list, err := replay.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Size)
}

func TestImportInvalidInputStoresNothing(t *testing.T) {
	store := newMemoryStore()
	replay := newTestReplay(store)

	_, err := replay.Import(context.Background(), "bad", strings.NewReader("[1]\n[{]"))
	assert.True(t, ingestion.IsInputError(err))
	assert.Empty(t, store.order)
}

func TestImportStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.failOn = 2
	replay := newTestReplay(store)

	ids, err := replay.Import(context.Background(), "x", strings.NewReader(sampleInput))
	require.Error(t, err)
	assert.Equal(t, []string{"x-1"}, ids)
}

func TestReplayUnknownBatch(t *testing.T) {
	_, err := newTestReplay(newMemoryStore()).Replay(context.Background(), "nope")
	assert.ErrorIs(t, err, postgres.ErrBatchNotFound)
}
