package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/capital-gains/internal/domain"
	"github.com/jeovahfialho/capital-gains/internal/ingestion"
)

var errMiss = errors.New("miss")

// memoryCache stores JSON like the redis cache does.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	sets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++

	data, ok := c.entries[key]
	if !ok {
		return errMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ ...time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	return nil
}

const sampleInput = `[{"operation":"buy", "unit-cost":10.00, "quantity": 100},
{"operation":"sell", "unit-cost":15.00, "quantity": 50},
{"operation":"sell", "unit-cost":15.00, "quantity": 50}]
[{"operation":"buy", "unit-cost":10.00, "quantity": 10000},
{"operation":"sell", "unit-cost":20.00, "quantity": 5000},
{"operation":"sell", "unit-cost":5.00, "quantity": 5000}]
`

func newTestCalculator(cache ResultCache) *CalculatorService {
	return NewCalculatorService(NewTaxEngine(DefaultRules()), ingestion.NewParser(0), cache, 4)
}

func TestCalculateTextBatchesAreIndependent(t *testing.T) {
	results, err := newTestCalculator(nil).CalculateText(context.Background(), strings.NewReader(sampleInput))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []string{"0", "0", "0"}, taxes(results[0]))
	assert.Equal(t, []string{"0", "10000", "0"}, taxes(results[1]))
}

func TestCalculateTextInputError(t *testing.T) {
	calc := newTestCalculator(nil)

	_, err := calc.CalculateText(context.Background(), strings.NewReader("nada aqui"))
	assert.ErrorIs(t, err, ingestion.ErrNoArrays)

	_, err = calc.CalculateText(context.Background(), strings.NewReader(`[{"operation":"buy"}]`))
	assert.True(t, ingestion.IsInputError(err))
}

func TestCalculateUsesCache(t *testing.T) {
	cache := newMemoryCache()
	calc := newTestCalculator(cache)
	ctx := context.Background()

	first, err := calc.CalculateText(ctx, strings.NewReader(sampleInput))
	require.NoError(t, err)
	assert.Equal(t, 2, cache.sets)
	assert.Len(t, cache.entries, 2)

	second, err := calc.CalculateText(ctx, strings.NewReader(sampleInput))
	require.NoError(t, err)
	assert.Equal(t, 2, cache.sets, "cached batches must not be stored again")

	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, taxes(first[i]), taxes(second[i]))
	}
}

func TestCalculateCacheHitShortCircuits(t *testing.T) {
	cache := newMemoryCache()
	calc := newTestCalculator(cache)
	ctx := context.Background()

	batches, err := ingestion.NewParser(0).ParseText(ctx, sampleInput)
	require.NoError(t, err)

	// seed a result no engine would produce for the first batch
	key := calc.generateCacheKey(batches[0])
	require.NoError(t, cache.Set(ctx, key, []domain.Result{domain.ErrorResult("cached")}))

	results, err := calc.Calculate(ctx, batches, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"cached"}, taxes(results[0]))
	assert.Equal(t, []string{"0", "10000", "0"}, taxes(results[1]))
}

func TestCacheKeyDependsOnRules(t *testing.T) {
	batch := domain.Batch{Operations: []domain.Operation{buy("10.00", 100)}}

	rules := DefaultRules()
	rules.MaxErrors = 5
	a := newTestCalculator(nil)
	b := NewCalculatorService(NewTaxEngine(rules), ingestion.NewParser(0), nil, 1)

	assert.Equal(t, a.generateCacheKey(batch), a.generateCacheKey(batch))
	assert.NotEqual(t, a.generateCacheKey(batch), b.generateCacheKey(batch))
	assert.True(t, strings.HasPrefix(a.generateCacheKey(batch), "result:"))
}

func TestCalculateManyBatchesKeepsOrder(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			sb.WriteString(`[{"operation":"buy","unit-cost":10,"quantity":10000},{"operation":"sell","unit-cost":20,"quantity":5000}]`)
		} else {
			sb.WriteString(`[{"operation":"buy","unit-cost":10,"quantity":100},{"operation":"sell","unit-cost":20,"quantity":500}]`)
		}
		sb.WriteString("\n")
	}

	results, err := newTestCalculator(nil).CalculateText(context.Background(), strings.NewReader(sb.String()))
	require.NoError(t, err)
	require.Len(t, results, 40)

	for i, r := range results {
		if i%2 == 0 {
			assert.Equal(t, []string{"0", "10000"}, taxes(r), "batch %d", i)
		} else {
			assert.Equal(t, []string{"0", domain.MsgInsufficientShares}, taxes(r), "batch %d", i)
		}
	}
}

func TestCalculateTextRejectsOversizedQuantities(t *testing.T) {
	calc := newTestCalculator(nil)
	op := `{"operation":"buy","unit-cost":10,"quantity":4611686018427387904}`
	input := "[" + strings.Repeat(op+",", 3) + op + "]"

	var err error
	require.NotPanics(t, func() {
		_, err = calc.CalculateText(context.Background(), strings.NewReader(input))
	})
	assert.True(t, ingestion.IsInputError(err))
	assert.ErrorIs(t, err, ingestion.ErrInvalidFormat)

	// the largest accepted quantity still leaves room to accumulate
	op = `{"operation":"buy","unit-cost":10,"quantity":1000000000000}`
	results, err := calc.CalculateText(context.Background(),
		strings.NewReader("["+strings.Repeat(op+",", 3)+op+`,{"operation":"sell","unit-cost":10,"quantity":4000000000000}]`))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0], 5)
	for _, r := range results[0] {
		assert.False(t, r.IsError())
		assert.True(t, r.Tax.IsZero())
	}
}
