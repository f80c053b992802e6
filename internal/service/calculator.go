package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/jeovahfialho/capital-gains/internal/domain"
	"github.com/jeovahfialho/capital-gains/internal/ingestion"
	"github.com/jeovahfialho/capital-gains/pkg/logger"
	"github.com/jeovahfialho/capital-gains/pkg/metrics"
	"go.uber.org/zap"
)

// ResultCache is satisfied by cache.RedisCache.
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl ...time.Duration) error
}

type CalculatorService struct {
	engine  *TaxEngine
	parser  *ingestion.Parser
	cache   ResultCache
	workers int
}

// NewCalculatorService wires the engine to the input parser. cache may be nil.
func NewCalculatorService(engine *TaxEngine, parser *ingestion.Parser, cache ResultCache, workers int) *CalculatorService {
	if workers < 1 {
		workers = 1
	}
	return &CalculatorService{
		engine:  engine,
		parser:  parser,
		cache:   cache,
		workers: workers,
	}
}

// CalculateText parses free-form text and evaluates every batch found in it.
// Input errors abort the whole run and no result is returned.
func (s *CalculatorService) CalculateText(ctx context.Context, reader io.Reader) ([][]domain.Result, error) {
	batches, err := s.parser.ParseInput(ctx, reader)
	if err != nil {
		metrics.RecordBatch("invalid")
		logger.WithContext(ctx).Warn("entrada inválida", zap.Error(err))
		return nil, err
	}

	return s.Calculate(ctx, batches, "text")
}

// Calculate evaluates independent batches, reusing cached results when available.
func (s *CalculatorService) Calculate(ctx context.Context, batches []domain.Batch, source string) ([][]domain.Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BatchProcessingDuration.WithLabelValues(source))

	log := logger.WithContext(ctx)

	out := make([][]domain.Result, len(batches))
	keys := make([]string, len(batches))
	pending := make([]domain.Batch, 0, len(batches))
	pendingIdx := make([]int, 0, len(batches))

	for i, b := range batches {
		keys[i] = s.generateCacheKey(b)

		if cached, ok := s.getFromCache(ctx, keys[i]); ok {
			out[i] = cached
			continue
		}

		pending = append(pending, b)
		pendingIdx = append(pendingIdx, i)
	}

	computed, err := ingestion.Evaluate(ctx, s.workers, s.engine, pending)
	if err != nil {
		return nil, fmt.Errorf("erro ao avaliar lotes: %w", err)
	}

	for j, results := range computed {
		i := pendingIdx[j]
		out[i] = results
		s.record(batches[i], results)

		if err := s.saveToCache(ctx, keys[i], results); err != nil {
			log.Warn("erro ao salvar no cache", zap.String("key", keys[i]), zap.Error(err))
		}
	}

	log.Info("lotes avaliados",
		zap.String("source", source),
		zap.Int("batches", len(batches)),
		zap.Int("cached", len(batches)-len(pending)),
		zap.Duration("elapsed", timer.Elapsed()))

	return out, nil
}

func (s *CalculatorService) record(batch domain.Batch, results []domain.Result) {
	status := "ok"
	for i, r := range results {
		kind := string(batch.Operations[i].Kind)
		switch {
		case r.Error == domain.MsgBlocked:
			metrics.RecordOperation(kind, "blocked")
			status = "blocked"
		case r.IsError():
			metrics.RecordOperation(kind, "error")
		default:
			metrics.RecordOperation(kind, "tax")
			metrics.RecordTax(r.Tax.InexactFloat64())
		}
	}
	metrics.RecordBatch(status)
}

func (s *CalculatorService) generateCacheKey(batch domain.Batch) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", s.engine.Rules().Fingerprint())
	for _, op := range batch.Operations {
		fmt.Fprintf(h, "%s|%s|%d|%s\n", op.Kind, op.UnitCost.String(), op.Quantity, op.Symbol)
	}
	return "result:" + hex.EncodeToString(h.Sum(nil))
}

func (s *CalculatorService) getFromCache(ctx context.Context, key string) ([]domain.Result, bool) {
	if s.cache == nil {
		return nil, false
	}

	var results []domain.Result
	if err := s.cache.Get(ctx, key, &results); err != nil {
		metrics.RecordCacheMiss()
		return nil, false
	}

	metrics.RecordCacheHit()
	return results, true
}

func (s *CalculatorService) saveToCache(ctx context.Context, key string, results []domain.Result) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Set(ctx, key, results)
}
