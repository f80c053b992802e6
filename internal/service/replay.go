package service

import (
	"context"
	"fmt"
	"io"

	"github.com/jeovahfialho/capital-gains/internal/domain"
	"github.com/jeovahfialho/capital-gains/internal/ingestion"
	"github.com/jeovahfialho/capital-gains/internal/storage/postgres"
	"github.com/jeovahfialho/capital-gains/pkg/logger"
	"go.uber.org/zap"
)

// BatchStore is satisfied by postgres.OperationStore.
type BatchStore interface {
	SaveBatch(ctx context.Context, source string, ops []domain.Operation) (string, error)
	LoadBatch(ctx context.Context, id string) (domain.Batch, error)
	ListBatches(ctx context.Context, limit int) ([]postgres.BatchSummary, error)
}

// ReplayService stores input batches and evaluates them again on demand.
type ReplayService struct {
	store      BatchStore
	parser     *ingestion.Parser
	calculator *CalculatorService
}

func NewReplayService(store BatchStore, parser *ingestion.Parser, calculator *CalculatorService) *ReplayService {
	return &ReplayService{
		store:      store,
		parser:     parser,
		calculator: calculator,
	}
}

// Import parses every batch in reader and stores it, returning the new ids in
// input order. Nothing is stored when the input is invalid.
func (s *ReplayService) Import(ctx context.Context, source string, reader io.Reader) ([]string, error) {
	batches, err := s.parser.ParseInput(ctx, reader)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(batches))
	for i, b := range batches {
		id, err := s.store.SaveBatch(ctx, source, b.Operations)
		if err != nil {
			return ids, fmt.Errorf("erro ao salvar lote %d: %w", i+1, err)
		}
		ids = append(ids, id)
	}

	logger.WithContext(ctx).Info("lotes importados",
		zap.String("source", source),
		zap.Int("batches", len(ids)))

	return ids, nil
}

func (s *ReplayService) Replay(ctx context.Context, ids ...string) ([][]domain.Result, error) {
	batches := make([]domain.Batch, 0, len(ids))
	for _, id := range ids {
		b, err := s.store.LoadBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}

	return s.calculator.Calculate(ctx, batches, "replay")
}

func (s *ReplayService) List(ctx context.Context, limit int) ([]postgres.BatchSummary, error) {
	return s.store.ListBatches(ctx, limit)
}
