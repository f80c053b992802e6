package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jeovahfialho/capital-gains/internal/domain"
	"github.com/jeovahfialho/capital-gains/pkg/metrics"
	"github.com/shopspring/decimal"
)

var ErrBatchNotFound = errors.New("lote não encontrado")

var operationColumns = []string{
	"batch_id",
	"seq",
	"operation",
	"unit_cost",
	"quantity",
	"symbol",
}

type BatchSummary struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// OperationStore keeps input batches so they can be replayed later. Every
// replay starts from a fresh ledger.
type OperationStore struct {
	pool *pgxpool.Pool
}

func NewOperationStore(pool *pgxpool.Pool) *OperationStore {
	return &OperationStore{pool: pool}
}

// SaveBatch stores the operations of one batch and returns its new id.
func (s *OperationStore) SaveBatch(ctx context.Context, source string, ops []domain.Operation) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("save_batch"))

	id := uuid.New()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("erro ao iniciar transação: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"INSERT INTO operation_batches (id, source, size) VALUES ($1, $2, $3)",
		id, source, len(ops))
	if err != nil {
		metrics.DatabaseQueries.WithLabelValues("save_batch", "error").Inc()
		return "", fmt.Errorf("erro ao inserir lote: %w", err)
	}

	if len(ops) > 0 {
		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"operations"},
			operationColumns,
			&operationSource{batchID: id, ops: ops},
		)
		if err != nil {
			metrics.DatabaseQueries.WithLabelValues("save_batch", "error").Inc()
			return "", fmt.Errorf("erro no COPY: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("erro no commit: %w", err)
	}

	metrics.DatabaseQueries.WithLabelValues("save_batch", "success").Inc()
	return id.String(), nil
}

func (s *OperationStore) LoadBatch(ctx context.Context, id string) (domain.Batch, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("load_batch"))

	batchID, err := uuid.Parse(id)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("%w: id inválido %q", ErrBatchNotFound, id)
	}

	var size int
	err = s.pool.QueryRow(ctx, "SELECT size FROM operation_batches WHERE id = $1", batchID).Scan(&size)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Batch{}, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if err != nil {
		metrics.DatabaseQueries.WithLabelValues("load_batch", "error").Inc()
		return domain.Batch{}, fmt.Errorf("erro ao buscar lote: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
        SELECT operation, unit_cost, quantity, symbol
        FROM operations
        WHERE batch_id = $1
        ORDER BY seq ASC
    `, batchID)
	if err != nil {
		metrics.DatabaseQueries.WithLabelValues("load_batch", "error").Inc()
		return domain.Batch{}, fmt.Errorf("erro ao buscar operações: %w", err)
	}
	defer rows.Close()

	ops := make([]domain.Operation, 0, size)
	for rows.Next() {
		var (
			kind     string
			unitCost decimal.Decimal
			quantity int64
			symbol   string
		)
		if err := rows.Scan(&kind, &unitCost, &quantity, &symbol); err != nil {
			return domain.Batch{}, fmt.Errorf("erro ao escanear operação: %w", err)
		}

		op, err := rowToOperation(kind, unitCost, quantity, symbol)
		if err != nil {
			return domain.Batch{}, fmt.Errorf("operação %d do lote %s: %w", len(ops)+1, id, err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return domain.Batch{}, fmt.Errorf("erro ao iterar resultados: %w", err)
	}

	metrics.DatabaseQueries.WithLabelValues("load_batch", "success").Inc()
	return domain.Batch{ID: id, Operations: ops}, nil
}

func (s *OperationStore) ListBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	timer := metrics.NewTimer()

	rows, err := s.pool.Query(ctx, `
        SELECT id::text, source, size, created_at
        FROM operation_batches
        ORDER BY created_at DESC
        LIMIT $1
    `, limit)
	if err != nil {
		metrics.RecordDatabaseQuery("list_batches", "error", timer.Elapsed().Seconds())
		return nil, fmt.Errorf("erro ao listar lotes: %w", err)
	}
	defer rows.Close()

	summaries := make([]BatchSummary, 0, limit)
	for rows.Next() {
		var b BatchSummary
		if err := rows.Scan(&b.ID, &b.Source, &b.Size, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("erro ao escanear lote: %w", err)
		}
		summaries = append(summaries, b)
	}

	metrics.RecordDatabaseQuery("list_batches", "success", timer.Elapsed().Seconds())
	return summaries, rows.Err()
}

func rowToOperation(kind string, unitCost decimal.Decimal, quantity int64, symbol string) (domain.Operation, error) {
	k, err := domain.ParseKind(kind)
	if err != nil {
		return domain.Operation{}, err
	}
	return domain.NewOperation(k, unitCost, quantity, symbol)
}

type operationSource struct {
	batchID uuid.UUID
	ops     []domain.Operation
	index   int
}

func (src *operationSource) Next() bool {
	src.index++
	return src.index <= len(src.ops)
}

func (src *operationSource) Values() ([]interface{}, error) {
	if src.index < 1 || src.index > len(src.ops) {
		return nil, nil
	}

	op := src.ops[src.index-1]
	return []interface{}{
		src.batchID,
		src.index,
		string(op.Kind),
		op.UnitCost,
		op.Quantity,
		op.Symbol,
	}, nil
}

func (src *operationSource) Err() error {
	return nil
}
