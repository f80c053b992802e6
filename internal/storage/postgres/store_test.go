package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/capital-gains/internal/domain"
)

func TestOperationSource(t *testing.T) {
	id := uuid.New()
	ops := []domain.Operation{
		{Kind: domain.Buy, UnitCost: decimal.RequireFromString("10.50"), Quantity: 100, Symbol: "PETR4"},
		{Kind: domain.Sell, UnitCost: decimal.RequireFromString("12"), Quantity: 40},
	}
	src := &operationSource{batchID: id, ops: ops}

	var rows [][]interface{}
	for src.Next() {
		values, err := src.Values()
		require.NoError(t, err)
		require.Len(t, values, len(operationColumns))
		rows = append(rows, values)
	}
	require.NoError(t, src.Err())
	require.Len(t, rows, 2)

	assert.Equal(t, id, rows[0][0])
	assert.Equal(t, 1, rows[0][1])
	assert.Equal(t, "buy", rows[0][2])
	assert.Equal(t, int64(100), rows[0][4])
	assert.Equal(t, "PETR4", rows[0][5])

	assert.Equal(t, 2, rows[1][1])
	assert.Equal(t, "sell", rows[1][2])
	assert.Equal(t, "", rows[1][5])
}

func TestRowToOperation(t *testing.T) {
	op, err := rowToOperation("sell", decimal.NewFromInt(20), 5000, "VALE3")
	require.NoError(t, err)
	assert.Equal(t, domain.Sell, op.Kind)
	assert.Equal(t, "VALE3", op.Symbol)

	_, err = rowToOperation("swap", decimal.NewFromInt(20), 5000, "")
	assert.ErrorIs(t, err, domain.ErrUnknownOperation)

	_, err = rowToOperation("buy", decimal.Zero, 5000, "")
	assert.ErrorIs(t, err, domain.ErrInvalidUnitCost)
}
