package ingestion

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/capital-gains/internal/domain"
)

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, [][]domain.Result{
		{domain.TaxResult(decimal.Zero), domain.TaxResult(decimal.RequireFromString("10000.00"))},
		nil,
		{domain.ErrorResult(domain.MsgBlocked)},
	})
	require.NoError(t, err)

	assert.Equal(t,
		`[{"tax":0},{"tax":10000}]`+"\n"+
			`[]`+"\n"+
			`[{"error":"User blocked due to excessive errors."}]`+"\n",
		buf.String())
}
