package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type OperationKind string

const (
	Buy  OperationKind = "buy"
	Sell OperationKind = "sell"
)

// MaxQuantity bounds a single operation so holdings stay well inside int64.
const MaxQuantity int64 = 1_000_000_000_000

var (
	ErrInvalidUnitCost  = errors.New("unit cost must be greater than zero")
	ErrInvalidQuantity  = errors.New("quantity must be between 1 and 1000000000000")
	ErrUnknownOperation = errors.New("operation must be buy or sell")
)

func ParseKind(s string) (OperationKind, error) {
	switch OperationKind(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
}

// Operation is a single buy or sell order. It is immutable once built by NewOperation.
type Operation struct {
	Kind     OperationKind   `json:"operation"`
	UnitCost decimal.Decimal `json:"unit-cost"`
	Quantity int64           `json:"quantity"`
	Symbol   string          `json:"symbol,omitempty"`
}

func NewOperation(kind OperationKind, unitCost decimal.Decimal, quantity int64, symbol string) (Operation, error) {
	if kind != Buy && kind != Sell {
		return Operation{}, fmt.Errorf("%w: %q", ErrUnknownOperation, kind)
	}
	if !unitCost.IsPositive() {
		return Operation{}, ErrInvalidUnitCost
	}
	if quantity <= 0 || quantity > MaxQuantity {
		return Operation{}, ErrInvalidQuantity
	}

	return Operation{
		Kind:     kind,
		UnitCost: unitCost,
		Quantity: quantity,
		Symbol:   strings.TrimSpace(symbol),
	}, nil
}

func (o Operation) TotalAmount() decimal.Decimal {
	return o.UnitCost.Mul(decimal.NewFromInt(o.Quantity))
}

func (o Operation) IsSell() bool {
	return o.Kind == Sell
}

// Batch is one independent sequence of operations sharing a single ledger.
type Batch struct {
	ID         string      `json:"id,omitempty"`
	Operations []Operation `json:"operations"`
}
