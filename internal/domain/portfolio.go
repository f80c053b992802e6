package domain

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientShares = errors.New(MsgInsufficientShares)
	ErrMissingSymbol      = errors.New(MsgMissingSymbol)
	ErrPositionLimit      = errors.New(MsgPositionLimit)
)

// Holding is the open quantity of one instrument and its weighted average cost.
type Holding struct {
	Quantity            int64           `json:"quantity"`
	WeightedAverageCost decimal.Decimal `json:"weighted_average_cost"`
}

// Portfolio tracks cost basis per instrument together with the ledger that is
// shared by every instrument of a batch: accumulated loss and error count.
//
// In single-position mode every operation hits the same holding and symbols
// are ignored. In per-symbol mode each symbol has its own holding and sells
// without a symbol are rejected.
type Portfolio struct {
	perSymbol bool
	holdings  map[string]Holding

	AccumulatedLoss decimal.Decimal
	ErrorCount      int
}

func NewPortfolio(perSymbol bool) *Portfolio {
	return &Portfolio{
		perSymbol:       perSymbol,
		holdings:        make(map[string]Holding),
		AccumulatedLoss: decimal.Zero,
	}
}

func (p *Portfolio) PerSymbol() bool {
	return p.perSymbol
}

func (p *Portfolio) key(op Operation) string {
	if !p.perSymbol {
		return ""
	}
	return op.Symbol
}

// Holding returns the position for symbol. Unknown symbols are an empty holding.
func (p *Portfolio) Holding(symbol string) Holding {
	if !p.perSymbol {
		symbol = ""
	}
	return p.holdings[symbol]
}

// ApplyBuy adds op to its holding. It only fails when the holding would
// overflow, and then nothing is changed.
func (p *Portfolio) ApplyBuy(op Operation) error {
	k := p.key(op)
	h := p.holdings[k]

	if op.Quantity <= 0 || h.Quantity > math.MaxInt64-op.Quantity {
		return ErrPositionLimit
	}

	qty := decimal.NewFromInt(op.Quantity)
	totalQty := h.Quantity + op.Quantity
	totalCost := h.WeightedAverageCost.Mul(decimal.NewFromInt(h.Quantity)).Add(op.UnitCost.Mul(qty))

	h.WeightedAverageCost = totalCost.Div(decimal.NewFromInt(totalQty))
	h.Quantity = totalQty
	p.holdings[k] = h
	return nil
}

// ApplySell removes op.Quantity from the holding. On error nothing is changed.
func (p *Portfolio) ApplySell(op Operation) error {
	if p.perSymbol && op.Symbol == "" {
		return ErrMissingSymbol
	}

	k := p.key(op)
	h := p.holdings[k]
	if op.Quantity > h.Quantity {
		return ErrInsufficientShares
	}

	h.Quantity -= op.Quantity
	if h.Quantity == 0 {
		delete(p.holdings, k)
		return nil
	}
	p.holdings[k] = h
	return nil
}

// Profit of selling op against the current average cost. Call before ApplySell.
func (p *Portfolio) Profit(op Operation) decimal.Decimal {
	h := p.Holding(op.Symbol)
	return op.UnitCost.Sub(h.WeightedAverageCost).Mul(decimal.NewFromInt(op.Quantity))
}

func (p *Portfolio) AddLoss(loss decimal.Decimal) {
	p.AccumulatedLoss = p.AccumulatedLoss.Add(loss.Abs())
}

func (p *Portfolio) Reset() {
	p.holdings = make(map[string]Holding)
	p.AccumulatedLoss = decimal.Zero
	p.ErrorCount = 0
}

// Snapshot copies the open holdings keyed by symbol ("" in single-position mode).
func (p *Portfolio) Snapshot() map[string]Holding {
	out := make(map[string]Holding, len(p.holdings))
	for k, h := range p.holdings {
		out[k] = h
	}
	return out
}
