package service

import (
	"fmt"

	"github.com/jeovahfialho/capital-gains/internal/config"
	"github.com/jeovahfialho/capital-gains/internal/domain"
	"github.com/shopspring/decimal"
)

// TaxRules are the parameters of the simplified capital gains code.
type TaxRules struct {
	Rate      decimal.Decimal
	Threshold decimal.Decimal
	Places    int32
	// MaxErrors blocks the batch after this many error results. Zero disables it.
	MaxErrors int
	PerSymbol bool
}

func DefaultRules() TaxRules {
	return TaxRules{
		Rate:      decimal.NewFromFloat(0.20),
		Threshold: decimal.NewFromInt(20000),
		Places:    2,
		MaxErrors: 3,
	}
}

func RulesFromConfig(cfg *config.Config) TaxRules {
	return TaxRules{
		Rate:      cfg.TaxRate,
		Threshold: cfg.TaxThreshold,
		Places:    cfg.TaxDecimalPlaces,
		MaxErrors: cfg.MaxErrors,
		PerSymbol: cfg.PerSymbol,
	}
}

// Fingerprint identifies the rule set, so cached results computed under
// different rules never collide.
func (r TaxRules) Fingerprint() string {
	return fmt.Sprintf("r=%s;t=%s;p=%d;e=%d;s=%t",
		r.Rate.String(), r.Threshold.String(), r.Places, r.MaxErrors, r.PerSymbol)
}

type TaxEngine struct {
	rules TaxRules
}

func NewTaxEngine(rules TaxRules) *TaxEngine {
	return &TaxEngine{rules: rules}
}

func (e *TaxEngine) Rules() TaxRules {
	return e.rules
}

// NewLedger returns a fresh portfolio configured for these rules.
func (e *TaxEngine) NewLedger() *domain.Portfolio {
	return domain.NewPortfolio(e.rules.PerSymbol)
}

// Process evaluates one batch against a fresh ledger and returns one result per
// operation, in order.
func (e *TaxEngine) Process(ops []domain.Operation) []domain.Result {
	ledger := e.NewLedger()
	results := make([]domain.Result, 0, len(ops))

	for _, op := range ops {
		results = append(results, e.Step(ledger, op))
	}

	return results
}

func (e *TaxEngine) Blocked(ledger *domain.Portfolio) bool {
	return e.rules.MaxErrors > 0 && ledger.ErrorCount >= e.rules.MaxErrors
}

// Step applies a single operation to ledger. Once the ledger is blocked the
// operation is rejected without touching the position.
func (e *TaxEngine) Step(ledger *domain.Portfolio, op domain.Operation) domain.Result {
	if e.Blocked(ledger) {
		return domain.ErrorResult(domain.MsgBlocked)
	}

	var result domain.Result
	if op.IsSell() {
		result = e.sell(ledger, op)
	} else if err := ledger.ApplyBuy(op); err != nil {
		result = domain.ErrorResult(err.Error())
	} else {
		result = domain.TaxResult(decimal.Zero)
	}

	if result.IsError() {
		ledger.ErrorCount++
	}
	return result
}

func (e *TaxEngine) sell(ledger *domain.Portfolio, op domain.Operation) domain.Result {
	totalAmount := e.round(op.TotalAmount())
	profit := e.round(ledger.Profit(op))

	if err := ledger.ApplySell(op); err != nil {
		return domain.ErrorResult(err.Error())
	}

	if totalAmount.LessThanOrEqual(e.rules.Threshold) {
		if profit.IsNegative() {
			e.addLoss(ledger, profit)
		}
		return domain.TaxResult(decimal.Zero)
	}

	if !profit.IsPositive() {
		e.addLoss(ledger, profit)
		return domain.TaxResult(decimal.Zero)
	}

	taxable := e.deductLoss(ledger, profit)
	if !taxable.IsPositive() {
		return domain.TaxResult(decimal.Zero)
	}

	return domain.TaxResult(e.round(taxable.Mul(e.rules.Rate)))
}

func (e *TaxEngine) addLoss(ledger *domain.Portfolio, loss decimal.Decimal) {
	ledger.AddLoss(loss)
	ledger.AccumulatedLoss = e.round(ledger.AccumulatedLoss)
}

// deductLoss consumes accumulated loss against profit and returns what is left to tax.
func (e *TaxEngine) deductLoss(ledger *domain.Portfolio, profit decimal.Decimal) decimal.Decimal {
	if ledger.AccumulatedLoss.GreaterThanOrEqual(profit) {
		ledger.AccumulatedLoss = e.round(ledger.AccumulatedLoss.Sub(profit))
		return decimal.Zero
	}

	taxable := e.round(profit.Sub(ledger.AccumulatedLoss))
	ledger.AccumulatedLoss = decimal.Zero
	return taxable
}

func (e *TaxEngine) round(d decimal.Decimal) decimal.Decimal {
	return d.Round(e.rules.Places)
}
