package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/jeovahfialho/capital-gains/internal/domain"
	"github.com/shopspring/decimal"
)

var ErrInvalidFormat = errors.New("Invalid operation format")

type Parser struct {
	maxBytes int64
}

// NewParser returns a parser that refuses inputs larger than maxBytes. Zero
// means no limit.
func NewParser(maxBytes int64) *Parser {
	return &Parser{maxBytes: maxBytes}
}

type operationDTO struct {
	Operation *string         `json:"operation"`
	UnitCost  json.RawMessage `json:"unit-cost"`
	Quantity  json.RawMessage `json:"quantity"`
	Symbol    *string         `json:"symbol"`
}

// ParseInput reads the whole stream and decodes every batch in it. Any
// failure aborts the whole input.
func (p *Parser) ParseInput(ctx context.Context, reader io.Reader) ([]domain.Batch, error) {
	if p.maxBytes > 0 {
		reader = io.LimitReader(reader, p.maxBytes+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler entrada: %w", err)
	}
	if p.maxBytes > 0 && int64(len(data)) > p.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrInputTooLarge, p.maxBytes)
	}

	return p.ParseText(ctx, string(data))
}

func (p *Parser) ParseText(ctx context.Context, text string) ([]domain.Batch, error) {
	arrays, err := ExtractArrays(text)
	if err != nil {
		return nil, err
	}

	batches := make([]domain.Batch, 0, len(arrays))
	for i, raw := range arrays {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ops, err := p.ParseBatch(i+1, []byte(raw))
		if err != nil {
			return nil, err
		}
		batches = append(batches, domain.Batch{Operations: ops})
	}

	return batches, nil
}

// ParseBatch decodes one JSON array of operations. position is used in errors.
func (p *Parser) ParseBatch(position int, raw []byte) ([]domain.Operation, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &InputError{Batch: position, Err: err}
	}

	ops := make([]domain.Operation, 0, len(items))
	for i, item := range items {
		op, err := parseOperation(item)
		if err != nil {
			return nil, &InputError{Batch: position, Item: i + 1, Err: err}
		}
		ops = append(ops, op)
	}

	return ops, nil
}

func parseOperation(item json.RawMessage) (domain.Operation, error) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.Operation{}, ErrInvalidFormat
	}

	var dto operationDTO
	if err := json.Unmarshal(trimmed, &dto); err != nil {
		return domain.Operation{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	if dto.Operation == nil || dto.UnitCost == nil || dto.Quantity == nil {
		return domain.Operation{}, fmt.Errorf("%w: operation, unit-cost and quantity are required", ErrInvalidFormat)
	}

	kind, err := domain.ParseKind(*dto.Operation)
	if err != nil {
		return domain.Operation{}, err
	}

	unitCost, err := parseUnitCost(dto.UnitCost)
	if err != nil {
		return domain.Operation{}, err
	}

	quantity, err := parseQuantity(dto.Quantity)
	if err != nil {
		return domain.Operation{}, err
	}

	symbol := ""
	if dto.Symbol != nil {
		symbol = *dto.Symbol
	}

	return domain.NewOperation(kind, unitCost, quantity, symbol)
}

// jsonNumber accepts only a bare JSON number; quoted values and null are
// rejected.
func jsonNumber(field string, raw json.RawMessage) (decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)

	var n json.Number
	if len(trimmed) == 0 || trimmed[0] == '"' || json.Unmarshal(trimmed, &n) != nil || n == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must be a number, got %s", ErrInvalidFormat, field, trimmed)
	}

	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must be a number, got %s", ErrInvalidFormat, field, trimmed)
	}
	return d, nil
}

func parseUnitCost(raw json.RawMessage) (decimal.Decimal, error) {
	return jsonNumber("unit-cost", raw)
}

var maxQuantity = decimal.NewFromInt(domain.MaxQuantity)

// parseQuantity accepts integral JSON numbers, including forms like 100.0
// and 1e3, up to domain.MaxQuantity. Zero and negatives are left to
// domain.NewOperation.
func parseQuantity(raw json.RawMessage) (int64, error) {
	d, err := jsonNumber("quantity", raw)
	if err != nil {
		return 0, err
	}

	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: quantity must be an integer, got %s", ErrInvalidFormat, d.String())
	}
	if d.GreaterThan(maxQuantity) {
		return 0, fmt.Errorf("%w: quantity exceeds %d, got %s", ErrInvalidFormat, domain.MaxQuantity, d.String())
	}
	if d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("%w: quantity out of range, got %s", ErrInvalidFormat, d.String())
	}
	return d.IntPart(), nil
}
