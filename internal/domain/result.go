package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	MsgInsufficientShares = "Insufficient shares to complete the sell operation."
	MsgMissingSymbol      = "Symbol is required for sell operations."
	MsgBlocked            = "User blocked due to excessive errors."
	MsgPositionLimit      = "Position size limit exceeded."
)

// Result is the outcome of one operation: either a tax amount or an error message.
type Result struct {
	Tax   decimal.Decimal
	Error string
}

func TaxResult(amount decimal.Decimal) Result {
	return Result{Tax: amount}
}

func ErrorResult(message string) Result {
	return Result{Error: message}
}

func (r Result) IsError() bool {
	return r.Error != ""
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.IsError() {
		msg, err := json.Marshal(r.Error)
		if err != nil {
			return nil, err
		}
		return []byte(`{"error":` + string(msg) + `}`), nil
	}
	return []byte(`{"tax":` + r.Tax.String() + `}`), nil
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		Tax   *json.Number `json:"tax"`
		Error *string      `json:"error"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch {
	case raw.Error != nil:
		*r = ErrorResult(*raw.Error)
	case raw.Tax != nil:
		tax, err := decimal.NewFromString(raw.Tax.String())
		if err != nil {
			return fmt.Errorf("invalid tax value: %w", err)
		}
		*r = TaxResult(tax)
	default:
		return fmt.Errorf("result must have tax or error")
	}

	return nil
}
