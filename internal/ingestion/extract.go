package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNoArrays      = errors.New("No valid JSON arrays found in input")
	ErrInputTooLarge = errors.New("input exceeds size limit")
)

// InputError is a fatal input problem. Batch and Item are 1-based; Item is zero
// when the whole batch is at fault.
type InputError struct {
	Batch int
	Item  int
	Err   error
}

func (e *InputError) Error() string {
	if e.Item == 0 {
		return fmt.Sprintf("Invalid JSON array at position %d", e.Batch)
	}
	return fmt.Sprintf("Invalid operation at position %d, item %d: %v", e.Batch, e.Item, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err was caused by the input itself rather
// than by the environment.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.Is(err, ErrNoArrays) || errors.Is(err, ErrInputTooLarge) || errors.As(err, &ie)
}

// ExtractArrays returns every top-level JSON array literal found in text, in
// order. Brackets inside JSON strings are ignored. Each array must be valid JSON.
func ExtractArrays(text string) ([]string, error) {
	var (
		arrays   []string
		depth    int
		start    int
		inString bool
		escaped  bool
	)

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '[':
			if depth == 0 {
				start = i
			}
			depth++
		case ']':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				arrays = append(arrays, text[start:i+1])
			}
		}
	}

	// unterminated trailing array
	if depth > 0 {
		arrays = append(arrays, text[start:])
	}

	if len(arrays) == 0 {
		return nil, ErrNoArrays
	}

	for i, a := range arrays {
		if !json.Valid([]byte(a)) {
			return nil, &InputError{Batch: i + 1, Err: fmt.Errorf("json inválido")}
		}
	}

	return arrays, nil
}
