package ingestion

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeovahfialho/capital-gains/internal/domain"
)

// Encode writes one JSON array per batch, one per line.
func Encode(w io.Writer, batches [][]domain.Result) error {
	bw := bufio.NewWriter(w)

	for i, results := range batches {
		if results == nil {
			results = []domain.Result{}
		}

		line, err := json.Marshal(results)
		if err != nil {
			return fmt.Errorf("erro ao serializar lote %d: %w", i+1, err)
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}

	return bw.Flush()
}
