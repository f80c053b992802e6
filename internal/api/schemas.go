package api

import (
	"time"

	"github.com/jeovahfialho/capital-gains/internal/storage/postgres"
)

type HealthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

type ServiceHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      int       `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ImportResponse struct {
	BatchIDs []string `json:"batch_ids"`
	Count    int      `json:"count"`
}

type ListBatchesResponse struct {
	Data  []postgres.BatchSummary `json:"data"`
	Count int                     `json:"count"`
}

type InvalidateCacheResponse struct {
	Status  string `json:"status"`
	Removed int64  `json:"removed"`
	Pattern string `json:"pattern"`
}
