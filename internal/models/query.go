package models

import (
	"fmt"
	"time"

	"github.com/hyperjump/facevault/internal/index"
)

// MatchQuery is a request to find the faces closest to Image.
type MatchQuery struct {
	TenantID string `json:"tenant_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	// Threshold is the minimum score; nil uses the configured default.
	Threshold *float32 `json:"threshold,omitempty"`
	Image     []byte   `json:"-"`
}

// Validate rejects empty queries and fills in defaults. Limit is capped at maxLimit.
func (q *MatchQuery) Validate(defaultLimit, maxLimit int, defaultThreshold float32) error {
	if len(q.Image) == 0 {
		return fmt.Errorf("image cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Threshold == nil {
		t := defaultThreshold
		q.Threshold = &t
	}
	if *q.Threshold < -1 || *q.Threshold > 1 {
		return fmt.Errorf("threshold must be within [-1, 1], got %v", *q.Threshold)
	}
	return nil
}

// MatchResponse is the result of a MatchQuery.
type MatchResponse struct {
	TenantID  string        `json:"tenant_id,omitempty"`
	Limit     int           `json:"limit"`
	Threshold float32       `json:"threshold"`
	Matches   []index.Match `json:"matches"`
	Total     int           `json:"total"`
	Took      time.Duration `json:"took_ns"`
}
