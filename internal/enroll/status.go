package enroll

import (
	"context"
	"fmt"

	"github.com/hyperjump/facevault/internal/storage"
)

// Status is a point-in-time summary of the index and record store.
type Status struct {
	Vectors          int              `json:"vectors"`
	LiveVectors      int              `json:"live_vectors"`
	Dimensions       int              `json:"dimensions"`
	Tenants          []string         `json:"tenants"`
	Records          int64            `json:"records"`
	RecordsByTenant  map[string]int64 `json:"records_by_tenant"`
	DiskUsageBytes   int64            `json:"disk_usage_bytes"`
	PendingReconcile bool             `json:"pending_reconcile"`
}

// Status gathers counts from the engine and the record store.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	e, err := s.engine()
	if err != nil {
		return nil, err
	}
	count, err := s.records.CountRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	byTenant, err := s.records.CountByTenant(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records by tenant: %w", err)
	}
	usage, err := storage.DiskUsageBytes(s.cfg.UsagePaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute disk usage: %w", err)
	}

	st := &Status{
		Vectors:         e.VectorCount(),
		LiveVectors:     e.LiveCount(),
		Dimensions:      e.Dimensions(),
		Tenants:         e.Tenants(),
		Records:         count,
		RecordsByTenant: byTenant,
		DiskUsageBytes:  usage,
	}
	st.PendingReconcile = st.Vectors != st.LiveVectors || int64(st.LiveVectors) != st.Records
	return st, nil
}
