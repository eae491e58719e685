// Package storage defines the durable record store for enrolled faces.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/facevault/internal/models"
)

// ErrRecordNotFound is returned when no record has the requested item id.
var ErrRecordNotFound = errors.New("record not found")

// RecordStore persists face records. It is the source of truth used to
// rebuild the index.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec *models.FaceRecord) error
	GetRecord(ctx context.Context, itemID string) (*models.FaceRecord, error)
	DeleteByTenant(ctx context.Context, tenantID string) (int64, error)

	// ListActive returns every record in enrollment order.
	ListActive(ctx context.Context) ([]*models.FaceRecord, error)
	// UpdatePositions sets vector_position for each item id in the map.
	UpdatePositions(ctx context.Context, positions map[string]int) error
	// ReplaceAll atomically swaps the whole table for recs.
	ReplaceAll(ctx context.Context, recs []*models.FaceRecord) error

	CountRecords(ctx context.Context) (int64, error)
	CountByTenant(ctx context.Context) (map[string]int64, error)

	Close() error
}
