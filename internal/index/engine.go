// Package index implements the face index engine: a vector store and its
// metadata table kept in lockstep behind one lock, with tenant-aware search,
// soft deletion and rebuild.
package index

import (
	"fmt"
	"sync"

	"github.com/hyperjump/facevault/internal/vector"
	"go.uber.org/zap"
)

const (
	// DefaultDimensions is the embedding length produced by the face model.
	DefaultDimensions = 512
	// DefaultOversample is the candidate multiplier used for tenant-filtered search.
	DefaultOversample = 10
)

// Match is a single search result.
type Match struct {
	Position    int     `json:"position"`
	Score       float32 `json:"score"`
	ItemID      string  `json:"item_id"`
	TenantID    string  `json:"tenant_id"`
	DisplayName string  `json:"display_name,omitempty"`
	Rank        int     `json:"rank"`
}

// ActiveRecord is one entry of a rebuild set.
type ActiveRecord struct {
	Embedding   []float32
	TenantID    string
	ItemID      string
	DisplayName string
}

// State is a point-in-time copy of the engine contents, used for persistence.
// Vectors is row-major with Dimensions components per row; Records[i] describes row i.
type State struct {
	Dimensions int
	Vectors    []float32
	Records    []Record
}

// Engine owns the vector store and metadata table. Mutations and Persist take
// the write lock; Search and the counters take the read lock.
type Engine struct {
	mu         sync.RWMutex
	dimensions int
	oversample int
	storeType  string
	store      vector.Store
	table      *Table
	logger     *zap.Logger
	// modified is set by every mutation and cleared by a successful Persist.
	modified bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithOversample sets the tenant-search candidate multiplier. Values below 1 are ignored.
func WithOversample(n int) EngineOption {
	return func(e *Engine) {
		if n >= 1 {
			e.oversample = n
		}
	}
}

// WithStoreType selects the vector store backend ("flat" or "faiss").
func WithStoreType(storeType string) EngineOption {
	return func(e *Engine) {
		e.storeType = storeType
	}
}

// NewEngine creates an empty engine for vectors of the given dimension.
func NewEngine(dimensions int, opts ...EngineOption) (*Engine, error) {
	e := newEngine(dimensions, opts)
	store, err := vector.NewStore(e.storeType, dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	e.store = store
	e.table = NewTable()
	return e, nil
}

// NewEngineFromState creates an engine holding the vectors and records of s.
func NewEngineFromState(s State, opts ...EngineOption) (*Engine, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	e := newEngine(s.Dimensions, opts)
	store, err := vector.NewStoreFrom(e.storeType, s.Dimensions, s.Vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to restore vector store: %w", err)
	}
	e.store = store
	e.table = NewTable()
	for i, rec := range s.Records {
		e.table.Set(i, rec)
	}
	return e, nil
}

func newEngine(dimensions int, opts []EngineOption) *Engine {
	e := &Engine{
		dimensions: dimensions,
		oversample: DefaultOversample,
		storeType:  string(vector.StoreTypeFlat),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks that the vectors and records of s describe the same positions.
func (s State) Validate() error {
	if s.Dimensions <= 0 {
		return fmt.Errorf("invalid dimensions: %d", s.Dimensions)
	}
	if len(s.Vectors)%s.Dimensions != 0 {
		return fmt.Errorf("vector data length %d is not a multiple of dimension %d", len(s.Vectors), s.Dimensions)
	}
	if n := len(s.Vectors) / s.Dimensions; n != len(s.Records) {
		return fmt.Errorf("vector count %d does not match record count %d", n, len(s.Records))
	}
	for i, rec := range s.Records {
		if rec.Position != i {
			return fmt.Errorf("record %d has position %d", i, rec.Position)
		}
	}
	return nil
}

// Dimensions returns the embedding length accepted by the engine.
func (e *Engine) Dimensions() int {
	return e.dimensions
}

// AddVector appends one embedding and its metadata and returns the assigned position.
// Item ids are not required to be unique.
func (e *Engine) AddVector(embedding []float32, tenantID, itemID, displayName string) (int, error) {
	if err := vector.CheckDimensions(embedding, e.dimensions); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.store.Append(embedding)
	if err != nil {
		return 0, err
	}
	e.table.Set(pos, Record{
		TenantID:    tenantOrDefault(tenantID),
		ItemID:      itemID,
		DisplayName: displayName,
	})
	e.modified = true
	if e.logger != nil {
		e.logger.Debug("vector added", zap.Int("position", pos), zap.String("tenant", tenantID), zap.String("item", itemID))
	}
	return pos, nil
}

// AddVectorsBatch appends all embeddings or none of them. displayNames may be nil.
func (e *Engine) AddVectorsBatch(embeddings [][]float32, tenantIDs, itemIDs, displayNames []string) ([]int, error) {
	if len(tenantIDs) != len(embeddings) || len(itemIDs) != len(embeddings) ||
		(displayNames != nil && len(displayNames) != len(embeddings)) {
		return nil, ErrBatchShape
	}
	for i, emb := range embeddings {
		if err := vector.CheckDimensions(emb, e.dimensions); err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	if len(embeddings) == 0 {
		return []int{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	positions, err := e.store.AppendBatch(embeddings)
	if err != nil {
		return nil, err
	}
	for i, pos := range positions {
		rec := Record{TenantID: tenantOrDefault(tenantIDs[i]), ItemID: itemIDs[i]}
		if displayNames != nil {
			rec.DisplayName = displayNames[i]
		}
		e.table.Set(pos, rec)
	}
	e.modified = true
	if e.logger != nil {
		e.logger.Debug("vector batch added", zap.Int("count", len(positions)), zap.Int("first_position", positions[0]))
	}
	return positions, nil
}

// Search returns up to k live matches for query, best first. With a non-empty
// tenantID only that tenant's records are returned. Scores below threshold are
// dropped; a score equal to threshold is kept. An empty engine yields an empty
// list. Fewer than k matches may be returned even when more exist, because
// tenant filtering only inspects k*oversample candidates.
func (e *Engine) Search(query []float32, k int, tenantID string, threshold float32) ([]Match, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	total := e.store.Count()
	if total == 0 || k <= 0 {
		return []Match{}, nil
	}
	if err := vector.CheckDimensions(query, e.dimensions); err != nil {
		return nil, err
	}

	searchK := k
	if tenantID != "" {
		if e.table.PositionsForTenant(tenantID).IsEmpty() {
			return []Match{}, nil
		}
		if k > total/e.oversample {
			searchK = total
		} else {
			searchK = k * e.oversample
		}
	}
	if searchK > total {
		searchK = total
	}

	hits, err := e.store.Search(query, searchK)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, min(k, searchK))
	for _, hit := range hits {
		if hit.Score < threshold {
			break
		}
		rec, ok := e.table.Get(hit.Position)
		if !ok || rec.Deleted {
			continue
		}
		if tenantID != "" && rec.TenantID != tenantID {
			continue
		}
		matches = append(matches, Match{
			Position:    hit.Position,
			Score:       hit.Score,
			ItemID:      rec.ItemID,
			TenantID:    rec.TenantID,
			DisplayName: rec.DisplayName,
			Rank:        len(matches) + 1,
		})
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}

// SoftDeleteTenant marks every record of tenantID deleted and returns how many
// were marked. The vector store does not shrink.
func (e *Engine) SoftDeleteTenant(tenantID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.table.MarkTenantDeleted(tenantID)
	if n > 0 {
		e.modified = true
	}
	if e.logger != nil {
		e.logger.Info("tenant soft-deleted", zap.String("tenant", tenantID), zap.Int("marked", n))
	}
	return n
}

// Rebuild replaces the engine contents with records, assigning positions 0..len-1
// in the given order. The input is validated before anything is discarded.
func (e *Engine) Rebuild(records []ActiveRecord) error {
	vecs := make([][]float32, len(records))
	for i, rec := range records {
		if err := vector.CheckDimensions(rec.Embedding, e.dimensions); err != nil {
			return fmt.Errorf("rebuild record %d (%s): %w", i, rec.ItemID, err)
		}
		vecs[i] = rec.Embedding
	}

	store, err := vector.NewStore(e.storeType, e.dimensions)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	if len(vecs) > 0 {
		if _, err := store.AppendBatch(vecs); err != nil {
			_ = store.Close()
			return err
		}
	}
	table := NewTable()
	for i, rec := range records {
		table.Set(i, Record{
			TenantID:    tenantOrDefault(rec.TenantID),
			ItemID:      rec.ItemID,
			DisplayName: rec.DisplayName,
		})
	}

	e.mu.Lock()
	old := e.store
	before := e.store.Count()
	e.store = store
	e.table = table
	e.modified = true
	e.mu.Unlock()

	if err := old.Close(); err != nil && e.logger != nil {
		e.logger.Warn("failed to close previous vector store", zap.Error(err))
	}
	if e.logger != nil {
		e.logger.Info("index rebuilt", zap.Int("before", before), zap.Int("after", len(records)))
	}
	return nil
}

// VectorCount returns the number of stored vectors, soft-deleted ones included.
func (e *Engine) VectorCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Count()
}

// LiveCount returns the number of records not marked deleted.
func (e *Engine) LiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table.LiveCount()
}

// Tenants returns the tenants that own at least one live record.
func (e *Engine) Tenants() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table.Tenants()
}

// Record returns the metadata at pos.
func (e *Engine) Record(pos int) (Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table.Get(pos)
}

// Modified reports whether the engine has changed since it was created or
// last persisted.
func (e *Engine) Modified() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.modified
}

// Persist calls fn with a copy of the engine state while holding the write
// lock, so no mutation interleaves with a save. A nil error from fn clears
// the modified flag.
func (e *Engine) Persist(fn func(State) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	vectors, err := e.store.Export()
	if err != nil {
		return fmt.Errorf("failed to export vectors: %w", err)
	}
	if err := fn(State{
		Dimensions: e.dimensions,
		Vectors:    vectors,
		Records:    e.table.Records(),
	}); err != nil {
		return err
	}
	e.modified = false
	return nil
}

// Close releases the vector store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Close()
}

func tenantOrDefault(tenantID string) string {
	if tenantID == "" {
		return DefaultTenant
	}
	return tenantID
}
