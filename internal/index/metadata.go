package index

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// DefaultTenant owns records that were stored without an explicit tenant.
const DefaultTenant = "default"

// Record is the metadata stored for one vector position.
type Record struct {
	Position    int    `json:"position"`
	TenantID    string `json:"tenant_id"`
	ItemID      string `json:"item_id"`
	DisplayName string `json:"display_name,omitempty"`
	Deleted     bool   `json:"deleted"`
}

// Table maps positions to records. Deleted positions are tracked in a
// tombstone bitmap and each tenant has a posting bitmap of its positions.
// Table is not safe for concurrent use; the Engine serializes access.
type Table struct {
	records    []Record
	tombstones *roaring.Bitmap
	tenants    map[string]*roaring.Bitmap
}

// NewTable creates an empty metadata table.
func NewTable() *Table {
	return &Table{
		tombstones: roaring.New(),
		tenants:    make(map[string]*roaring.Bitmap),
	}
}

// Len returns the number of positions in the table, deleted ones included.
func (t *Table) Len() int {
	return len(t.records)
}

// Set stores rec at pos. Positions must be set in order; pos may equal Len()
// to append or be below it to overwrite.
func (t *Table) Set(pos int, rec Record) {
	rec.Position = pos
	if pos < len(t.records) {
		old := t.records[pos]
		if bm, ok := t.tenants[old.TenantID]; ok {
			bm.Remove(uint32(pos))
			if bm.IsEmpty() {
				delete(t.tenants, old.TenantID)
			}
		}
		t.tombstones.Remove(uint32(pos))
		t.records[pos] = rec
	} else {
		for len(t.records) < pos {
			// Fill gaps so positions stay contiguous; gaps are never searchable.
			gap := len(t.records)
			t.records = append(t.records, Record{Position: gap, Deleted: true})
			t.tombstones.Add(uint32(gap))
		}
		t.records = append(t.records, rec)
	}

	bm, ok := t.tenants[rec.TenantID]
	if !ok {
		bm = roaring.New()
		t.tenants[rec.TenantID] = bm
	}
	bm.Add(uint32(pos))
	if rec.Deleted {
		t.tombstones.Add(uint32(pos))
	}
}

// Get returns the record at pos.
func (t *Table) Get(pos int) (Record, bool) {
	if pos < 0 || pos >= len(t.records) {
		return Record{}, false
	}
	rec := t.records[pos]
	rec.Deleted = t.tombstones.Contains(uint32(pos))
	return rec, true
}

// MarkDeleted flags pos as deleted. It reports whether the flag changed.
func (t *Table) MarkDeleted(pos int) bool {
	if pos < 0 || pos >= len(t.records) {
		return false
	}
	if !t.tombstones.CheckedAdd(uint32(pos)) {
		return false
	}
	t.records[pos].Deleted = true
	return true
}

// IsDeleted reports whether pos is tombstoned. Unknown positions count as deleted.
func (t *Table) IsDeleted(pos int) bool {
	if pos < 0 || pos >= len(t.records) {
		return true
	}
	return t.tombstones.Contains(uint32(pos))
}

// PositionsForTenant returns a copy of the tenant's live positions.
func (t *Table) PositionsForTenant(tenantID string) *roaring.Bitmap {
	bm, ok := t.tenants[tenantID]
	if !ok {
		return roaring.New()
	}
	return roaring.AndNot(bm, t.tombstones)
}

// OwnedBy reports whether pos belongs to tenantID.
func (t *Table) OwnedBy(pos int, tenantID string) bool {
	bm, ok := t.tenants[tenantID]
	return ok && bm.Contains(uint32(pos))
}

// MarkTenantDeleted tombstones every live position of tenantID and returns how many changed.
func (t *Table) MarkTenantDeleted(tenantID string) int {
	live := t.PositionsForTenant(tenantID)
	n := int(live.GetCardinality())
	if n == 0 {
		return 0
	}
	it := live.Iterator()
	for it.HasNext() {
		t.records[it.Next()].Deleted = true
	}
	t.tombstones.Or(live)
	return n
}

// LiveCount returns the number of positions not marked deleted.
func (t *Table) LiveCount() int {
	return len(t.records) - int(t.tombstones.GetCardinality())
}

// Tenants returns the tenants with at least one live record, sorted.
func (t *Table) Tenants() []string {
	var out []string
	for id, bm := range t.tenants {
		if bm.GetCardinality() > bm.AndCardinality(t.tombstones) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Records returns a copy of all records in position order.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.records))
	for i := range t.records {
		out[i], _ = t.Get(i)
	}
	return out
}
