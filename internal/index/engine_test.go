package index

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/hyperjump/facevault/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

func unitVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var sum float64
	for i := range v {
		x := r.NormFloat64()
		v[i] = float32(x)
		sum += x * x
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngine_SelfMatch(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		_, err := e.AddVector(unitVector(r, testDim), "other", fmt.Sprintf("noise-%d", i), "")
		require.NoError(t, err)
	}

	v := unitVector(r, testDim)
	pos, err := e.AddVector(v, "alice", "img-1", "Alice")
	require.NoError(t, err)
	assert.Equal(t, 20, pos)

	matches, err := e.Search(v, 1, "alice", -1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "img-1", matches[0].ItemID)
	assert.Equal(t, "Alice", matches[0].DisplayName)
	assert.Equal(t, 1, matches[0].Rank)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
}

func TestEngine_ResultCountBoundedByK(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		tenant := "a"
		if i%3 == 0 {
			tenant = "b"
		}
		_, err := e.AddVector(unitVector(r, testDim), tenant, fmt.Sprintf("item-%d", i), "")
		require.NoError(t, err)
	}
	q := unitVector(r, testDim)
	for _, k := range []int{0, 1, 5, 17, 50, 100} {
		for _, tenant := range []string{"", "a", "b", "missing"} {
			matches, err := e.Search(q, k, tenant, -1)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(matches), k, "k=%d tenant=%q", k, tenant)
			for i, m := range matches {
				assert.Equal(t, i+1, m.Rank)
				if i > 0 {
					assert.GreaterOrEqual(t, matches[i-1].Score, m.Score)
				}
			}
		}
	}
}

func TestEngine_TenantIsolation(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 40; i++ {
		tenant := "alice"
		if i%2 == 1 {
			tenant = "bob"
		}
		_, err := e.AddVector(unitVector(r, testDim), tenant, fmt.Sprintf("%s-%d", tenant, i), "")
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		q := unitVector(r, testDim)
		matches, err := e.Search(q, 5, "alice", -1)
		require.NoError(t, err)
		assert.Len(t, matches, 5)
		for _, m := range matches {
			assert.Equal(t, "alice", m.TenantID)
		}
	}
}

func TestEngine_SoftDeleteTenant(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(11))
	vecs := make([][]float32, 6)
	for i := range vecs {
		vecs[i] = unitVector(r, testDim)
		tenant := "keep"
		if i < 3 {
			tenant = "drop"
		}
		_, err := e.AddVector(vecs[i], tenant, fmt.Sprintf("item-%d", i), "")
		require.NoError(t, err)
	}

	assert.Equal(t, 3, e.SoftDeleteTenant("drop"))
	assert.Equal(t, 0, e.SoftDeleteTenant("drop"), "second delete marks nothing")
	assert.Equal(t, 6, e.VectorCount())
	assert.Equal(t, 3, e.LiveCount())
	assert.Equal(t, []string{"keep"}, e.Tenants())

	for _, v := range vecs {
		matches, err := e.Search(v, 10, "", -1)
		require.NoError(t, err)
		for _, m := range matches {
			assert.Equal(t, "keep", m.TenantID)
		}
		matches, err = e.Search(v, 10, "drop", -1)
		require.NoError(t, err)
		assert.Empty(t, matches)
	}
}

func TestEngine_ThresholdBoundary(t *testing.T) {
	e := newTestEngine(t)
	exact := make([]float32, testDim)
	exact[0] = 1
	half := make([]float32, testDim)
	half[0], half[1] = 0.5, 0.5
	_, err := e.AddVector(exact, "u", "exact", "")
	require.NoError(t, err)
	_, err = e.AddVector(half, "u", "half", "")
	require.NoError(t, err)

	matches, err := e.Search(exact, 10, "u", 0.5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "half", matches[1].ItemID)
	assert.Equal(t, float32(0.5), matches[1].Score)

	matches, err = e.Search(exact, 10, "u", math.Nextafter32(0.5, 1))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "exact", matches[0].ItemID)
}

func TestEngine_RebuildRenumbers(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(5))
	var survivors []ActiveRecord
	for i := 0; i < 10; i++ {
		v := unitVector(r, testDim)
		tenant := "live"
		if i == 2 || i == 5 || i == 8 {
			tenant = "gone"
		}
		_, err := e.AddVector(v, tenant, fmt.Sprintf("item-%d", i), "")
		require.NoError(t, err)
		if tenant == "live" {
			survivors = append(survivors, ActiveRecord{Embedding: v, TenantID: tenant, ItemID: fmt.Sprintf("item-%d", i)})
		}
	}
	require.Equal(t, 3, e.SoftDeleteTenant("gone"))
	require.Equal(t, 10, e.VectorCount())

	require.NoError(t, e.Rebuild(survivors))
	assert.Equal(t, 7, e.VectorCount())
	assert.Equal(t, 7, e.LiveCount())
	for i, s := range survivors {
		rec, ok := e.Record(i)
		require.True(t, ok)
		assert.Equal(t, i, rec.Position)
		assert.Equal(t, s.ItemID, rec.ItemID)
		assert.False(t, rec.Deleted)

		matches, err := e.Search(s.Embedding, 1, "live", -1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, i, matches[0].Position)
	}
	_, ok := e.Record(7)
	assert.False(t, ok)
}

func TestEngine_RebuildEmptyAndInvalid(t *testing.T) {
	e := newTestEngine(t)
	v := make([]float32, testDim)
	v[0] = 1
	_, err := e.AddVector(v, "u", "a", "")
	require.NoError(t, err)

	err = e.Rebuild([]ActiveRecord{{Embedding: v, ItemID: "ok"}, {Embedding: []float32{1}, ItemID: "bad"}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, e.VectorCount(), "failed rebuild keeps the old state")

	require.NoError(t, e.Rebuild(nil))
	assert.Equal(t, 0, e.VectorCount())
	matches, err := e.Search(v, 5, "", -1)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestEngine_OrthogonalScenario(t *testing.T) {
	e := newTestEngine(t)
	same := make([]float32, testDim)
	same[0] = 1
	orth := make([]float32, testDim)
	orth[1] = 1
	for i := 1; i <= 5; i++ {
		v := same
		if i == 3 {
			v = orth
		}
		_, err := e.AddVector(v, "u1", fmt.Sprintf("v%d", i), "")
		require.NoError(t, err)
	}

	matches, err := e.Search(same, 3, "u1", 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "v1", matches[0].ItemID)
	assert.Equal(t, float32(1), matches[0].Score)
	assert.Equal(t, "v2", matches[1].ItemID)
	assert.Equal(t, "v4", matches[2].ItemID)
	for _, m := range matches {
		assert.NotEqual(t, "v3", m.ItemID)
	}
}

func TestEngine_EmptySearch(t *testing.T) {
	e := newTestEngine(t)
	matches, err := e.Search(make([]float32, testDim), 5, "", 0)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)

	matches, err = e.Search([]float32{1, 2}, 5, "anyone", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestEngine_QueryDimensionMismatch(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddVector(make([]float32, testDim), "u", "a", "")
	require.NoError(t, err)
	_, err = e.Search([]float32{1, 2, 3}, 1, "", 0)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEngine_AddVectorDimensionMismatch(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddVector([]float32{1, 2, 3}, "u", "a", "")
	require.ErrorIs(t, err, ErrDimensionMismatch)
	var dimErr *DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Got)
	assert.Equal(t, testDim, dimErr.Want)
	assert.Equal(t, 0, e.VectorCount())
}

func TestEngine_MalformedBatchRejected(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(9))
	_, err := e.AddVector(unitVector(r, testDim), "u", "seed", "")
	require.NoError(t, err)

	batch := [][]float32{unitVector(r, testDim), unitVector(r, testDim)[:4], unitVector(r, testDim)}
	_, err = e.AddVectorsBatch(batch, []string{"u", "u", "u"}, []string{"a", "b", "c"}, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, e.VectorCount())

	_, err = e.AddVectorsBatch(batch[:1], []string{"u", "u"}, []string{"a"}, nil)
	require.ErrorIs(t, err, ErrBatchShape)
	assert.Equal(t, 1, e.VectorCount())
}

func TestEngine_AddVectorsBatch(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(13))
	batch := [][]float32{unitVector(r, testDim), unitVector(r, testDim), unitVector(r, testDim)}
	positions, err := e.AddVectorsBatch(batch, []string{"a", "b", ""}, []string{"x", "y", "z"}, []string{"X", "Y", "Z"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, positions)

	rec, ok := e.Record(2)
	require.True(t, ok)
	assert.Equal(t, DefaultTenant, rec.TenantID)
	assert.Equal(t, "Z", rec.DisplayName)
}

func TestEngine_PersistRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(21))
	for i := 0; i < 30; i++ {
		_, err := e.AddVector(unitVector(r, testDim), fmt.Sprintf("t%d", i%4), fmt.Sprintf("item-%d", i), "")
		require.NoError(t, err)
	}
	e.SoftDeleteTenant("t2")

	var state State
	require.NoError(t, e.Persist(func(s State) error {
		state = s
		return nil
	}))
	restored, err := NewEngineFromState(state)
	require.NoError(t, err)
	defer restored.Close()

	assert.Equal(t, e.VectorCount(), restored.VectorCount())
	assert.Equal(t, e.LiveCount(), restored.LiveCount())
	for i := 0; i < 10; i++ {
		q := unitVector(r, testDim)
		for _, tenant := range []string{"", "t0", "t2"} {
			want, err := e.Search(q, 5, tenant, -1)
			require.NoError(t, err)
			got, err := restored.Search(q, 5, tenant, -1)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestState_Validate(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		wantErr bool
	}{
		{"empty", State{Dimensions: 2}, false},
		{"valid", State{Dimensions: 2, Vectors: []float32{1, 0}, Records: []Record{{Position: 0}}}, false},
		{"zero dimension", State{Dimensions: 0}, true},
		{"ragged vectors", State{Dimensions: 2, Vectors: []float32{1, 0, 1}}, true},
		{"count mismatch", State{Dimensions: 2, Vectors: []float32{1, 0}}, true},
		{"bad position", State{Dimensions: 2, Vectors: []float32{1, 0}, Records: []Record{{Position: 4}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEngine_ConcurrentAddAndSearch(t *testing.T) {
	e := newTestEngine(t)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < 50; i++ {
				if w%2 == 0 {
					_, err := e.AddVector(unitVector(r, testDim), "u", fmt.Sprintf("%d-%d", w, i), "")
					assert.NoError(t, err)
				} else {
					_, err := e.Search(unitVector(r, testDim), 3, "u", -1)
					assert.NoError(t, err)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 100, e.VectorCount())
	assert.Equal(t, e.VectorCount(), e.LiveCount())
}

func TestLazy_LoadsOnce(t *testing.T) {
	calls := 0
	lazy := NewLazy(func() (*Engine, error) {
		calls++
		return NewEngine(testDim)
	})
	assert.False(t, lazy.Loaded())

	var wg sync.WaitGroup
	engines := make([]*Engine, 8)
	for i := range engines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := lazy.Get()
			assert.NoError(t, err)
			engines[i] = e
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	assert.True(t, lazy.Loaded())
	for _, e := range engines {
		assert.Same(t, engines[0], e)
	}
	assert.NoError(t, lazy.Close())
}

func TestLazy_StickyError(t *testing.T) {
	lazy := NewLazy(func() (*Engine, error) {
		return nil, errors.New("boom")
	})
	_, err := lazy.Get()
	require.Error(t, err)
	_, err = lazy.Get()
	require.EqualError(t, err, "boom")
	assert.NoError(t, lazy.Close())
}

func TestEngine_HugeKDoesNotOverflow(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(5))
	for i := 0; i < 6; i++ {
		_, err := e.AddVector(unitVector(r, testDim), fmt.Sprintf("t%d", i%2), fmt.Sprintf("item-%d", i), "")
		require.NoError(t, err)
	}
	q := unitVector(r, testDim)
	for _, k := range []int{math.MaxInt / DefaultOversample, math.MaxInt/DefaultOversample + 1, math.MaxInt} {
		all, err := e.Search(q, k, "", -1)
		require.NoError(t, err)
		assert.Len(t, all, 6)

		scoped, err := e.Search(q, k, "t1", -1)
		require.NoError(t, err)
		assert.Len(t, scoped, 3)
	}
}

func axisVector(score float32) []float32 {
	v := make([]float32, testDim)
	v[0] = score
	v[1] = float32(math.Sqrt(float64(1 - score*score)))
	return v
}

func TestEngine_TenantSearchLimitedToOversampleWindow(t *testing.T) {
	e, err := NewEngine(testDim, WithOversample(2))
	require.NoError(t, err)
	defer e.Close()

	query := axisVector(1)
	_, err = e.AddVector(axisVector(1), "other", "o-1", "")
	require.NoError(t, err)
	_, err = e.AddVector(axisVector(0.9), "target", "t-1", "")
	require.NoError(t, err)

	matches, err := e.Search(query, 1, "target", -1)
	require.NoError(t, err)
	require.Len(t, matches, 1, "second-ranked candidate is inside k*oversample")
	assert.Equal(t, "t-1", matches[0].ItemID)

	_, err = e.AddVector(axisVector(0.95), "other", "o-2", "")
	require.NoError(t, err)

	matches, err = e.Search(query, 1, "target", -1)
	require.NoError(t, err)
	assert.Empty(t, matches, "third-ranked candidate is outside k*oversample")

	matches, err = e.Search(query, 2, "target", -1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "t-1", matches[0].ItemID)
}

func TestEngine_BatchVisibleAllOrNothing(t *testing.T) {
	const batchSize, batches = 5, 40
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(17))
	query := unitVector(r, testDim)

	payload := make([][][]float32, batches)
	for b := range payload {
		payload[b] = make([][]float32, batchSize)
		for i := range payload[b] {
			payload[b][i] = unitVector(r, testDim)
		}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				assert.Zero(t, e.VectorCount()%batchSize)
				matches, err := e.Search(query, math.MaxInt, "", -1)
				assert.NoError(t, err)
				assert.Zero(t, len(matches)%batchSize)
			}
		}()
	}

	tenants := make([]string, batchSize)
	names := make([]string, batchSize)
	for b := 0; b < batches; b++ {
		items := make([]string, batchSize)
		for i := range items {
			items[i] = fmt.Sprintf("b%d-%d", b, i)
		}
		_, err := e.AddVectorsBatch(payload[b], tenants, items, names)
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()
	assert.Equal(t, batchSize*batches, e.VectorCount())
}

type exportFailingStore struct {
	vector.Store
}

func (exportFailingStore) Export() ([]float32, error) {
	return nil, errors.New("reconstruct failed")
}

func TestEngine_PersistFailsWhenExportFails(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(3))
	_, err := e.AddVector(unitVector(r, testDim), "a", "x", "")
	require.NoError(t, err)
	e.store = exportFailingStore{Store: e.store}

	called := false
	err = e.Persist(func(State) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconstruct failed")
	assert.False(t, called)
	assert.True(t, e.Modified())
}

func TestEngine_ModifiedTracksMutations(t *testing.T) {
	e := newTestEngine(t)
	assert.False(t, e.Modified())

	r := rand.New(rand.NewSource(4))
	_, err := e.AddVector(unitVector(r, testDim), "a", "x", "")
	require.NoError(t, err)
	assert.True(t, e.Modified())

	require.NoError(t, e.Persist(func(State) error { return nil }))
	assert.False(t, e.Modified())

	assert.Zero(t, e.SoftDeleteTenant("missing"))
	assert.False(t, e.Modified())
	assert.Equal(t, 1, e.SoftDeleteTenant("a"))
	assert.True(t, e.Modified())
}
