package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"

	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptor(t *testing.T, family face.Family, seed float32) face.Descriptor {
	t.Helper()
	v := make([]float32, family.Dim())
	v[0] = 1
	v[1] = seed
	d, err := face.NewDescriptor(family, v)
	require.NoError(t, err)
	return d
}

func identity(t *testing.T, id, name, org string, family face.Family, n int) face.StoredIdentity {
	t.Helper()
	descs := make([]face.Descriptor, n)
	for i := range descs {
		descs[i] = descriptor(t, family, float32(i))
	}
	si, err := face.NewStoredIdentity(id, name, org, family, descs)
	require.NoError(t, err)
	return si
}

// memRepo is an in-memory Repository.
type memRepo struct {
	mu   sync.Mutex
	rows map[string]face.StoredIdentity
}

func (r *memRepo) LoadAll(context.Context) ([]face.StoredIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]face.StoredIdentity, 0, len(r.rows))
	for _, v := range r.rows {
		out = append(out, v)
	}
	return out, nil
}

func (r *memRepo) Save(_ context.Context, id face.StoredIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[id.ID] = id
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

func (r *memRepo) Get(_ context.Context, id string) (face.StoredIdentity, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	si, ok := r.rows[id]
	return si, ok, nil
}

func TestGallery_LoadAndLookup(t *testing.T) {
	g := NewGallery()
	require.NoError(t, g.Load(context.Background(), []face.StoredIdentity{
		identity(t, "e2", "Jan Novák", "ACME", face.Light, 2),
		identity(t, "e1", "Petra Svobodová", "acme", face.Light, 3),
		identity(t, "e3", "Other Person", "globex", face.Heavy, 1),
	}))

	snap := g.Snapshot()
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, 6, snap.Descriptors())

	light := snap.Identities(face.Light, "")
	require.Len(t, light, 2)
	assert.Equal(t, "e1", light[0].ID)

	assert.Len(t, snap.Identities(face.Light, " Acme "), 2)
	assert.Empty(t, snap.Identities(face.Light, "globex"))
	assert.Len(t, snap.Identities(face.Heavy, "globex"), 1)

	got, ok := snap.FindByName("ACME", "jan-novak")
	require.True(t, ok)
	assert.Equal(t, "e2", got.ID)

	_, ok = snap.FindByName("globex", "jan novak")
	assert.False(t, ok)

	assert.Nil(t, snap.Index(face.Light), "small galleries are scanned exactly")
}

func TestGallery_ReplaceIsCopyOnWrite(t *testing.T) {
	g := NewGallery()
	require.NoError(t, g.Load(context.Background(), []face.StoredIdentity{
		identity(t, "e1", "A", "", face.Light, 1),
	}))
	before := g.Snapshot()

	require.NoError(t, g.Replace(identity(t, "e1", "A", "", face.Light, 4)))
	require.NoError(t, g.Replace(identity(t, "e2", "B", "", face.Heavy, 1)))

	old, _ := before.Get("e1")
	assert.Len(t, old.Descriptors, 1, "published snapshots never change")
	assert.Equal(t, 1, before.Len())

	now := g.Snapshot()
	cur, _ := now.Get("e1")
	assert.Len(t, cur.Descriptors, 4)
	assert.Equal(t, 2, now.Len())
}

func TestGallery_Remove(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	g := NewGallery(WithMetrics(m))
	require.NoError(t, g.Load(context.Background(), []face.StoredIdentity{
		identity(t, "e1", "A", "", face.Light, 2),
		identity(t, "e2", "B", "", face.Light, 3),
	}))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.GallerySize))

	removed, err := g.Remove("e1")
	require.NoError(t, err)
	assert.True(t, removed)
	_, ok := g.Snapshot().Get("e1")
	assert.False(t, ok)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.GallerySize))

	removed, err = g.Remove("missing")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestGallery_Reload(t *testing.T) {
	repo := &memRepo{rows: map[string]face.StoredIdentity{}}
	require.NoError(t, repo.Save(context.Background(), identity(t, "e1", "A", "", face.Light, 1)))

	g := NewGallery()
	require.NoError(t, g.Reload(context.Background(), repo))
	assert.Equal(t, 1, g.Snapshot().Len())
}

func TestGallery_ConcurrentReaders(t *testing.T) {
	g := NewGallery()
	require.NoError(t, g.Load(context.Background(), []face.StoredIdentity{
		identity(t, "e1", "A", "", face.Light, 3),
	}))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				snap := g.Snapshot()
				id, ok := snap.Get("e1")
				if ok && len(id.Descriptors) != 3 && len(id.Descriptors) != 5 {
					t.Errorf("reader %d saw a partial identity with %d descriptors", i, len(id.Descriptors))
				}
			}
		}()
	}
	for range 20 {
		require.NoError(t, g.Replace(identity(t, "e1", "A", "", face.Light, 5)))
		require.NoError(t, g.Replace(identity(t, "e1", "A", "", face.Light, 3)))
	}
	wg.Wait()
}

func TestGallery_Sync(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{rows: map[string]face.StoredIdentity{}}
	g := NewGallery()

	require.NoError(t, repo.Save(ctx, identity(t, "e1", "A", "", face.Light, 2)))
	require.NoError(t, g.Sync(ctx, repo, "e1"))
	_, ok := g.Snapshot().Get("e1")
	assert.True(t, ok)

	_, err := repo.Delete(ctx, "e1")
	require.NoError(t, err)
	require.NoError(t, g.Sync(ctx, repo, "e1"))
	_, ok = g.Snapshot().Get("e1")
	assert.False(t, ok)
}

func randomLightIdentity(t *testing.T, r *rand.Rand, id string) face.StoredIdentity {
	t.Helper()
	descs := make([]face.Descriptor, 5)
	for j := range descs {
		v := make([]float32, face.Light.Dim())
		for k := range v {
			v[k] = r.Float32() - 0.5
		}
		d, err := face.NewDescriptor(face.Light, v)
		require.NoError(t, err)
		descs[j] = d
	}
	si, err := face.NewStoredIdentity(id, "P", "", face.Light, descs)
	require.NoError(t, err)
	return si
}

func TestGallery_RebuildIndexes(t *testing.T) {
	if testing.Short() {
		t.Skip("builds an HNSW graph over the index threshold")
	}
	r := rand.New(rand.NewPCG(1, 2))
	ids := make([]face.StoredIdentity, 0, constants.HNSWMinGallerySize/5)
	for i := range constants.HNSWMinGallerySize / 5 {
		ids = append(ids, randomLightIdentity(t, r, fmt.Sprintf("e%04d", i)))
	}

	dir := t.TempDir()
	g := NewGallery(WithIndexDir(dir))
	require.NoError(t, g.Load(context.Background(), ids))

	first := g.Snapshot().Index(face.Light)
	require.NotNil(t, first)
	assert.Equal(t, constants.HNSWMinGallerySize, first.Len())
	assert.FileExists(t, filepath.Join(dir, "light.hnsw"))

	t.Run("same content reuses the saved index", func(t *testing.T) {
		g2 := NewGallery(WithIndexDir(dir))
		require.NoError(t, g2.Load(context.Background(), ids))
		reused := g2.Snapshot().Index(face.Light)
		require.NotNil(t, reused)
		assert.Equal(t, first.Fingerprint(), reused.Fingerprint())
		assert.True(t, first.BuiltAt().Equal(reused.BuiltAt()), "loaded from disk, not rebuilt")
	})

	t.Run("delete plus add of the same size rebuilds", func(t *testing.T) {
		changed := append([]face.StoredIdentity{}, ids[1:]...)
		newcomer := randomLightIdentity(t, r, "new")
		changed = append(changed, newcomer)

		g3 := NewGallery(WithIndexDir(dir))
		require.NoError(t, g3.Load(context.Background(), changed))
		idx := g3.Snapshot().Index(face.Light)
		require.NotNil(t, idx)
		assert.Equal(t, first.Len(), idx.Len())
		assert.NotEqual(t, first.Fingerprint(), idx.Fingerprint())
		assert.Contains(t, idx.Shortlist(newcomer.Descriptors[0], 10), "new")
	})

	require.NoError(t, g.RebuildIndexes(context.Background()))
	second := g.Snapshot().Index(face.Light)
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, first.Len(), second.Len())
	assert.Equal(t, g.Snapshot().Len(), len(ids))
}
