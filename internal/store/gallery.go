// Package store holds the enrolled identities used for matching. The active
// gallery is an immutable snapshot swapped atomically, so verification never
// observes a half-updated identity.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/facematch"
	"github.com/harhit22/new-auto-attendace/internal/logging"
	"github.com/harhit22/new-auto-attendace/internal/matcher"
	"github.com/harhit22/new-auto-attendace/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Repository is the persistent source of enrolled identities.
type Repository interface {
	LoadAll(ctx context.Context) ([]face.StoredIdentity, error)
	Save(ctx context.Context, id face.StoredIdentity) error
	Delete(ctx context.Context, id string) (bool, error)
}

var families = []face.Family{face.Light, face.Heavy}

// Snapshot is a read-only view of the gallery.
type Snapshot struct {
	byID     map[string]face.StoredIdentity
	byFamily map[face.Family][]face.StoredIdentity
	indexes  map[face.Family]*matcher.Index
	loadedAt time.Time
}

func newSnapshot(identities map[string]face.StoredIdentity, indexes map[face.Family]*matcher.Index) *Snapshot {
	s := &Snapshot{
		byID:     identities,
		byFamily: make(map[face.Family][]face.StoredIdentity, len(families)),
		indexes:  indexes,
		loadedAt: time.Now(),
	}
	for _, id := range identities {
		s.byFamily[id.Family] = append(s.byFamily[id.Family], id)
	}
	for f := range s.byFamily {
		slices.SortFunc(s.byFamily[f], func(a, b face.StoredIdentity) int {
			return strings.Compare(a.ID, b.ID)
		})
	}
	return s
}

// Get returns the identity with the given ID.
func (s *Snapshot) Get(id string) (face.StoredIdentity, bool) {
	si, ok := s.byID[id]
	return si, ok
}

// FindByName looks up an identity by normalised name within an organisation.
func (s *Snapshot) FindByName(org, name string) (face.StoredIdentity, bool) {
	want := facematch.NormalizePersonName(name)
	org = facematch.NormalizeOrgCode(org)
	for _, f := range families {
		for _, id := range s.byFamily[f] {
			if facematch.NormalizeOrgCode(id.Org) == org && facematch.NormalizePersonName(id.Name) == want {
				return id, true
			}
		}
	}
	return face.StoredIdentity{}, false
}

// Identities returns the identities of a family, optionally scoped to one
// organisation. An empty org returns all of them.
func (s *Snapshot) Identities(family face.Family, org string) []face.StoredIdentity {
	all := s.byFamily[family]
	if org == "" {
		return all
	}
	org = facematch.NormalizeOrgCode(org)
	var out []face.StoredIdentity
	for _, id := range all {
		if facematch.NormalizeOrgCode(id.Org) == org {
			out = append(out, id)
		}
	}
	return out
}

// All returns every identity ordered by family then ID.
func (s *Snapshot) All() []face.StoredIdentity {
	out := make([]face.StoredIdentity, 0, len(s.byID))
	for _, f := range families {
		out = append(out, s.byFamily[f]...)
	}
	return out
}

// Index returns the HNSW index of a family, nil when the family is too small
// to need one.
func (s *Snapshot) Index(family face.Family) *matcher.Index {
	return s.indexes[family]
}

// Len returns the number of identities.
func (s *Snapshot) Len() int { return len(s.byID) }

// Descriptors returns the total number of stored descriptors.
func (s *Snapshot) Descriptors() int {
	n := 0
	for _, id := range s.byID {
		n += len(id.Descriptors)
	}
	return n
}

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Gallery serves the current snapshot. Reads are lock free; writers are
// serialised and publish a new snapshot.
type Gallery struct {
	current  atomic.Pointer[Snapshot]
	writeMu  sync.Mutex
	indexDir string
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// GalleryOption configures a Gallery.
type GalleryOption func(*Gallery)

// WithIndexDir persists HNSW indexes under dir and reuses them on load when
// they still match the gallery.
func WithIndexDir(dir string) GalleryOption {
	return func(g *Gallery) { g.indexDir = dir }
}

// WithLogger sets the gallery logger.
func WithLogger(l *zap.Logger) GalleryOption {
	return func(g *Gallery) { g.logger = logging.Or(l) }
}

// WithMetrics records the gallery size.
func WithMetrics(m *metrics.Metrics) GalleryOption {
	return func(g *Gallery) { g.metrics = m }
}

// NewGallery creates an empty gallery.
func NewGallery(opts ...GalleryOption) *Gallery {
	g := &Gallery{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	g.current.Store(newSnapshot(map[string]face.StoredIdentity{}, nil))
	return g
}

// Snapshot returns the current read-only view.
func (g *Gallery) Snapshot() *Snapshot {
	return g.current.Load()
}

// Load replaces the whole gallery.
func (g *Gallery) Load(ctx context.Context, identities []face.StoredIdentity) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.load(ctx, identities, true)
}

// RebuildIndexes rebuilds every family index from the current identities,
// ignoring and overwriting any saved index files.
func (g *Gallery) RebuildIndexes(ctx context.Context) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.load(ctx, g.current.Load().All(), false)
}

func (g *Gallery) load(ctx context.Context, identities []face.StoredIdentity, reuse bool) error {
	byID := make(map[string]face.StoredIdentity, len(identities))
	for _, id := range identities {
		byID[id.ID] = id
	}

	indexes := make(map[face.Family]*matcher.Index, len(families))
	var mu sync.Mutex
	eg, _ := errgroup.WithContext(ctx)
	for _, f := range families {
		eg.Go(func() error {
			idx, err := g.indexFor(f, byID, reuse)
			if err != nil {
				return err
			}
			if idx != nil {
				mu.Lock()
				indexes[f] = idx
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.publish(newSnapshot(byID, indexes))
	return nil
}

// Reload loads the gallery from the repository.
func (g *Gallery) Reload(ctx context.Context, repo Repository) error {
	identities, err := repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load identities: %w", err)
	}
	return g.Load(ctx, identities)
}

// Replace inserts or replaces one identity.
func (g *Gallery) Replace(id face.StoredIdentity) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	old := g.current.Load()
	byID := make(map[string]face.StoredIdentity, len(old.byID)+1)
	for k, v := range old.byID {
		byID[k] = v
	}
	prev, existed := old.byID[id.ID]
	byID[id.ID] = id

	touched := []face.Family{id.Family}
	if existed && prev.Family != id.Family {
		touched = append(touched, prev.Family)
	}
	indexes, err := g.reindex(old, byID, touched)
	if err != nil {
		return err
	}

	g.publish(newSnapshot(byID, indexes))
	return nil
}

// Remove deletes an identity and reports whether it existed.
func (g *Gallery) Remove(id string) (bool, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	old := g.current.Load()
	prev, ok := old.byID[id]
	if !ok {
		return false, nil
	}
	byID := make(map[string]face.StoredIdentity, len(old.byID))
	for k, v := range old.byID {
		if k != id {
			byID[k] = v
		}
	}

	indexes, err := g.reindex(old, byID, []face.Family{prev.Family})
	if err != nil {
		return false, err
	}
	g.publish(newSnapshot(byID, indexes))
	return true, nil
}

// reindex copies the unchanged indexes and rebuilds the touched families.
func (g *Gallery) reindex(old *Snapshot, byID map[string]face.StoredIdentity, touched []face.Family) (map[face.Family]*matcher.Index, error) {
	indexes := make(map[face.Family]*matcher.Index, len(families))
	for f, idx := range old.indexes {
		indexes[f] = idx
	}
	for _, f := range touched {
		delete(indexes, f)
		idx, err := g.indexFor(f, byID, false)
		if err != nil {
			return nil, err
		}
		if idx != nil {
			indexes[f] = idx
		}
	}
	return indexes, nil
}

// indexFor builds the family index once the family is large enough. With an
// index directory, a saved index with the same content is reused when allowed.
func (g *Gallery) indexFor(family face.Family, byID map[string]face.StoredIdentity, reuse bool) (*matcher.Index, error) {
	var members []face.StoredIdentity
	count := 0
	for _, id := range byID {
		if id.Family == family {
			members = append(members, id)
			count += len(id.Descriptors)
		}
	}
	if count < constants.HNSWMinGallerySize {
		return nil, nil
	}

	path := ""
	if g.indexDir != "" {
		path = filepath.Join(g.indexDir, family.String()+".hnsw")
	}

	if path != "" && reuse {
		idx, err := matcher.LoadIndex(path)
		switch {
		case err == nil && idx.Len() == count && idx.Fingerprint() == matcher.Fingerprint(family, members):
			g.logger.Info("loaded hnsw index", zap.String("family", family.String()), zap.Int("descriptors", count))
			return idx, nil
		case err != nil && !errors.Is(err, matcher.ErrIndexNotFound):
			g.logger.Warn("ignoring unreadable hnsw index", zap.String("path", path), zap.Error(err))
		}
	}

	start := time.Now()
	idx := matcher.BuildIndex(family, members)
	g.logger.Info("built hnsw index",
		zap.String("family", family.String()),
		zap.Int("descriptors", idx.Len()),
		zap.Duration("took", time.Since(start)),
	)

	if path != "" {
		if err := idx.Save(path); err != nil {
			return nil, fmt.Errorf("save %s index: %w", family, err)
		}
	}
	return idx, nil
}

func (g *Gallery) publish(s *Snapshot) {
	g.current.Store(s)
	g.metrics.SetGallerySize(s.Descriptors())
	g.logger.Info("gallery updated", zap.Int("identities", s.Len()), zap.Int("descriptors", s.Descriptors()))
}

// IdentitySource fetches a single identity, ok false when it was deleted.
type IdentitySource interface {
	Get(ctx context.Context, id string) (face.StoredIdentity, bool, error)
}

// Sync refreshes one identity from src, used when another instance announces
// a change.
func (g *Gallery) Sync(ctx context.Context, src IdentitySource, id string) error {
	si, ok, err := src.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch identity %s: %w", id, err)
	}
	if !ok {
		_, err := g.Remove(id)
		return err
	}
	return g.Replace(si)
}
