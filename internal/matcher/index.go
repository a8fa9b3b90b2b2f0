package matcher

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"hash/fnv"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coder/hnsw"
	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/klauspost/compress/zstd"
)

// IndexMetadata is persisted next to the graph for staleness checks. Count
// alone is not enough: a delete followed by an add keeps it unchanged.
type IndexMetadata struct {
	Family      string    `json:"family"`
	Count       int       `json:"count"`
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	Owners      []string  `json:"owners"` // node key -> identity ID
}

const indexMetadataVersion = 2

// ErrIndexNotFound is returned by LoadIndex when no index file exists.
var ErrIndexNotFound = errors.New("index file not found")

// Index is an immutable HNSW graph over one family's descriptors. Node keys
// are positions in owners, which maps every node back to its identity.
type Index struct {
	family      face.Family
	graph       *hnsw.Graph[int64]
	owners      []string
	fingerprint string
	builtAt     time.Time
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildIndex indexes every comparable descriptor of the family, in identity
// ID order.
func BuildIndex(family face.Family, identities []face.StoredIdentity) *Index {
	idx := &Index{family: family, graph: newGraph(), builtAt: time.Now()}
	h := fnv.New64a()
	eachIndexed(family, identities, func(owner string, d face.Descriptor) {
		key := int64(len(idx.owners))
		idx.graph.Add(hnsw.MakeNode(key, d.Values()))
		idx.owners = append(idx.owners, owner)
		hashDescriptor(h, owner, d)
	})
	idx.fingerprint = strconv.FormatUint(h.Sum64(), 16)
	return idx
}

// Fingerprint returns the content hash BuildIndex would record for the
// identities, without building a graph.
func Fingerprint(family face.Family, identities []face.StoredIdentity) string {
	h := fnv.New64a()
	eachIndexed(family, identities, func(owner string, d face.Descriptor) {
		hashDescriptor(h, owner, d)
	})
	return strconv.FormatUint(h.Sum64(), 16)
}

func eachIndexed(family face.Family, identities []face.StoredIdentity, fn func(owner string, d face.Descriptor)) {
	sorted := slices.Clone(identities)
	slices.SortFunc(sorted, func(a, b face.StoredIdentity) int { return strings.Compare(a.ID, b.ID) })
	for _, id := range sorted {
		if id.Family != family {
			continue
		}
		for _, d := range id.Descriptors {
			if d.Family() != family || d.IsZero() {
				continue
			}
			fn(id.ID, d)
		}
	}
}

func hashDescriptor(h hash.Hash, owner string, d face.Descriptor) {
	buf := make([]byte, 0, len(owner)+1+4*len(d.Values()))
	buf = append(buf, owner...)
	buf = append(buf, 0)
	for _, v := range d.Values() {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	_, _ = h.Write(buf)
}

// Family returns the indexed family.
func (x *Index) Family() face.Family { return x.family }

// Len returns the number of indexed descriptors.
func (x *Index) Len() int { return len(x.owners) }

// Fingerprint returns the content hash of the indexed descriptors.
func (x *Index) Fingerprint() string { return x.fingerprint }

// BuiltAt returns when the graph was built.
func (x *Index) BuiltAt() time.Time { return x.builtAt }

// Shortlist returns the distinct identity IDs owning the k nearest
// descriptors, nearest first.
func (x *Index) Shortlist(query face.Descriptor, k int) []string {
	if x.Len() == 0 || query.Family() != x.family {
		return nil
	}

	neighbors := x.graph.Search(query.Values(), k)
	seen := make(map[string]bool, len(neighbors))
	out := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Key < 0 || int(n.Key) >= len(x.owners) {
			continue
		}
		owner := x.owners[n.Key]
		if !seen[owner] {
			seen[owner] = true
			out = append(out, owner)
		}
	}
	return out
}

// Save writes the zstd-compressed graph to path and its metadata to path.meta.
func (x *Index) Save(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := x.graph.Export(zw); err != nil {
		_ = zw.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush HNSW index: %w", err)
	}

	meta, err := json.Marshal(IndexMetadata{
		Family:      x.family.String(),
		Count:       len(x.owners),
		BuildTime:   x.builtAt,
		Version:     indexMetadataVersion,
		Fingerprint: x.fingerprint,
		Owners:      x.owners,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", meta, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadIndex reads an index written by Save.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta IndexMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if meta.Version != indexMetadataVersion {
		return nil, fmt.Errorf("unsupported index version %d", meta.Version)
	}
	family, err := face.ParseFamily(meta.Family)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open HNSW index: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	g := newGraph()
	if err := g.Import(bufio.NewReader(zr)); err != nil {
		return nil, fmt.Errorf("failed to import HNSW graph: %w", err)
	}
	if g.Len() != len(meta.Owners) {
		return nil, fmt.Errorf("index has %d nodes but metadata lists %d owners", g.Len(), len(meta.Owners))
	}

	return &Index{
		family:      family,
		graph:       g,
		owners:      meta.Owners,
		fingerprint: meta.Fingerprint,
		builtAt:     meta.BuildTime,
	}, nil
}
