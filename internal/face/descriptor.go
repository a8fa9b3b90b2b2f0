package face

import (
	"fmt"
	"math"
	"strings"
)

// Family identifies the embedding model a descriptor came from.
// Descriptors of different families are never compared.
type Family int

const (
	Light Family = iota + 1 // 128-d
	Heavy                   // 512-d
)

// Dim returns the vector length produced by the family's model.
func (f Family) Dim() int {
	switch f {
	case Light:
		return 128
	case Heavy:
		return 512
	default:
		return 0
	}
}

func (f Family) String() string {
	switch f {
	case Light:
		return "light"
	case Heavy:
		return "heavy"
	default:
		return "unknown"
	}
}

// ParseFamily parses "light" or "heavy" (case-insensitive).
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "light":
		return Light, nil
	case "heavy":
		return Heavy, nil
	default:
		return 0, fmt.Errorf("unknown descriptor family %q", s)
	}
}

// FamilyForDim maps a vector length back to its family.
func FamilyForDim(dim int) (Family, bool) {
	switch dim {
	case 128:
		return Light, true
	case 512:
		return Heavy, true
	default:
		return 0, false
	}
}

// Descriptor is an L2-normalized face embedding tagged with its family.
// The zero value is empty and matches nothing.
type Descriptor struct {
	family Family
	data   []float32
}

// NewDescriptor validates the length for the family and returns a normalized copy.
// A zero vector keeps its zeros; the matcher skips it.
func NewDescriptor(family Family, data []float32) (Descriptor, error) {
	if family.Dim() == 0 {
		return Descriptor{}, fmt.Errorf("descriptor family %d: %w", family, ErrDimensionMismatch)
	}
	if len(data) != family.Dim() {
		return Descriptor{}, fmt.Errorf("%s descriptor has %d values, want %d: %w",
			family, len(data), family.Dim(), ErrDimensionMismatch)
	}

	var sum float64
	for _, v := range data {
		sum += float64(v) * float64(v)
	}
	out := make([]float32, len(data))
	norm := math.Sqrt(sum)
	if norm == 0 {
		return Descriptor{family: family, data: out}, nil
	}
	for i, v := range data {
		out[i] = float32(float64(v) / norm)
	}
	return Descriptor{family: family, data: out}, nil
}

// Family returns the descriptor's family.
func (d Descriptor) Family() Family { return d.family }

// Len returns the vector length.
func (d Descriptor) Len() int { return len(d.data) }

// Values returns the underlying vector. Callers must not modify it.
func (d Descriptor) Values() []float32 { return d.data }

// IsZero reports whether the descriptor is empty or all zeros.
func (d Descriptor) IsZero() bool {
	for _, v := range d.data {
		if v != 0 {
			return false
		}
	}
	return true
}

// StoredIdentity is an enrolled person with descriptors from exactly one family.
type StoredIdentity struct {
	ID          string
	Name        string
	Org         string
	Family      Family
	Descriptors []Descriptor
}

// NewStoredIdentity builds an identity and rejects mixed-family descriptor lists.
func NewStoredIdentity(id, name, org string, family Family, descriptors []Descriptor) (StoredIdentity, error) {
	for i, d := range descriptors {
		if d.Family() != family {
			return StoredIdentity{}, fmt.Errorf("descriptor %d is %s, identity is %s: %w",
				i, d.Family(), family, ErrFamilyMismatch)
		}
	}
	list := make([]Descriptor, len(descriptors))
	copy(list, descriptors)
	return StoredIdentity{ID: id, Name: name, Org: org, Family: family, Descriptors: list}, nil
}
