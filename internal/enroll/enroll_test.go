package enroll

import (
	"context"
	"errors"
	"image"
	"math/rand/v2"
	"testing"

	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDescriber returns descriptors, nil or errors by frame index.
type scriptedDescriber struct {
	noFace map[int]bool
	fail   map[int]bool
}

func (s scriptedDescriber) Describe(_ context.Context, frame face.Frame, family face.Family) (*face.Descriptor, error) {
	if s.fail[frame.Index] {
		return nil, face.NewModelError("facenet", errors.New("500"))
	}
	if s.noFace[frame.Index] {
		return nil, nil
	}
	v := make([]float32, family.Dim())
	v[frame.Index%family.Dim()] = 1
	d, err := face.NewDescriptor(family, v)
	return &d, err
}

type savedIdentities struct{ saved []face.StoredIdentity }

func (s *savedIdentities) Save(_ context.Context, id face.StoredIdentity) error {
	s.saved = append(s.saved, id)
	return nil
}

type publishedIDs []string

func (p *publishedIDs) Publish(_ context.Context, id string) error {
	*p = append(*p, id)
	return nil
}

// texturedFrame is a mid-grey noise image that passes the quality gate.
func texturedFrame(index int) face.Frame {
	r := rand.New(rand.NewPCG(uint64(index), 7))
	g := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range g.Pix {
		g.Pix[i] = uint8(64 + r.IntN(128))
	}
	return face.Frame{Index: index, Image: g}
}

func darkFrame(index int) face.Frame {
	return face.Frame{Index: index, Image: image.NewGray(image.Rect(0, 0, 64, 64))}
}

func TestEnroll(t *testing.T) {
	saver := &savedIdentities{}
	gallery := store.NewGallery()
	var published publishedIDs
	svc := New(scriptedDescriber{noFace: map[int]bool{2: true}, fail: map[int]bool{3: true}},
		saver, gallery, &published, config.DefaultThresholds().Enroll, nil)

	var ticks []int
	report, err := svc.Enroll(context.Background(), Request{
		Name:   "Jan Novák",
		Org:    "acme",
		Family: face.Light,
		Images: []face.Frame{texturedFrame(0), texturedFrame(1), texturedFrame(2), texturedFrame(3), darkFrame(4)},
	}, func(done, _ int) { ticks = append(ticks, done) })
	require.NoError(t, err)

	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 2, report.Total)
	require.Len(t, report.Skipped, 3)
	assert.Equal(t, "no face detected", report.Skipped[0].Reason)
	assert.Equal(t, "face model error", report.Skipped[1].Reason)
	assert.Contains(t, report.Skipped[2].Reason, "low image quality")
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ticks)

	id := report.Identity
	assert.NotEmpty(t, id.ID, "an ID is generated")
	require.Len(t, saver.saved, 1)
	assert.Equal(t, id.ID, saver.saved[0].ID)

	got, ok := gallery.Snapshot().Get(id.ID)
	require.True(t, ok)
	assert.Len(t, got.Descriptors, 2)
	assert.Equal(t, publishedIDs{id.ID}, published)
}

func TestEnroll_AppendsToExisting(t *testing.T) {
	svc := New(scriptedDescriber{}, &savedIdentities{}, nil, nil, config.DefaultThresholds().Enroll, nil)

	first, err := svc.Enroll(context.Background(), Request{
		IdentityID: "e1",
		Family:     face.Light,
		Images:     []face.Frame{texturedFrame(0), texturedFrame(1)},
	}, nil)
	require.NoError(t, err)

	second, err := svc.Enroll(context.Background(), Request{
		IdentityID: "e1",
		Family:     face.Light,
		Images:     []face.Frame{texturedFrame(5)},
		Existing:   &first.Identity,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Added)
	assert.Equal(t, 3, second.Total)
}

func TestEnroll_NoUsableImages(t *testing.T) {
	saver := &savedIdentities{}
	svc := New(scriptedDescriber{noFace: map[int]bool{0: true}}, saver, nil, nil, config.DefaultThresholds().Enroll, nil)

	_, err := svc.Enroll(context.Background(), Request{
		IdentityID: "e1",
		Images:     []face.Frame{texturedFrame(0), darkFrame(1)},
	}, nil)
	assert.ErrorIs(t, err, ErrNoUsableImages)
	assert.Empty(t, saver.saved)
}

func TestEnroll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := New(scriptedDescriber{fail: map[int]bool{0: true}}, &savedIdentities{}, nil, nil, config.DefaultThresholds().Enroll, nil)

	_, err := svc.Enroll(ctx, Request{Images: []face.Frame{texturedFrame(0)}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
