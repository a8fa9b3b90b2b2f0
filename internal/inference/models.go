package inference

import (
	"context"
	"net/http"
	"time"

	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/metrics"
	"golang.org/x/time/rate"
)

// initRetryAfter is how long a failed model initialisation is remembered.
const initRetryAfter = 15 * time.Second

// Models bundles the three shared model handles. It is created once per
// process and passed by reference to every pipeline component; all methods
// are safe for concurrent use.
type Models struct {
	landmarks *Handle[*LandmarkClient]
	detector  *Handle[*DetectorClient]
	embedder  *Handle[*EmbeddingClient]
}

// NewModels wires the clients from configuration. Nothing is contacted until
// the first request; a model server that is down yields ErrModelUnavailable
// from the affected calls rather than a startup failure.
func NewModels(cfg *config.Config, m *metrics.Metrics) *Models {
	rps := cfg.Models.RPS
	limiter := rate.NewLimiter(rate.Limit(rps), max(1, rps))
	httpClient := &http.Client{Timeout: time.Duration(cfg.Models.TimeoutSec) * time.Second}
	opts := []Option{WithHTTPClient(httpClient), WithLimiter(limiter), WithMetrics(m)}

	minConf := cfg.Thresholds.Landmarks.MinConfidence

	return &Models{
		landmarks: NewHandle(LandmarkModel, initRetryAfter, func(ctx context.Context) (*LandmarkClient, error) {
			c := NewLandmarkClient(cfg.Models.LandmarkURL, minConf, opts...)
			return c, c.Ping(ctx)
		}),
		detector: NewHandle(DetectorModel, initRetryAfter, func(ctx context.Context) (*DetectorClient, error) {
			c := NewDetectorClient(cfg.Models.DetectorURL, opts...)
			return c, c.Ping(ctx)
		}),
		embedder: NewHandle("embedding", initRetryAfter, func(ctx context.Context) (*EmbeddingClient, error) {
			c := NewEmbeddingClient(cfg.Models.EmbeddingURL, opts...)
			return c, c.Ping(ctx)
		}),
	}
}

// NewModelsFromHandles builds Models from prepared handles.
func NewModelsFromHandles(l *Handle[*LandmarkClient], d *Handle[*DetectorClient], e *Handle[*EmbeddingClient]) *Models {
	return &Models{landmarks: l, detector: d, embedder: e}
}

// Locate runs the landmark model.
func (m *Models) Locate(ctx context.Context, frame face.Frame) (*face.Landmarks, error) {
	c, err := m.landmarks.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c.Locate(ctx, frame)
}

// Detect runs the object detector.
func (m *Models) Detect(ctx context.Context, frame face.Frame) ([]Detection, error) {
	c, err := m.detector.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c.Detect(ctx, frame)
}

// Describe runs the embedding model for the family.
func (m *Models) Describe(ctx context.Context, frame face.Frame, family face.Family) (*face.Descriptor, error) {
	c, err := m.embedder.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c.Describe(ctx, frame, family)
}

// Status reports which models have been initialised.
func (m *Models) Status() map[string]bool {
	return map[string]bool{
		LandmarkModel: m.landmarks.Ready(),
		DetectorModel: m.detector.Ready(),
		"embedding":   m.embedder.Ready(),
	}
}
