// Package spoof rejects frames that show a phone, laptop or monitor, the
// usual carriers of a replayed face.
package spoof

import (
	"context"
	"errors"
	"fmt"

	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/inference"
	"github.com/harhit22/new-auto-attendace/internal/logging"
	"github.com/harhit22/new-auto-attendace/internal/metrics"
	"go.uber.org/zap"
)

// Detector runs a general object detector on a frame.
type Detector interface {
	Detect(ctx context.Context, frame face.Frame) ([]inference.Detection, error)
}

// Outcome is the result of a spoof check.
type Outcome struct {
	Rejected   bool
	Reason     string
	Object     string
	Confidence float64
	// Skipped is set when the detector failed and the frame was let through.
	Skipped bool
}

// Filter checks frames for display-like objects.
type Filter struct {
	detector Detector
	cfg      config.SpoofConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New creates a spoof filter. logger and m may be nil.
func New(detector Detector, cfg config.SpoofConfig, logger *zap.Logger, m *metrics.Metrics) *Filter {
	return &Filter{
		detector: detector,
		cfg:      cfg,
		logger:   logging.Or(logger),
		metrics:  m,
	}
}

// Check inspects a single frame. A failing detector does not block the
// request: the outcome is marked Skipped and no error is returned. The
// returned error is only the caller's context error.
func (f *Filter) Check(ctx context.Context, frame face.Frame) (Outcome, error) {
	detections, err := f.detector.Detect(ctx, frame)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, fmt.Errorf("spoof check: %w", ctxErr)
		}
		f.logger.Warn("object detection failed, skipping spoof check",
			zap.Error(err),
			zap.Bool("model_unavailable", errors.Is(err, face.ErrModelUnavailable)),
		)
		return Outcome{Skipped: true}, nil
	}

	var out Outcome
	for _, d := range detections {
		if d.Confidence > constants.SpoofLogConfidence {
			f.logger.Debug("object detected",
				zap.Int("class_id", d.ClassID),
				zap.String("name", d.Name),
				zap.Float64("confidence", d.Confidence),
			)
		}

		name, ok := f.cfg.Classes[d.ClassID]
		if !ok {
			continue
		}
		if d.Confidence <= f.cfg.Confidence {
			f.logger.Info("ignored spoof object below threshold",
				zap.String("name", name),
				zap.Float64("confidence", d.Confidence),
			)
			f.metrics.ObserveSpoofObject(name, false)
			continue
		}

		f.metrics.ObserveSpoofObject(name, true)
		if !out.Rejected || d.Confidence > out.Confidence {
			out = Outcome{
				Rejected:   true,
				Reason:     fmt.Sprintf("Spoof detected: we see a %s in the frame. Real faces only.", name),
				Object:     name,
				Confidence: d.Confidence,
			}
		}
	}

	if out.Rejected {
		f.logger.Warn("spoof object detected",
			zap.String("name", out.Object),
			zap.Float64("confidence", out.Confidence),
		)
	}
	return out, nil
}
