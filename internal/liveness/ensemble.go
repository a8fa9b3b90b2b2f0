// Package liveness decides whether a burst of frames shows a physically
// present face. Two independent signals are combined: gaze-head correlation
// (eyes must move relative to a turning head) and cheek texture entropy
// (skin is rich, emissive screens are smooth). An optional blink challenge
// can be required on top.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/logging"
	"github.com/harhit22/new-auto-attendace/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Locator finds the face mesh in a frame. A nil result without error means no face.
type Locator interface {
	Locate(ctx context.Context, frame face.Frame) (*face.Landmarks, error)
}

// User-facing messages. They name the check but never the thresholds.
const (
	msgPass          = "Liveness passed"
	msgTurnHead      = "Please turn your head slightly left and right."
	msgBlink         = "Please blink when prompted."
	msgPaintedEyes   = "Fake eyes detected (painted eyes detected). Please look at the camera."
	msgScreen        = "Screen detected. Please present your real face."
	msgInsufficient  = "Insufficient data for liveness"
	msgKeepInView    = "Please keep your face in view of the camera."
	msgUnavailable   = "Liveness check unavailable"
	msgNoTextureFace = "No face found for texture scan"
)

// Ensemble runs the liveness signals over a burst.
type Ensemble struct {
	locator Locator
	cfg     config.LivenessConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	workers int
}

// New creates an ensemble. logger and m may be nil.
func New(locator Locator, cfg config.LivenessConfig, logger *zap.Logger, m *metrics.Metrics) *Ensemble {
	return &Ensemble{
		locator: locator,
		cfg:     cfg,
		logger:  logging.Or(logger),
		metrics: m,
		workers: constants.LivenessWorkers,
	}
}

// MinFrames returns the configured minimum burst size.
func (e *Ensemble) MinFrames() int {
	return e.cfg.MinBurstFrames
}

// located holds the landmark result of one sampled frame.
type located struct {
	lm  *face.Landmarks
	err error
}

// Evaluate computes the liveness verdict for an ordered burst. challenge is the
// index of the frame where the user was prompted to blink, or nil.
//
// Fewer frames than the configured minimum return ErrInsufficientFrames.
// Model failures fail open: the verdict is a degraded BORDERLINE with neutral
// scores. The only other error is context cancellation.
func (e *Ensemble) Evaluate(ctx context.Context, frames []face.Frame, challenge *int) (face.LivenessVerdict, error) {
	if len(frames) < e.cfg.MinBurstFrames {
		return face.LivenessVerdict{}, fmt.Errorf("burst has %d frames, need %d: %w",
			len(frames), e.cfg.MinBurstFrames, face.ErrInsufficientFrames)
	}

	gazeIdx := gazeSampleIndices(len(frames), e.cfg.MinGazeSamples)
	textureIdx := textureSampleIndices(len(frames))
	blinkIdx := blinkSampleIndices(len(frames), challenge)

	results, err := e.locateAll(ctx, frames, unionIndices(gazeIdx, textureIdx, blinkIdx))
	if err != nil {
		return face.LivenessVerdict{}, err
	}

	if unavailable(results) {
		e.logger.Warn("liveness models unavailable, failing open", zap.Int("frames", len(frames)))
		v := face.LivenessVerdict{
			Decision:     face.Borderline,
			MotionScore:  constants.NeutralScore,
			TextureScore: constants.NeutralScore,
			Message:      msgUnavailable,
			Degraded:     true,
		}
		e.metrics.ObserveLiveness(string(v.Decision))
		return v, nil
	}

	gaze := e.gazeSignal(pick(results, gazeIdx))
	texture := e.textureSignal(frames, pick(results, textureIdx))

	v := combine(gaze, texture)
	if challenge != nil {
		v.BlinkDetected = e.blinkSignal(frames, pick(results, blinkIdx))
		if e.cfg.RequireBlink && !v.BlinkDetected && v.Decision == face.Live {
			v.Decision = face.Borderline
			v.Message = msgBlink
			v.Hint = msgBlink
		}
	}

	e.logger.Info("liveness verdict",
		zap.String("decision", string(v.Decision)),
		zap.Float64("motion_score", v.MotionScore),
		zap.Float64("texture_score", v.TextureScore),
		zap.Bool("degraded", v.Degraded),
		zap.Bool("blink", v.BlinkDetected),
	)
	e.metrics.ObserveLiveness(string(v.Decision))
	return v, nil
}

// combine applies the ensemble rules: any failing signal is FAKE, missing head
// motion or too few usable frames is a retry, otherwise LIVE. Too little data
// only degrades without a hint when the landmark model failed.
func combine(g gazeResult, t textureResult) face.LivenessVerdict {
	v := face.LivenessVerdict{MotionScore: g.score, TextureScore: t.score}

	switch {
	case g.status == gazeRigid:
		v.Decision, v.Message = face.Fake, msgPaintedEyes
	case t.status == textureScreen:
		v.Decision, v.Message = face.Fake, msgScreen
	case g.status == gazeNoMotion:
		v.Decision, v.Message, v.Hint = face.Borderline, msgTurnHead, msgTurnHead
	case g.status == gazeInsufficient && g.modelErrors > 0:
		v.Decision, v.Message, v.Degraded = face.Borderline, msgInsufficient, true
	case g.status == gazeInsufficient:
		v.Decision, v.Message, v.Hint = face.Borderline, msgInsufficient, msgKeepInView
	case t.status == textureNoFace:
		v.Decision, v.Message = face.Live, msgNoTextureFace
	default:
		v.Decision, v.Message = face.Live, msgPass
	}
	return v
}

// locateAll runs the landmark model on the sampled frames in parallel.
// Per-frame failures are recorded, not returned.
func (e *Ensemble) locateAll(ctx context.Context, frames []face.Frame, indices []int) (map[int]located, error) {
	out := make([]located, len(indices))

	var g errgroup.Group
	g.SetLimit(max(1, e.workers))
	for i, idx := range indices {
		g.Go(func() error {
			lm, err := e.locator.Locate(ctx, frames[idx])
			out[i] = located{lm: lm, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("liveness: %w", err)
	}

	results := make(map[int]located, len(indices))
	for i, idx := range indices {
		if out[i].err != nil {
			e.logger.Debug("landmark extraction failed", zap.Int("frame", idx), zap.Error(out[i].err))
		}
		results[idx] = out[i]
	}
	return results, nil
}

// unavailable reports whether every sampled frame failed on model availability.
func unavailable(results map[int]located) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.err == nil || !errors.Is(r.err, face.ErrModelUnavailable) {
			return false
		}
	}
	return true
}

// pick returns the located results for indices in ascending order.
func pick(results map[int]located, indices []int) []sample {
	out := make([]sample, 0, len(indices))
	for _, idx := range indices {
		r, ok := results[idx]
		if !ok {
			continue
		}
		out = append(out, sample{index: idx, lm: r.lm, err: r.err})
	}
	return out
}

type sample struct {
	index int
	lm    *face.Landmarks
	err   error
}

// gazeSampleIndices samples every second frame, or every frame when that
// would yield fewer than minSamples.
func gazeSampleIndices(n, minSamples int) []int {
	step := 2
	if minSamples > 0 && n/minSamples < 2 {
		step = 1
	}
	var idx []int
	for i := 0; i < n; i += step {
		idx = append(idx, i)
	}
	return idx
}

func textureSampleIndices(n int) []int {
	step := max(1, n/5)
	var idx []int
	for i := 0; i < n; i += step {
		idx = append(idx, i)
	}
	return idx
}

// blinkSampleIndices returns every frame after the challenge frame.
func blinkSampleIndices(n int, challenge *int) []int {
	if challenge == nil || *challenge < 0 || *challenge >= n {
		return nil
	}
	var idx []int
	for i := *challenge + 1; i < n; i++ {
		idx = append(idx, i)
	}
	return idx
}

func unionIndices(sets ...[]int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, set := range sets {
		for _, i := range set {
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	sort.Ints(out)
	return out
}
