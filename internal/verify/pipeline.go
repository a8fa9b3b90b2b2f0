// Package verify runs the full verification pipeline: liveness, spoof
// objects, face location, pose, descriptor and identity match. Every call
// ends in a structured face.VerificationResult naming the deciding gate.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/logging"
	"github.com/harhit22/new-auto-attendace/internal/matcher"
	"github.com/harhit22/new-auto-attendace/internal/metrics"
	"github.com/harhit22/new-auto-attendace/internal/pose"
	"github.com/harhit22/new-auto-attendace/internal/spoof"
	"github.com/harhit22/new-auto-attendace/internal/store"
	"go.uber.org/zap"
)

// User-facing rejection messages.
const (
	msgNoInput            = "No image provided."
	msgInsufficientFrames = "Not enough frames for the liveness check. Please record again."
	msgCancelled          = "Verification was cancelled."
	msgNoFace             = "No face detected. Please face the camera."
	msgFaceUnavailable    = "Face detection is temporarily unavailable. Please try again."
	msgMatchUnavailable   = "Face recognition is temporarily unavailable. Please try again."
	msgNotEnrolled        = "No face data enrolled. Please complete face enrolment first."
	msgNoMatch            = "Face verification failed."
	msgVerified           = "Face verified."
)

// LivenessChecker evaluates a burst of frames.
type LivenessChecker interface {
	Evaluate(ctx context.Context, frames []face.Frame, challenge *int) (face.LivenessVerdict, error)
	MinFrames() int
}

// SpoofChecker looks for replay devices in a frame.
type SpoofChecker interface {
	Check(ctx context.Context, frame face.Frame) (spoof.Outcome, error)
}

// Locator finds the face mesh in a frame.
type Locator interface {
	Locate(ctx context.Context, frame face.Frame) (*face.Landmarks, error)
}

// PoseChecker applies proximity and frontal pose limits.
type PoseChecker interface {
	Check(lm face.Landmarks, width, height int) pose.Outcome
}

// Describer computes a face descriptor.
type Describer interface {
	Describe(ctx context.Context, frame face.Frame, family face.Family) (*face.Descriptor, error)
}

// IdentityMatcher compares a descriptor with enrolled identities.
type IdentityMatcher interface {
	Verify(query face.Descriptor, id face.StoredIdentity) (face.MatchResult, error)
	IdentifyIndexed(query face.Descriptor, identities []face.StoredIdentity, idx *matcher.Index) (face.MatchResult, error)
}

// GallerySource provides the current gallery snapshot for 1:N matching.
type GallerySource interface {
	Snapshot() *store.Snapshot
}

// Components are the pipeline stages. All must be set except Gallery, which
// is only needed for identification.
type Components struct {
	Liveness  LivenessChecker
	Spoof     SpoofChecker
	Locator   Locator
	Pose      PoseChecker
	Describer Describer
	Matcher   IdentityMatcher
	Gallery   GallerySource
}

// Request is one verification attempt.
type Request struct {
	// Frames is the ordered burst; a single frame runs single-frame mode.
	Frames []face.Frame
	// Still is an optional separately captured image used for matching.
	Still *face.Frame
	// Claimed is the identity to verify against; nil identifies against the gallery.
	Claimed *face.StoredIdentity
	// ChallengeIndex is the frame where the user was prompted to blink.
	ChallengeIndex *int
	// Family selects the descriptor model for identification; ignored with Claimed.
	Family face.Family
	// Org scopes identification to one organisation; empty searches everything.
	Org string
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	c       Components
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a pipeline. logger and m may be nil.
func New(c Components, logger *zap.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{c: c, logger: logging.Or(logger), metrics: m}
}

// Verify runs the pipeline and never returns a raw error.
func (p *Pipeline) Verify(ctx context.Context, req Request) face.VerificationResult {
	res := p.run(ctx, req)
	p.metrics.ObserveVerification(string(res.Gate), res.Accepted)

	fields := []zap.Field{
		zap.Bool("accepted", res.Accepted),
		zap.String("gate", string(res.Gate)),
		zap.String("identity_id", res.IdentityID),
		zap.Int("frames", len(req.Frames)),
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	p.logger.Info("verification finished", fields...)
	return res
}

func (p *Pipeline) run(ctx context.Context, req Request) face.VerificationResult {
	if len(req.Frames) == 0 && req.Still == nil {
		return face.Reject(face.GateInput, msgNoInput, nil)
	}

	family := req.Family
	if req.Claimed != nil {
		family = req.Claimed.Family
	}
	if family.Dim() == 0 {
		family = face.Light
	}

	var verdict *face.LivenessVerdict
	burst := len(req.Frames) >= p.c.Liveness.MinFrames()
	switch {
	case burst:
		v, err := p.c.Liveness.Evaluate(ctx, req.Frames, req.ChallengeIndex)
		if err != nil {
			return aborted(face.GateLiveness, err)
		}
		verdict = &v
		if out, stop := livenessOutcome(v); stop {
			return out
		}
	case req.Still == nil && len(req.Frames) > 1:
		return face.Reject(face.GateInput, msgInsufficientFrames,
			fmt.Errorf("%d frames, need %d: %w", len(req.Frames), p.c.Liveness.MinFrames(), face.ErrInsufficientFrames))
	default:
		p.logger.Debug("single-frame mode", zap.Int("frames", len(req.Frames)), zap.Bool("still", req.Still != nil))
	}

	res := p.match(ctx, req, family, representative(req))
	res.Liveness = verdict
	return res
}

// livenessOutcome maps a verdict to a rejection. A degraded BORDERLINE, which
// only happens when the landmark model is unavailable, passes
// through and leaves the spoof filter as the backup.
func livenessOutcome(v face.LivenessVerdict) (face.VerificationResult, bool) {
	switch {
	case v.Decision == face.Fake:
		res := face.Reject(face.GateLiveness, v.Message, nil)
		res.LivenessFailed = true
		res.Liveness = &v
		return res, true
	case v.Retry():
		res := face.Reject(face.GateLiveness, v.Hint, nil)
		res.LivenessFailed = true
		res.Liveness = &v
		return res, true
	default:
		return face.VerificationResult{}, false
	}
}

// representative picks the frame used after liveness: the still when given,
// otherwise the middle of the burst.
func representative(req Request) face.Frame {
	if req.Still != nil {
		return *req.Still
	}
	return req.Frames[len(req.Frames)/2]
}

func (p *Pipeline) match(ctx context.Context, req Request, family face.Family, frame face.Frame) face.VerificationResult {
	sp, err := p.c.Spoof.Check(ctx, frame)
	if err != nil {
		return aborted(face.GateSpoof, err)
	}
	if sp.Rejected {
		res := face.Reject(face.GateSpoof, sp.Reason, nil)
		res.LivenessFailed = true
		return res
	}

	lm, err := p.c.Locator.Locate(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return aborted(face.GateFace, err)
		}
		return face.Reject(face.GateFace, msgFaceUnavailable, err)
	}
	if lm == nil {
		return face.Reject(face.GateFace, msgNoFace, face.ErrNoFaceDetected)
	}

	po := p.c.Pose.Check(*lm, frame.Width(), frame.Height())
	if po.Rejected {
		res := face.Reject(face.GatePose, po.Reason, nil)
		res.PoseError = true
		res.Yaw, res.Pitch = po.Yaw, po.Pitch
		return res
	}

	desc, err := p.c.Describer.Describe(ctx, frame, family)
	if err != nil {
		if ctx.Err() != nil {
			return aborted(face.GateIdentity, err)
		}
		return face.Reject(face.GateIdentity, msgMatchUnavailable, err)
	}
	if desc == nil {
		return face.Reject(face.GateFace, msgNoFace, face.ErrNoFaceDetected)
	}

	mr, err := p.compare(*desc, req, family)
	if err != nil {
		if errors.Is(err, face.ErrNoEnrolledDescriptors) {
			return face.Reject(face.GateIdentity, msgNotEnrolled, err)
		}
		return face.Reject(face.GateIdentity, msgMatchUnavailable, err)
	}

	res := face.VerificationResult{
		Accepted:   mr.Accepted,
		Reason:     msgVerified,
		Distance:   &mr.Distance,
		Confidence: &mr.Confidence,
		Method:     mr.Method,
		IdentityID: mr.MatchedIdentityID,
		Yaw:        po.Yaw,
		Pitch:      po.Pitch,
	}
	if !mr.Accepted {
		res.Gate = face.GateIdentity
		res.Reason = msgNoMatch
	}
	return res
}

func (p *Pipeline) compare(desc face.Descriptor, req Request, family face.Family) (face.MatchResult, error) {
	if req.Claimed != nil {
		return p.c.Matcher.Verify(desc, *req.Claimed)
	}
	if p.c.Gallery == nil {
		return face.MatchResult{}, fmt.Errorf("identification without a gallery: %w", face.ErrNoEnrolledDescriptors)
	}
	snap := p.c.Gallery.Snapshot()
	return p.c.Matcher.IdentifyIndexed(desc, snap.Identities(family, req.Org), snap.Index(family))
}

// aborted reports a cancelled request at the gate that observed it.
func aborted(gate face.Gate, err error) face.VerificationResult {
	return face.Reject(gate, msgCancelled, err)
}
