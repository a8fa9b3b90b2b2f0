// Package pose rejects faces that are too close to the camera or turned away.
package pose

import (
	"math"

	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/facematch"
)

const (
	msgTooClose     = "Too close! Please move back so we can see your shoulders."
	msgLookStraight = "Please look straight at the camera."
)

// Outcome is the pose gate result. Yaw and Pitch are in degrees and only set
// when the mesh carried the needed points.
type Outcome struct {
	Rejected   bool
	Reason     string
	WidthRatio float64
	Yaw        *float64
	Pitch      *float64
}

// Gate applies the proximity and frontal-pose limits.
type Gate struct {
	cfg config.PoseConfig
}

// New creates a pose gate.
func New(cfg config.PoseConfig) *Gate {
	return &Gate{cfg: cfg}
}

// Check evaluates one located face in a frame of the given pixel size.
func (g *Gate) Check(lm face.Landmarks, width, height int) Outcome {
	out := Outcome{WidthRatio: facematch.WidthRatio(lm.BBox, width)}
	if out.WidthRatio > g.cfg.MaxFaceWidthRatio {
		out.Rejected = true
		out.Reason = msgTooClose
		return out
	}

	if ratio, ok := facematch.HeadYawRatio(&lm); ok {
		yaw := round1(facematch.YawDegrees(ratio))
		out.Yaw = &yaw
	}
	if pitch, ok := facematch.PitchDegrees(&lm); ok {
		p := round1(pitch)
		out.Pitch = &p
	}

	if out.Yaw != nil && math.Abs(*out.Yaw) > g.cfg.MaxYawDegrees {
		out.Rejected = true
		out.Reason = msgLookStraight
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
