package facematch

import (
	"math"

	"github.com/harhit22/new-auto-attendace/internal/face"
)

// pitchNeutralRatio is where the nose tip sits between the eye line and the
// chin on a level frontal face.
const pitchNeutralRatio = 0.42

// HeadYawRatio returns the nose tip position between the two cheek landmarks,
// 0.5 when centred. A zero cheek width yields 0.5. ok is false when the mesh
// lacks the required points.
func HeadYawRatio(lm *face.Landmarks) (ratio float64, ok bool) {
	left, ok1 := lm.Point(face.MeshLeftCheek)
	right, ok2 := lm.Point(face.MeshRightCheek)
	nose, ok3 := lm.Point(face.MeshNoseTip)
	if !ok1 || !ok2 || !ok3 {
		return 0.5, false
	}

	width := right.X - left.X
	if width == 0 {
		return 0.5, true
	}
	return (nose.X - left.X) / width, true
}

// YawDegrees maps a yaw ratio to an approximate rotation, ±90 at the cheek edges.
func YawDegrees(ratio float64) float64 {
	return (ratio - 0.5) * 180
}

// PitchDegrees estimates head pitch from the nose tip between the eye line and
// the chin. Positive values mean the head is tilted down.
func PitchDegrees(lm *face.Landmarks) (float64, bool) {
	le, ok1 := lm.Point(face.MeshLeftEyeOuter)
	re, ok2 := lm.Point(face.MeshRightEyeOuter)
	nose, ok3 := lm.Point(face.MeshNoseTip)
	chin, ok4 := lm.Point(face.MeshChin)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, false
	}

	eyeY := (le.Y + re.Y) / 2
	span := chin.Y - eyeY
	if span <= 0 {
		return 0, false
	}
	return ((nose.Y-eyeY)/span - pitchNeutralRatio) * 180, true
}

// GazeRatio projects each iris centre onto its eye-corner vector and averages
// both eyes: 0 at the first corner, 1 at the second. ok is false without iris
// landmarks.
func GazeRatio(lm *face.Landmarks) (float64, bool) {
	if !lm.HasIris() {
		return 0.5, false
	}
	l := projectOnSegment(lm.Keypoints[face.MeshLeftEyeOuter], lm.Keypoints[face.MeshLeftEyeInner], lm.Keypoints[face.MeshLeftIris])
	r := projectOnSegment(lm.Keypoints[face.MeshRightEyeInner], lm.Keypoints[face.MeshRightEyeOuter], lm.Keypoints[face.MeshRightIris])
	return (l + r) / 2, true
}

func projectOnSegment(a, b, p face.Point) float64 {
	vx, vy := b.X-a.X, b.Y-a.Y
	den := vx*vx + vy*vy
	if den == 0 {
		return 0.5
	}
	return ((p.X-a.X)*vx + (p.Y-a.Y)*vy) / den
}

// EyeAspectRatio computes (|p2-p6| + |p3-p5|) / (2|p1-p4|) in pixel space for
// the given eye contour. Values below ~0.2 mean the eye is closed.
func EyeAspectRatio(lm *face.Landmarks, contour [6]int, width, height int) (float64, bool) {
	var pts [6][2]float64
	for i, idx := range contour {
		p, ok := lm.Point(idx)
		if !ok {
			return 0, false
		}
		pts[i][0], pts[i][1] = ToPixels(p, width, height)
	}

	dist := func(a, b [2]float64) float64 {
		return math.Hypot(a[0]-b[0], a[1]-b[1])
	}
	v1 := dist(pts[1], pts[5])
	v2 := dist(pts[2], pts[4])
	h := dist(pts[0], pts[3])
	return (v1 + v2) / (2*h + 1e-6), true
}
