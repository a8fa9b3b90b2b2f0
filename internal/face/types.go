// Package face holds the request-scoped and long-lived types shared by the
// verification pipeline: frames, landmarks, descriptors and verdicts.
package face

import (
	"image"
)

// Frame is one decoded camera frame with its position inside a burst.
type Frame struct {
	Index int
	Image image.Image
	Data  []byte // original encoded bytes, sent to the model server when present
}

// Width returns the frame width in pixels.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Point is a keypoint in normalized image coordinates (0-1 of width/height).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BBox is a face or object bounding box in pixels.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b BBox) Width() float64  { return b.X2 - b.X1 }
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area, 0 for degenerate boxes.
func (b BBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Face mesh indices used by the liveness and pose checks.
const (
	MeshNoseTip     = 1
	MeshLeftCheek   = 234
	MeshRightCheek  = 454
	MeshCheekCenter = 205

	MeshLeftEyeOuter  = 33
	MeshLeftEyeInner  = 133
	MeshRightEyeInner = 362
	MeshRightEyeOuter = 263
	MeshLeftIris      = 468
	MeshRightIris     = 473

	MeshUpperLip = 13
	MeshChin     = 152

	// MeshPointsWithIris is the mesh size when the model refines iris centers.
	MeshPointsWithIris = 478
)

// Eye contours for the eye aspect ratio, ordered p1..p6.
var (
	LeftEyeContour  = [6]int{33, 160, 158, 133, 153, 144}
	RightEyeContour = [6]int{362, 385, 387, 263, 373, 380}
)

// Landmarks is a located face: bounding box, dense keypoints and detector confidence.
type Landmarks struct {
	BBox       BBox    `json:"bbox"`
	Keypoints  []Point `json:"keypoints"`
	Confidence float64 `json:"confidence"`
}

// HasIris reports whether the mesh carries the refined iris centers.
func (l *Landmarks) HasIris() bool {
	return len(l.Keypoints) >= MeshPointsWithIris
}

// Point returns keypoint i and whether it exists.
func (l *Landmarks) Point(i int) (Point, bool) {
	if i < 0 || i >= len(l.Keypoints) {
		return Point{}, false
	}
	return l.Keypoints[i], true
}
