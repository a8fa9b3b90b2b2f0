package facematch

import (
	"math"
	"testing"

	"github.com/harhit22/new-auto-attendace/internal/face"
)

func box(x1, y1, x2, y2 float64) face.BBox {
	return face.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// meshWith returns a landmark set of n points at the image centre with the
// given points overridden.
func meshWith(n int, points map[int]face.Point) *face.Landmarks {
	kp := make([]face.Point, n)
	for i := range kp {
		kp[i] = face.Point{X: 0.5, Y: 0.5}
	}
	for i, p := range points {
		kp[i] = p
	}
	return &face.Landmarks{Keypoints: kp}
}

func TestLargestFace(t *testing.T) {
	faces := []face.Landmarks{
		{BBox: box(0, 0, 10, 10), Confidence: 0.9},
		{BBox: box(0, 0, 30, 30), Confidence: 0.6},
		{BBox: box(0, 0, 30, 30), Confidence: 0.99},
	}

	got, ok := LargestFace(faces)
	if !ok {
		t.Fatal("expected a face")
	}
	if got.Confidence != 0.6 {
		t.Errorf("expected first of the largest faces, got confidence %v", got.Confidence)
	}

	if _, ok := LargestFace(nil); ok {
		t.Error("expected no face for empty input")
	}
}

func TestWidthRatio(t *testing.T) {
	if got := WidthRatio(box(100, 0, 400, 10), 1000); math.Abs(got-0.3) > 1e-9 {
		t.Errorf("WidthRatio = %v, want 0.3", got)
	}
	if got := WidthRatio(box(0, 0, 10, 10), 0); got != 0 {
		t.Errorf("WidthRatio with zero frame width = %v, want 0", got)
	}
}

func TestHeadYawRatio(t *testing.T) {
	tests := []struct {
		name     string
		left     float64
		right    float64
		nose     float64
		expected float64
	}{
		{"centred", 0.3, 0.7, 0.5, 0.5},
		{"turned", 0.3, 0.7, 0.4, 0.25},
		{"zero width", 0.5, 0.5, 0.9, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lm := meshWith(468, map[int]face.Point{
				face.MeshLeftCheek:  {X: tt.left, Y: 0.5},
				face.MeshRightCheek: {X: tt.right, Y: 0.5},
				face.MeshNoseTip:    {X: tt.nose, Y: 0.5},
			})
			got, ok := HeadYawRatio(lm)
			if !ok {
				t.Fatal("expected yaw")
			}
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("HeadYawRatio = %v, want %v", got, tt.expected)
			}
		})
	}

	if _, ok := HeadYawRatio(meshWith(5, nil)); ok {
		t.Error("expected missing points to report !ok")
	}
}

func TestYawDegrees(t *testing.T) {
	if got := YawDegrees(0.5); got != 0 {
		t.Errorf("YawDegrees(0.5) = %v", got)
	}
	if got := YawDegrees(1); got != 90 {
		t.Errorf("YawDegrees(1) = %v", got)
	}
}

func TestGazeRatio(t *testing.T) {
	lm := meshWith(face.MeshPointsWithIris, map[int]face.Point{
		face.MeshLeftEyeOuter:  {X: 0.30, Y: 0.4},
		face.MeshLeftEyeInner:  {X: 0.40, Y: 0.4},
		face.MeshLeftIris:      {X: 0.36, Y: 0.4},
		face.MeshRightEyeInner: {X: 0.60, Y: 0.4},
		face.MeshRightEyeOuter: {X: 0.70, Y: 0.4},
		face.MeshRightIris:     {X: 0.66, Y: 0.4},
	})

	got, ok := GazeRatio(lm)
	if !ok {
		t.Fatal("expected gaze with iris landmarks")
	}
	if math.Abs(got-0.6) > 1e-9 {
		t.Errorf("GazeRatio = %v, want 0.6", got)
	}

	if _, ok := GazeRatio(meshWith(468, nil)); ok {
		t.Error("expected no gaze without iris landmarks")
	}
}

func TestEyeAspectRatio(t *testing.T) {
	open := meshWith(468, map[int]face.Point{
		33: {X: 0.30, Y: 0.40}, 160: {X: 0.33, Y: 0.37}, 158: {X: 0.37, Y: 0.37},
		133: {X: 0.40, Y: 0.40}, 153: {X: 0.37, Y: 0.43}, 144: {X: 0.33, Y: 0.43},
	})
	closed := meshWith(468, map[int]face.Point{
		33: {X: 0.30, Y: 0.40}, 160: {X: 0.33, Y: 0.399}, 158: {X: 0.37, Y: 0.399},
		133: {X: 0.40, Y: 0.40}, 153: {X: 0.37, Y: 0.401}, 144: {X: 0.33, Y: 0.401},
	})

	earOpen, ok := EyeAspectRatio(open, face.LeftEyeContour, 100, 100)
	if !ok {
		t.Fatal("expected EAR")
	}
	earClosed, _ := EyeAspectRatio(closed, face.LeftEyeContour, 100, 100)

	if earOpen < 0.5 {
		t.Errorf("open eye EAR = %v, want >= 0.5", earOpen)
	}
	if earClosed > 0.2 {
		t.Errorf("closed eye EAR = %v, want < 0.2", earClosed)
	}
}

func TestPitchDegrees(t *testing.T) {
	lm := meshWith(468, map[int]face.Point{
		face.MeshLeftEyeOuter:  {X: 0.4, Y: 0.40},
		face.MeshRightEyeOuter: {X: 0.6, Y: 0.40},
		face.MeshNoseTip:       {X: 0.5, Y: 0.442},
		face.MeshChin:          {X: 0.5, Y: 0.50},
	})
	got, ok := PitchDegrees(lm)
	if !ok {
		t.Fatal("expected pitch")
	}
	if math.Abs(got) > 0.01 {
		t.Errorf("level face pitch = %v, want ~0", got)
	}
}
