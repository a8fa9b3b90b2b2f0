package facematch

import (
	"github.com/harhit22/new-auto-attendace/internal/face"
)

// LargestFace returns the face with the largest bounding-box area.
// On a tie the earlier face wins.
func LargestFace(faces []face.Landmarks) (face.Landmarks, bool) {
	if len(faces) == 0 {
		return face.Landmarks{}, false
	}
	best := 0
	for i := 1; i < len(faces); i++ {
		if faces[i].BBox.Area() > faces[best].BBox.Area() {
			best = i
		}
	}
	return faces[best], true
}

// WidthRatio returns the share of the frame width covered by the box.
func WidthRatio(b face.BBox, frameWidth int) float64 {
	if frameWidth <= 0 {
		return 0
	}
	return b.Width() / float64(frameWidth)
}

// ToPixels converts a normalized point to pixel coordinates.
func ToPixels(p face.Point, width, height int) (float64, float64) {
	return p.X * float64(width), p.Y * float64(height)
}
