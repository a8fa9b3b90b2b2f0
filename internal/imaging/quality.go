package imaging

import (
	"image"
	"math"
)

// occlusionScore is a fixed estimate until an occlusion model is wired in.
const occlusionScore = 0.9

// Quality scores an image for enrollment, each in [0,1].
type Quality struct {
	Blur      float64 `json:"blur_score"`
	Lighting  float64 `json:"lighting_score"`
	Occlusion float64 `json:"occlusion_score"`
	Overall   float64 `json:"overall_score"`
}

// AssessQuality scores blur (Laplacian variance / 500, capped at 1) and
// lighting (distance of mean brightness from mid-grey).
func AssessQuality(img image.Image) Quality {
	gray := ToGray(img)

	blur := math.Min(1, LaplacianVariance(gray)/500)
	lighting := math.Max(0, 1-math.Abs(meanBrightness(img)-128)/128)

	return Quality{
		Blur:      blur,
		Lighting:  lighting,
		Occlusion: occlusionScore,
		Overall:   (blur + lighting + occlusionScore) / 3,
	}
}

// meanBrightness averages all colour channels of all pixels on a 0-255 scale.
func meanBrightness(img image.Image) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			sum += float64(r>>8+g>>8+bl>>8) / 3
		}
	}
	return sum / float64(b.Dx()*b.Dy())
}
