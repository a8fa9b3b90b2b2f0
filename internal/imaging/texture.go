package imaging

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

const entropyEpsilon = 1e-7

// ToGray converts img to 8-bit luma (ITU-R 601 weights).
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// GrayPatch converts the square of half-size half centred on pixel (cx, cy)
// to grayscale, clipped to the image. Coordinates are relative to the image
// origin. The result may be smaller than requested near the edges.
func GrayPatch(img image.Image, cx, cy, half int) *image.Gray {
	b := img.Bounds()
	r := image.Rect(b.Min.X+cx-half, b.Min.Y+cy-half, b.Min.X+cx+half, b.Min.Y+cy+half).Intersect(b)
	if r.Empty() {
		return image.NewGray(image.Rectangle{})
	}
	g := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(g, g.Bounds(), img, r.Min, draw.Src)
	return g
}

// LBPHistogram computes the 256-bin histogram of 8-neighbour local binary
// pattern codes over the interior of g. A neighbour sets its bit when it is
// greater than or equal to the centre; bits run TL, T, TR, R, BR, B, BL, L
// from least significant.
func LBPHistogram(g *image.Gray) [256]int {
	var hist [256]int
	b := g.Bounds()
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			c := g.GrayAt(x, y).Y
			var code uint8
			neighbours := [8]uint8{
				g.GrayAt(x-1, y-1).Y,
				g.GrayAt(x, y-1).Y,
				g.GrayAt(x+1, y-1).Y,
				g.GrayAt(x+1, y).Y,
				g.GrayAt(x+1, y+1).Y,
				g.GrayAt(x, y+1).Y,
				g.GrayAt(x-1, y+1).Y,
				g.GrayAt(x-1, y).Y,
			}
			for i, n := range neighbours {
				if n >= c {
					code |= 1 << i
				}
			}
			hist[code]++
		}
	}
	return hist
}

// LBPEntropy returns the Shannon entropy in bits of the patch's LBP histogram.
// Smooth emissive surfaces produce few distinct codes and low entropy. The
// epsilon guard can push a single-code histogram just below zero, so the
// result is clamped at 0.
func LBPEntropy(g *image.Gray) float64 {
	hist := LBPHistogram(g)

	var total float64
	for _, n := range hist {
		total += float64(n)
	}

	var entropy float64
	for _, n := range hist {
		p := float64(n) / (total + entropyEpsilon)
		entropy -= p * math.Log2(p+entropyEpsilon)
	}
	return max(0, entropy)
}

// LaplacianVariance returns the variance of the 4-neighbour Laplacian over g,
// with reflected borders. Sharp patches score high, blurry ones low.
func LaplacianVariance(g *image.Gray) float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(g.GrayAt(b.Min.X+reflect101(x, w), b.Min.Y+reflect101(y, h)).Y)
	}

	n := float64(w * h)
	var sum, sumSq float64
	for y := range h {
		for x := range w {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	return sumSq/n - mean*mean
}

// reflect101 mirrors an out-of-range index without repeating the edge pixel.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
