package liveness

import (
	"image"
	"math"

	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/imaging"
	"go.uber.org/zap"
)

// minPatchSide is the smallest usable cheek patch; smaller faces are too far away.
const minPatchSide = 8

type textureStatus int

const (
	texturePass textureStatus = iota
	textureNoFace
	textureScreen
)

type textureResult struct {
	status    textureStatus
	score     float64
	entropy   float64
	sharpness float64
	threshold float64
	patches   int
}

// textureSignal measures LBP entropy of a cheek patch across sampled frames.
// The entropy threshold rises when the patch is blurry, since sensor noise on
// low quality cameras inflates entropy of a replayed screen.
func (e *Ensemble) textureSignal(frames []face.Frame, samples []sample) textureResult {
	var entropies []float64
	var last *image.Gray

	for _, s := range samples {
		if s.err != nil || s.lm == nil {
			continue
		}
		patch, ok := e.cheekPatch(frames[s.index], s.lm)
		if !ok {
			continue
		}
		entropies = append(entropies, imaging.LBPEntropy(patch))
		last = patch
	}

	if len(entropies) == 0 {
		return textureResult{status: textureNoFace, score: constants.NeutralScore}
	}

	res := textureResult{patches: len(entropies)}
	res.entropy, _ = meanStd(entropies)
	res.sharpness = imaging.LaplacianVariance(last)

	res.threshold = e.cfg.EntropyThresholdSharp
	if res.sharpness < e.cfg.SharpnessCutoff {
		e.logger.Warn("low quality camera, raising entropy threshold", zap.Float64("sharpness", res.sharpness))
		res.threshold = e.cfg.EntropyThresholdBlurry
	}

	e.logger.Info("texture analysis",
		zap.Float64("entropy", res.entropy),
		zap.Float64("sharpness", res.sharpness),
		zap.Int("patches", res.patches),
	)

	if res.entropy < res.threshold {
		res.status, res.score = textureScreen, constants.FailScore
		return res
	}
	res.status, res.score = texturePass, constants.PassScore
	return res
}

// cheekPatch crops the grayscale patch centred on the cheek mesh point, sized
// to a share of the cheek-to-cheek face width.
func (e *Ensemble) cheekPatch(frame face.Frame, lm *face.Landmarks) (*image.Gray, bool) {
	if frame.Image == nil {
		return nil, false
	}
	left, ok1 := lm.Point(face.MeshLeftCheek)
	right, ok2 := lm.Point(face.MeshRightCheek)
	centre, ok3 := lm.Point(face.MeshCheekCenter)
	if !ok1 || !ok2 || !ok3 {
		return nil, false
	}

	w, h := frame.Width(), frame.Height()
	faceWidth := int(math.Abs(float64(int(right.X*float64(w)) - int(left.X*float64(w)))))
	half := max(4, int(float64(faceWidth)*e.cfg.PatchRatio))
	cx, cy := int(centre.X*float64(w)), int(centre.Y*float64(h))

	patch := imaging.GrayPatch(frame.Image, cx, cy, half)
	b := patch.Bounds()
	if b.Dx() < minPatchSide || b.Dy() < minPatchSide {
		return nil, false
	}
	return patch, true
}
