package liveness

import (
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/facematch"
	"go.uber.org/zap"
)

// blinkSignal reports whether the eyes closed on any frame after the challenge.
// A pre-recorded replay cannot match the randomly timed prompt.
func (e *Ensemble) blinkSignal(frames []face.Frame, samples []sample) bool {
	for _, s := range samples {
		if s.err != nil || s.lm == nil {
			continue
		}
		w, h := frames[s.index].Width(), frames[s.index].Height()
		left, ok1 := facematch.EyeAspectRatio(s.lm, face.LeftEyeContour, w, h)
		right, ok2 := facematch.EyeAspectRatio(s.lm, face.RightEyeContour, w, h)
		if !ok1 || !ok2 {
			continue
		}
		if (left+right)/2 < e.cfg.BlinkEARThreshold {
			e.logger.Info("blink detected", zap.Int("frame", s.index))
			return true
		}
	}
	return false
}
