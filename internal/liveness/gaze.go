package liveness

import (
	"errors"

	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/facematch"
	"go.uber.org/zap"
)

type gazeStatus int

const (
	gazePass gazeStatus = iota
	gazeNoIris
	gazeInsufficient
	gazeNoMotion
	gazeRigid
)

type gazeResult struct {
	status  gazeStatus
	score   float64
	yawStd  float64
	gazeStd float64
	samples int
	// modelErrors counts sampled frames lost to an unavailable landmark model.
	modelErrors int
}

// gazeSignal checks that the eyes move relative to the head. A real subject
// turning their head keeps fixating the camera, so the iris shifts inside the
// eye; a printed or displayed face keeps its eyes rigid.
func (e *Ensemble) gazeSignal(samples []sample) gazeResult {
	var yaws, gazes []float64
	modelErrors := 0
	for _, s := range samples {
		if errors.Is(s.err, face.ErrModelUnavailable) {
			modelErrors++
		}
		if s.err != nil || s.lm == nil {
			continue
		}
		if !s.lm.HasIris() {
			e.logger.Warn("no iris landmarks, skipping gaze check", zap.Int("frame", s.index))
			return gazeResult{status: gazeNoIris, score: constants.NoIrisScore}
		}
		yaw, ok := facematch.HeadYawRatio(s.lm)
		if !ok {
			continue
		}
		gaze, _ := facematch.GazeRatio(s.lm)
		yaws = append(yaws, yaw)
		gazes = append(gazes, gaze)
	}

	res := gazeResult{samples: len(yaws), modelErrors: modelErrors}
	if len(yaws) < e.cfg.MinGazeSamples {
		res.status, res.score = gazeInsufficient, constants.NeutralScore
		return res
	}

	_, res.yawStd = meanStd(yaws)
	_, res.gazeStd = meanStd(gazes)
	e.logger.Info("gaze analysis",
		zap.Float64("yaw_std", res.yawStd),
		zap.Float64("gaze_std", res.gazeStd),
		zap.Int("samples", res.samples),
	)

	switch {
	case res.yawStd < e.cfg.MinYawStdDev:
		res.status, res.score = gazeNoMotion, constants.RetryMotionScore
	case res.gazeStd < e.cfg.GazeRigidityFloor:
		e.logger.Warn("rigid eyes detected",
			zap.Float64("yaw_std", res.yawStd),
			zap.Float64("gaze_std", res.gazeStd),
		)
		res.status, res.score = gazeRigid, constants.FailScore
	default:
		res.status, res.score = gazePass, constants.PassScore
	}
	return res
}
