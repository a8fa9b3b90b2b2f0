package face

// LivenessDecision is the outcome of the liveness ensemble.
type LivenessDecision string

const (
	Live       LivenessDecision = "LIVE"
	Borderline LivenessDecision = "BORDERLINE"
	Fake       LivenessDecision = "FAKE"
)

// LivenessVerdict is the combined result of the gaze-head and texture signals.
type LivenessVerdict struct {
	Decision      LivenessDecision `json:"decision"`
	MotionScore   float64          `json:"motion_score"`
	TextureScore  float64          `json:"texture_score"`
	Message       string           `json:"message"`
	Hint          string           `json:"hint,omitempty"`           // corrective prompt for a retry
	Degraded      bool             `json:"degraded,omitempty"`       // model failure or too few usable frames
	BlinkDetected bool             `json:"blink_detected,omitempty"` // only meaningful with a challenge index
}

// Retry reports whether the verdict asks the user to try again with guidance.
func (v LivenessVerdict) Retry() bool {
	return v.Decision == Borderline && v.Hint != ""
}

// Match method tags.
const (
	MethodKNN        = "k-NN (avg top 3)"
	MethodSingleBest = "Single Best (Low Data)"
)

// MatchResult is the identity matcher's verdict.
type MatchResult struct {
	Accepted          bool    `json:"accepted"`
	Confidence        float64 `json:"confidence"`
	Distance          float64 `json:"distance"`
	Method            string  `json:"method"`
	MatchedIdentityID string  `json:"matched_identity_id,omitempty"`
}

// Gate names the pipeline stage that produced a verification outcome.
type Gate string

const (
	GateInput    Gate = "input"
	GateLiveness Gate = "liveness"
	GateSpoof    Gate = "spoof"
	GateFace     Gate = "face"
	GatePose     Gate = "pose"
	GateIdentity Gate = "identity"
	GateNone     Gate = ""
)

// VerificationResult is returned for every verification call, accepted or not.
type VerificationResult struct {
	Accepted       bool             `json:"accepted"`
	Reason         string           `json:"reason,omitempty"`
	Gate           Gate             `json:"gate,omitempty"`
	LivenessFailed bool             `json:"liveness_failed,omitempty"`
	PoseError      bool             `json:"pose_error,omitempty"`
	Distance       *float64         `json:"distance,omitempty"`
	Confidence     *float64         `json:"confidence,omitempty"`
	Method         string           `json:"method,omitempty"`
	IdentityID     string           `json:"identity_id,omitempty"`
	Yaw            *float64         `json:"yaw,omitempty"`
	Pitch          *float64         `json:"pitch,omitempty"`
	Liveness       *LivenessVerdict `json:"liveness,omitempty"`
	Err            error            `json:"-"` // taxonomy error behind a rejection, for errors.Is
}

// Reject builds a rejection for the given gate.
func Reject(gate Gate, reason string, err error) VerificationResult {
	return VerificationResult{Gate: gate, Reason: reason, Err: err}
}
