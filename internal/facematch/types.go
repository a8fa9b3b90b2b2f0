// Package facematch provides face geometry shared by the liveness, pose and
// spoof checks: face selection, head yaw and gaze
// ratios from mesh landmarks, and identity name normalization.
package facematch
