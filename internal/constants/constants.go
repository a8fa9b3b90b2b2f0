// Package constants provides shared defaults used across the codebase.
// Every value here can be overridden through config; these are the tuned starting points.
package constants

// Identity matching constants
const (
	// DefaultMatchThreshold is the maximum cosine distance accepted as the same person
	// Lower values = stricter matching
	DefaultMatchThreshold = 0.40

	// DefaultStrongPairThreshold rescues a k-NN vote when two of the top matches are excellent
	DefaultStrongPairThreshold = 0.15

	// DefaultVotingK is the number of nearest stored descriptors averaged in a vote
	DefaultVotingK = 3

	// DefaultMinVotingSamples is the number of stored descriptors required for k-NN voting
	DefaultMinVotingSamples = 5

	// DefaultMinStrongPairs is how many top-k distances must fall under the strong-pair threshold
	DefaultMinStrongPairs = 2

	// HNSWMinGallerySize is the number of stored descriptors above which 1:N uses the HNSW shortlist
	HNSWMinGallerySize = 5000

	// HNSWShortlistSize is the number of nearest descriptors fetched from the HNSW shortlist
	HNSWShortlistSize = 50

	// HNSWMaxNeighbors is the M parameter of the HNSW graph
	HNSWMaxNeighbors = 16
)

// Liveness constants
const (
	// DefaultMinBurstFrames is the minimum burst size for temporal liveness
	DefaultMinBurstFrames = 8

	// DefaultMinYawStdDev is the head-motion floor; less motion asks the user to turn their head
	DefaultMinYawStdDev = 0.015

	// DefaultGazeRigidityFloor is the gaze std-dev below which moving-head eyes are judged painted
	DefaultGazeRigidityFloor = 0.004

	// DefaultMinGazeSamples is the number of usable sampled frames needed for the gaze-head signal
	DefaultMinGazeSamples = 5

	// DefaultEntropyThresholdSharp applies when the cheek patch is sharp
	DefaultEntropyThresholdSharp = 5.0

	// DefaultEntropyThresholdBlurry applies when sensor noise inflates entropy on low quality cameras
	DefaultEntropyThresholdBlurry = 5.2

	// DefaultSharpnessCutoff is the Laplacian variance below which a patch counts as blurry
	DefaultSharpnessCutoff = 50.0

	// DefaultTexturePatchRatio sizes the cheek patch relative to face width
	DefaultTexturePatchRatio = 0.20

	// DefaultBlinkEARThreshold is the eye aspect ratio below which eyes count as closed
	DefaultBlinkEARThreshold = 0.2

	// LivenessWorkers bounds concurrent landmark calls inside one burst
	LivenessWorkers = 4
)

// Neutral liveness scores used when a signal cannot decide
const (
	NeutralScore     = 0.5
	NoIrisScore      = 0.6
	PassScore        = 1.0
	FailScore        = 0.0
	RetryMotionScore = 0.3
)

// Spoof and pose constants
const (
	// DefaultSpoofConfidence is the detector confidence above which a display object rejects the frame
	DefaultSpoofConfidence = 0.25

	// SpoofLogConfidence is the confidence above which any detection is logged
	SpoofLogConfidence = 0.2

	// DefaultMaxFaceWidthRatio rejects faces wider than this share of the frame
	DefaultMaxFaceWidthRatio = 0.40

	// DefaultMaxYawDegrees is the frontal pose tolerance
	DefaultMaxYawDegrees = 25.0

	// DefaultLandmarkMinConfidence is the detector confidence floor for a located face
	DefaultLandmarkMinConfidence = 0.5
)

// Processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) sent to the model server
	MaxImageSize = 1280

	// JPEGQuality is used when a frame has to be re-encoded
	JPEGQuality = 85

	// DefaultModelRPS limits outbound model server requests per second
	DefaultModelRPS = 50

	// DefaultMinEnrollQuality skips enrollment images with a lower overall quality score
	DefaultMinEnrollQuality = 0.4
)

// HTTP constants
const (
	// MaxUploadSize is the maximum multipart request size in bytes (64MB)
	MaxUploadSize = 64 << 20

	// MaxBurstFrames caps the number of frames accepted in one request
	MaxBurstFrames = 60
)
