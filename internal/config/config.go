package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	Models     ModelsConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	Server     ServerConfig
	Thresholds Thresholds
}

type ModelsConfig struct {
	LandmarkURL  string // defaults to MODEL_SERVER_URL
	DetectorURL  string // defaults to MODEL_SERVER_URL
	EmbeddingURL string // defaults to MODEL_SERVER_URL
	RPS          int    // outbound requests per second across all model clients
	TimeoutSec   int    // per-request timeout
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	HNSWIndexDir string // Directory for persisted gallery HNSW indexes (optional, rebuilt on startup if empty)
}

type RedisConfig struct {
	URL     string // optional; gallery change notifications are disabled when empty
	Channel string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type ServerConfig struct {
	Addr           string
	APIKeys        []string // empty disables API key auth
	AllowedOrigins []string // CORS origins besides localhost
}

// Thresholds holds every tunable of the pipeline. Loaded from the embedded
// thresholds.yaml and overridden by environment variables.
type Thresholds struct {
	Match     MatchConfig     `yaml:"match" validate:"required"`
	Liveness  LivenessConfig  `yaml:"liveness" validate:"required"`
	Spoof     SpoofConfig     `yaml:"spoof" validate:"required"`
	Pose      PoseConfig      `yaml:"pose" validate:"required"`
	Landmarks LandmarksConfig `yaml:"landmarks"`
	Enroll    EnrollConfig    `yaml:"enroll"`
}

type MatchConfig struct {
	Thresholds       FamilyThresholds `yaml:"thresholds" validate:"required"`
	StrongPair       float64          `yaml:"strong_pair" validate:"gte=0,lt=2"`
	K                int              `yaml:"k" validate:"gte=1"`
	MinVotingSamples int              `yaml:"min_voting_samples" validate:"gtefield=K"`
	MinStrongPairs   int              `yaml:"min_strong_pairs" validate:"gte=1,ltefield=K"`
}

// FamilyThresholds is the accept distance per descriptor family.
type FamilyThresholds struct {
	Light float64 `yaml:"light" validate:"gt=0,lt=2"`
	Heavy float64 `yaml:"heavy" validate:"gt=0,lt=2"`
}

// For returns the threshold of the given family, 0 for an unknown family.
func (t FamilyThresholds) For(f face.Family) float64 {
	switch f {
	case face.Light:
		return t.Light
	case face.Heavy:
		return t.Heavy
	default:
		return 0
	}
}

type LivenessConfig struct {
	MinBurstFrames         int     `yaml:"min_burst_frames" validate:"gtefield=MinGazeSamples"`
	MinYawStdDev           float64 `yaml:"min_yaw_std_dev" validate:"gte=0"`
	GazeRigidityFloor      float64 `yaml:"gaze_rigidity_floor" validate:"gte=0"`
	MinGazeSamples         int     `yaml:"min_gaze_samples" validate:"gte=2"`
	EntropyThresholdSharp  float64 `yaml:"entropy_threshold_sharp" validate:"gte=0,lte=8"`
	EntropyThresholdBlurry float64 `yaml:"entropy_threshold_blurry" validate:"gte=0,lte=8"`
	SharpnessCutoff        float64 `yaml:"sharpness_cutoff" validate:"gte=0"`
	PatchRatio             float64 `yaml:"patch_ratio" validate:"gt=0,lte=1"`
	BlinkEARThreshold      float64 `yaml:"blink_ear_threshold" validate:"gt=0"`
	RequireBlink           bool    `yaml:"require_blink"`
}

type SpoofConfig struct {
	Confidence float64        `yaml:"confidence" validate:"gt=0,lte=1"`
	Classes    map[int]string `yaml:"classes" validate:"required,min=1"`
}

type PoseConfig struct {
	MaxFaceWidthRatio float64 `yaml:"max_face_width_ratio" validate:"gt=0,lte=1"`
	MaxYawDegrees     float64 `yaml:"max_yaw_degrees" validate:"gt=0,lte=90"`
}

type LandmarksConfig struct {
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
}

type EnrollConfig struct {
	MinQuality float64 `yaml:"min_quality" validate:"gte=0,lte=1"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to the default like envInt.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated list, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// DefaultThresholds returns the embedded defaults without environment overrides.
func DefaultThresholds() Thresholds {
	var t Thresholds
	if err := yaml.Unmarshal(thresholdsYAML, &t); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}
	return t
}

func Load() *Config {
	t := DefaultThresholds()

	t.Match.Thresholds.Light = envFloat("MATCH_THRESHOLD_LIGHT", t.Match.Thresholds.Light)
	t.Match.Thresholds.Heavy = envFloat("MATCH_THRESHOLD_HEAVY", t.Match.Thresholds.Heavy)
	t.Match.StrongPair = envFloat("STRONG_PAIR_THRESHOLD", t.Match.StrongPair)
	t.Liveness.MinBurstFrames = envInt("MIN_BURST_FRAMES", t.Liveness.MinBurstFrames)
	t.Liveness.MinYawStdDev = envFloat("MIN_YAW_STD_DEV", t.Liveness.MinYawStdDev)
	t.Liveness.EntropyThresholdSharp = envFloat("ENTROPY_THRESHOLD_SHARP", t.Liveness.EntropyThresholdSharp)
	t.Liveness.EntropyThresholdBlurry = envFloat("ENTROPY_THRESHOLD_BLURRY", t.Liveness.EntropyThresholdBlurry)
	t.Liveness.RequireBlink = envBool("REQUIRE_BLINK", t.Liveness.RequireBlink)
	t.Spoof.Confidence = envFloat("SPOOF_CONFIDENCE", t.Spoof.Confidence)
	t.Pose.MaxFaceWidthRatio = envFloat("MAX_FACE_WIDTH_RATIO", t.Pose.MaxFaceWidthRatio)
	t.Pose.MaxYawDegrees = envFloat("MAX_YAW_DEGREES", t.Pose.MaxYawDegrees)

	modelURL := envString("MODEL_SERVER_URL", "http://localhost:8000")

	return &Config{
		Models: ModelsConfig{
			LandmarkURL:  envString("LANDMARK_URL", modelURL),
			DetectorURL:  envString("DETECTOR_URL", modelURL),
			EmbeddingURL: envString("EMBEDDING_URL", modelURL),
			RPS:          envInt("MODEL_RPS", 50),
			TimeoutSec:   envInt("MODEL_TIMEOUT_SEC", 20),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexDir: os.Getenv("HNSW_INDEX_DIR"),
		},
		Redis: RedisConfig{
			URL:     os.Getenv("REDIS_URL"),
			Channel: envString("REDIS_GALLERY_CHANNEL", "faceverify:gallery"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Server: ServerConfig{
			Addr:           envString("LISTEN_ADDR", ":8080"),
			APIKeys:        envList("API_KEYS"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Thresholds: t,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks threshold ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c.Thresholds); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	if c.Thresholds.Liveness.EntropyThresholdBlurry < c.Thresholds.Liveness.EntropyThresholdSharp {
		return fmt.Errorf("invalid thresholds: blurry entropy threshold %.2f below sharp threshold %.2f",
			c.Thresholds.Liveness.EntropyThresholdBlurry, c.Thresholds.Liveness.EntropyThresholdSharp)
	}
	for _, u := range []string{c.Models.LandmarkURL, c.Models.DetectorURL, c.Models.EmbeddingURL} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("invalid model server URL %q", u)
		}
	}
	return nil
}
