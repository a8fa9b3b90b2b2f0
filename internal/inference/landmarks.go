package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/facematch"
)

// LandmarkModel is the model name reported by the server and used in metrics.
const LandmarkModel = "face_mesh"

// LandmarkClient locates faces and their dense mesh via POST /landmarks/face.
type LandmarkClient struct {
	modelClient
	minConfidence float64
}

// NewLandmarkClient creates a landmark client. Faces whose detector confidence
// is below minConfidence are reported as no face.
func NewLandmarkClient(baseURL string, minConfidence float64, opts ...Option) *LandmarkClient {
	return &LandmarkClient{
		modelClient:   newModelClient(LandmarkModel, baseURL, opts...),
		minConfidence: minConfidence,
	}
}

// landmarkResponse is the server's JSON for /landmarks/face.
type landmarkResponse struct {
	Faces []struct {
		BBox       []float64    `json:"bbox"` // [x1, y1, x2, y2] in pixels
		Confidence float64      `json:"confidence"`
		Keypoints  [][2]float64 `json:"keypoints"` // normalized [x, y]
	} `json:"faces"`
}

// Ping verifies the model server serves the landmark model.
func (c *LandmarkClient) Ping(ctx context.Context) error {
	return c.ping(ctx, LandmarkModel)
}

// Locate returns the largest face in the frame, or nil when there is none or
// its confidence is below the floor. No face is not an error.
func (c *LandmarkClient) Locate(ctx context.Context, frame face.Frame) (*face.Landmarks, error) {
	body, err := c.postFrame(ctx, "/landmarks/face", nil, frame)
	if err != nil {
		return nil, err
	}

	var resp landmarkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, face.NewModelError(c.name, fmt.Errorf("failed to parse response: %w", err))
	}

	faces := make([]face.Landmarks, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		kp := make([]face.Point, len(f.Keypoints))
		for i, p := range f.Keypoints {
			kp[i] = face.Point{X: p[0], Y: p[1]}
		}
		faces = append(faces, face.Landmarks{
			BBox:       face.BBox{X1: f.BBox[0], Y1: f.BBox[1], X2: f.BBox[2], Y2: f.BBox[3]},
			Keypoints:  kp,
			Confidence: f.Confidence,
		})
	}

	best, ok := facematch.LargestFace(faces)
	if !ok || best.Confidence < c.minConfidence || len(best.Keypoints) < 5 {
		return nil, nil
	}
	return &best, nil
}
