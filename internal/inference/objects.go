package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harhit22/new-auto-attendace/internal/face"
)

// DetectorModel is the general object detector's model name.
const DetectorModel = "yolov8m"

// Detection is one object found by the detector.
type Detection struct {
	ClassID    int       `json:"class_id"`
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	BBox       face.BBox `json:"bbox"`
}

// DetectorClient runs the COCO object detector via POST /detect/objects.
type DetectorClient struct {
	modelClient
}

// NewDetectorClient creates an object detector client.
func NewDetectorClient(baseURL string, opts ...Option) *DetectorClient {
	return &DetectorClient{modelClient: newModelClient(DetectorModel, baseURL, opts...)}
}

type detectResponse struct {
	Detections []struct {
		ClassID    int       `json:"class_id"`
		Name       string    `json:"name"`
		Confidence float64   `json:"confidence"`
		BBox       []float64 `json:"bbox"`
	} `json:"detections"`
}

// Ping verifies the model server serves the detector.
func (c *DetectorClient) Ping(ctx context.Context) error {
	return c.ping(ctx, DetectorModel)
}

// Detect returns every object the detector reports for the frame.
func (c *DetectorClient) Detect(ctx context.Context, frame face.Frame) ([]Detection, error) {
	body, err := c.postFrame(ctx, "/detect/objects", nil, frame)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, face.NewModelError(c.name, fmt.Errorf("failed to parse response: %w", err))
	}

	out := make([]Detection, 0, len(resp.Detections))
	for _, d := range resp.Detections {
		det := Detection{ClassID: d.ClassID, Name: d.Name, Confidence: d.Confidence}
		if len(d.BBox) == 4 {
			det.BBox = face.BBox{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]}
		}
		out = append(out, det)
	}
	return out, nil
}
