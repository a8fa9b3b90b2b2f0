package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/harhit22/new-auto-attendace/internal/face"
)

// Embedding model names per descriptor family.
const (
	LightEmbeddingModel = "facenet"
	HeavyEmbeddingModel = "arcface"
)

// EmbeddingModel returns the server model name for a family.
func EmbeddingModel(f face.Family) string {
	if f == face.Light {
		return LightEmbeddingModel
	}
	return HeavyEmbeddingModel
}

// EmbeddingClient computes face descriptors using the embedding server.
type EmbeddingClient struct {
	modelClient
}

// NewEmbeddingClient creates a new embedding client.
func NewEmbeddingClient(baseURL string, opts ...Option) *EmbeddingClient {
	return &EmbeddingClient{modelClient: newModelClient("embedding", baseURL, opts...)}
}

// faceEmbeddingResponse represents the response from /embed/face.
type faceEmbeddingResponse struct {
	FacesCount int `json:"faces_count"`
	Faces      []struct {
		FaceIndex int       `json:"face_index"`
		Dim       int       `json:"dim"`
		Embedding []float32 `json:"embedding"`
		BBox      []float64 `json:"bbox"`
		DetScore  float64   `json:"det_score"`
	} `json:"faces"`
	Model string `json:"model"`
}

// Ping verifies the server serves both embedding models.
func (c *EmbeddingClient) Ping(ctx context.Context) error {
	if err := c.ping(ctx, LightEmbeddingModel); err != nil {
		return err
	}
	return c.ping(ctx, HeavyEmbeddingModel)
}

// Describe returns the L2-normalized descriptor of the largest face in the
// frame, or nil when the model finds no face.
func (c *EmbeddingClient) Describe(ctx context.Context, frame face.Frame, family face.Family) (*face.Descriptor, error) {
	q := url.Values{"model": {family.String()}}
	body, err := c.postFrame(ctx, "/embed/face", q, frame)
	if err != nil {
		return nil, err
	}

	var resp faceEmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, face.NewModelError(c.name, fmt.Errorf("failed to parse response: %w", err))
	}

	if len(resp.Faces) == 0 {
		return nil, nil
	}

	// Largest face wins; the first one on ties.
	idx, bestArea := 0, -1.0
	for i, f := range resp.Faces {
		var area float64
		if len(f.BBox) == 4 {
			area = face.BBox{X1: f.BBox[0], Y1: f.BBox[1], X2: f.BBox[2], Y2: f.BBox[3]}.Area()
		}
		if area > bestArea {
			idx, bestArea = i, area
		}
	}

	embedding := resp.Faces[idx].Embedding
	if len(embedding) == 0 {
		return nil, face.NewModelError(c.name, errors.New("empty embedding returned"))
	}
	d, err := face.NewDescriptor(family, embedding)
	if err != nil {
		return nil, face.NewModelError(c.name, err)
	}
	return &d, nil
}
