package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/imaging"
	"github.com/harhit22/new-auto-attendace/internal/metrics"
	"golang.org/x/time/rate"
)

const defaultModelURL = "http://localhost:8000"

// modelClient is the shared HTTP plumbing of the three model clients.
type modelClient struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// Option configures a model client.
type Option func(*modelClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *modelClient) { m.client = c }
}

// WithLimiter shares an outbound rate limiter between clients.
func WithLimiter(l *rate.Limiter) Option {
	return func(m *modelClient) { m.limiter = l }
}

// WithMetrics records request latency and failures.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *modelClient) { m.metrics = mt }
}

func newModelClient(name, baseURL string, opts ...Option) modelClient {
	if baseURL == "" {
		baseURL = defaultModelURL
	}
	c := modelClient{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// healthResponse is returned by GET /health on the model server.
type healthResponse struct {
	Status string   `json:"status"`
	Models []string `json:"models"`
}

// ping checks that the model server is up and serves this model.
func (c *modelClient) ping(ctx context.Context, model string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("health check failed (status %d): %s", resp.StatusCode, string(body))
	}

	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("failed to parse health response: %w", err)
	}
	if len(h.Models) == 0 {
		return nil
	}
	for _, m := range h.Models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model server does not serve %q (has %v)", model, h.Models)
}

// postFrame posts a frame as a multipart image and returns the response body.
// Transport and server failures are wrapped as model errors.
func (c *modelClient) postFrame(ctx context.Context, endpoint string, query url.Values, frame face.Frame) ([]byte, error) {
	data, err := imaging.FrameBytes(frame)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame.Index, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()
	body, err := c.postMultipartImage(ctx, endpoint, query, data)
	c.metrics.ObserveModel(c.name, start, err)
	if err != nil {
		return nil, face.NewModelError(c.name, err)
	}
	return body, nil
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
// The part carries an explicit Content-Type header based on magic byte detection.
func (c *modelClient) postMultipartImage(ctx context.Context, endpoint string, query url.Values, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "image/png"
	case data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38:
		return "image/gif"
	case data[0] == 0x42 && data[1] == 0x4D:
		return "image/bmp"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	}
	return "application/octet-stream"
}
