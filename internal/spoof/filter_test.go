package spoof

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/inference"
	"github.com/harhit22/new-auto-attendace/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	detections []inference.Detection
	err        error
}

func (f fakeDetector) Detect(context.Context, face.Frame) ([]inference.Detection, error) {
	return f.detections, f.err
}

func frame() face.Frame {
	return face.Frame{Image: image.NewRGBA(image.Rect(0, 0, 64, 64))}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		detections []inference.Detection
		rejected   bool
		object     string
	}{
		{
			name: "laptop above threshold",
			detections: []inference.Detection{
				{ClassID: 0, Name: "person", Confidence: 0.93},
				{ClassID: 63, Name: "laptop", Confidence: 0.41},
			},
			rejected: true,
			object:   "laptop",
		},
		{
			name:       "phone below threshold is ignored",
			detections: []inference.Detection{{ClassID: 67, Name: "cell phone", Confidence: 0.22}},
		},
		{
			name:       "threshold itself is not enough",
			detections: []inference.Detection{{ClassID: 62, Name: "tv", Confidence: 0.25}},
		},
		{
			name:       "other classes never reject",
			detections: []inference.Detection{{ClassID: 73, Name: "book", Confidence: 0.99}},
		},
		{
			name: "strongest display wins",
			detections: []inference.Detection{
				{ClassID: 62, Name: "tv", Confidence: 0.30},
				{ClassID: 67, Name: "cell phone", Confidence: 0.80},
			},
			rejected: true,
			object:   "cell phone",
		},
		{
			name: "empty frame",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(fakeDetector{detections: tt.detections}, config.DefaultThresholds().Spoof, nil, nil)

			out, err := f.Check(context.Background(), frame())
			require.NoError(t, err)
			assert.Equal(t, tt.rejected, out.Rejected)
			assert.Equal(t, tt.object, out.Object)
			if tt.rejected {
				assert.Contains(t, out.Reason, "we see a "+tt.object)
				assert.NotContains(t, out.Reason, "0.25")
			}
		})
	}
}

func TestCheck_FailOpen(t *testing.T) {
	det := fakeDetector{err: face.NewModelError("yolov8m", errors.New("503"))}
	f := New(det, config.DefaultThresholds().Spoof, nil, nil)

	out, err := f.Check(context.Background(), frame())
	require.NoError(t, err)
	assert.False(t, out.Rejected)
	assert.True(t, out.Skipped)
}

func TestCheck_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(fakeDetector{err: context.Canceled}, config.DefaultThresholds().Spoof, nil, nil)
	_, err := f.Check(ctx, frame())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheck_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	f := New(fakeDetector{detections: []inference.Detection{
		{ClassID: 63, Name: "laptop", Confidence: 0.41},
		{ClassID: 67, Name: "cell phone", Confidence: 0.21},
	}}, config.DefaultThresholds().Spoof, nil, m)

	_, err := f.Check(context.Background(), frame())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpoofDetections.WithLabelValues("laptop", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpoofDetections.WithLabelValues("cell phone", "false")))
}
