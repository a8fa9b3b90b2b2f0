package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveVerification(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveVerification("spoof", false)
	m.ObserveVerification("spoof", false)
	m.ObserveVerification("identity", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Verifications.WithLabelValues("spoof", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("none", "accepted")))
}

func TestObserveModel_CountsErrors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveModel("embedding", time.Now(), nil)
	m.ObserveModel("embedding", time.Now(), errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelErrors.WithLabelValues("embedding")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveVerification("pose", false)
		m.ObserveLiveness("LIVE")
		m.ObserveSpoofObject("laptop", true)
		m.ObserveMatch("k-NN (avg top 3)", 0.2)
		m.ObserveModel("landmarks", time.Now(), nil)
		m.SetGallerySize(3)
	})
}

func TestSetGallerySize(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetGallerySize(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(m.GallerySize))
}
