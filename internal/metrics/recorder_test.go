package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.IncAlert("cpu")
	r.IncAlert("cpu")
	r.IncAlert("disk")
	r.ObserveTick("memory", 10*time.Millisecond, nil)
	r.ObserveTick("memory", 10*time.Millisecond, errors.New("unavailable"))
	r.IncSinkFailure("file")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.alerts.WithLabelValues("cpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alerts.WithLabelValues("disk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tickFailures.WithLabelValues("memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sinkFailures.WithLabelValues("file")))
}

func TestRecorder_SampleGaugeKeepsLatest(t *testing.T) {
	r := NewRecorder()

	r.ObserveSample("disk", "/", 40)
	r.ObserveSample("disk", "/", 90)
	r.ObserveSample("disk", "/home", 10)

	assert.Equal(t, 90.0, testutil.ToFloat64(r.samples.WithLabelValues("disk", "/")))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.samples.WithLabelValues("disk", "/home")))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.IncAlert("process_count")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hostsentinel_alerts_total{kind="process_count"} 1`)
}
