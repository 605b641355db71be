package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/netwatcherio/netwatcher-diag/probes"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "InterfaceNotFoundError", Result(fmt.Errorf("%w: eth7", probes.ErrInterfaceNotFound)))
	assert.Equal(t, "ProbeTimeoutError", Result(probes.ErrProbeTimeout))
	assert.Equal(t, "error", Result(errors.New("boom")))
}

func TestObserve(t *testing.T) {
	before := testutil.ToFloat64(Operations.WithLabelValues("test_op", "ok"))
	Observe("test_op", time.Now(), nil)
	assert.Equal(t, before+1, testutil.ToFloat64(Operations.WithLabelValues("test_op", "ok")))
}

func TestObserveSpeedTest(t *testing.T) {
	ObserveSpeedTest(probes.SpeedTestResult{Interface: "lo", DownloadSpeed: 12.5, UploadSpeed: 3})
	assert.Equal(t, 12.5, testutil.ToFloat64(Throughput.WithLabelValues("lo", "download")))
	assert.Equal(t, 3.0, testutil.ToFloat64(Throughput.WithLabelValues("lo", "upload")))
}

func TestObserveURL(t *testing.T) {
	before := testutil.ToFloat64(URLAvailability.WithLabelValues("false", "false"))
	ObserveURL(probes.URLAnalysisResult{OriginalURL: "::"})
	assert.Equal(t, before+1, testutil.ToFloat64(URLAvailability.WithLabelValues("false", "false")))
}
