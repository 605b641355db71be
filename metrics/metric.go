package metrics

import (
	"errors"
	"time"

	"github.com/netwatcherio/netwatcher-diag/probes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "netdiag"

var (
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Diagnostic operations served, by operation and result kind.",
	},
		[]string{"operation", "result"},
	)

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Wall time of diagnostic operations.",
		Buckets:   []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60},
	},
		[]string{"operation"},
	)

	Throughput = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "throughput_mbps",
		Help:      "Last measured throughput per interface in Mbit/s.",
	},
		[]string{"interface", "direction"},
	)

	URLAvailability = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "url_analysis_total",
		Help:      "Analyzed URLs by validity and ICMP availability.",
	},
		[]string{"valid", "available"},
	)
)

// Result maps err onto the label used for the result dimension.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, probes.ErrEnumeration) || errors.Is(err, probes.ErrInterfaceNotFound) ||
		errors.Is(err, probes.ErrProbeTimeout) || errors.Is(err, probes.ErrProbe) {
		return probes.ErrorKind(err)
	}
	return "error"
}

// Observe records one finished operation that started at start.
func Observe(operation string, start time.Time, err error) {
	Operations.WithLabelValues(operation, Result(err)).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func ObserveSpeedTest(res probes.SpeedTestResult) {
	Throughput.WithLabelValues(res.Interface, "download").Set(res.DownloadSpeed)
	Throughput.WithLabelValues(res.Interface, "upload").Set(res.UploadSpeed)
}

func ObserveURL(res probes.URLAnalysisResult) {
	available := res.URLDetails != nil && res.IsAvailable
	URLAvailability.WithLabelValues(boolLabel(res.IsValid), boolLabel(available)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
