package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/netwatcherio/netwatcher-diag/metrics"
	"github.com/netwatcherio/netwatcher-diag/probes"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownProbe is returned by Handle for a probe type it does not serve.
var ErrUnknownProbe = errors.New("unknown probe type")

type SpeedProber interface {
	Probe(ctx context.Context, interfaceName string) (probes.SpeedTestResult, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, rawURL string) probes.URLAnalysisResult
}

// Dispatcher routes diagnostic requests onto the probes and records metrics
// for each of them. It is shared by the HTTP, websocket and CLI surfaces.
type Dispatcher struct {
	Speed          SpeedProber
	URLs           Analyzer
	ListInterfaces func(ctx context.Context, opts probes.InterfaceOptions) ([]probes.NetworkInterface, error)
	NetworkInfo    func(ctx context.Context, withPublic bool) (probes.NetworkInfoResult, error)

	// Serialize coalesces concurrent throughput probes of the same
	// interface into one measurement.
	Serialize bool

	inflight singleflight.Group
}

func NewDispatcher(speed SpeedProber, urls Analyzer) *Dispatcher {
	return &Dispatcher{
		Speed:          speed,
		URLs:           urls,
		ListInterfaces: probes.ListInterfaces,
		NetworkInfo:    probes.NetworkInfo,
	}
}

func (d *Dispatcher) Interfaces(ctx context.Context, upOnly bool) ([]probes.NetworkInterface, error) {
	start := time.Now()
	ifaces, err := d.ListInterfaces(ctx, probes.InterfaceOptions{UpOnly: upOnly})
	metrics.Observe("interfaces", start, err)
	if err != nil {
		log.Errorf("interface enumeration failed: %v", err)
	}
	return ifaces, err
}

func (d *Dispatcher) SpeedTest(ctx context.Context, interfaceName string) (probes.SpeedTestResult, error) {
	start := time.Now()
	var (
		res probes.SpeedTestResult
		err error
	)
	if d.Serialize {
		res, err = d.sharedSpeedTest(ctx, interfaceName)
	} else {
		res, err = d.Speed.Probe(ctx, interfaceName)
	}
	metrics.Observe("speedtest", start, err)
	if err != nil {
		return probes.SpeedTestResult{}, err
	}
	metrics.ObserveSpeedTest(res)
	return res, nil
}

// sharedSpeedTest joins a running probe of the same interface. The probe
// outlives any single caller, bounded by the prober's own timeout; a caller
// that goes away only stops waiting.
func (d *Dispatcher) sharedSpeedTest(ctx context.Context, interfaceName string) (probes.SpeedTestResult, error) {
	ch := d.inflight.DoChan("speedtest/"+interfaceName, func() (interface{}, error) {
		return d.Speed.Probe(context.WithoutCancel(ctx), interfaceName)
	})

	select {
	case r := <-ch:
		if r.Shared {
			log.Debugf("joined running throughput probe on %q", interfaceName)
		}
		res, _ := r.Val.(probes.SpeedTestResult)
		return res, r.Err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return probes.SpeedTestResult{}, fmt.Errorf("%w: %v", probes.ErrProbeTimeout, ctx.Err())
		}
		return probes.SpeedTestResult{}, fmt.Errorf("%w: %v", probes.ErrProbe, ctx.Err())
	}
}

func (d *Dispatcher) AnalyzeURL(ctx context.Context, rawURL string) probes.URLAnalysisResult {
	start := time.Now()
	res := d.URLs.Analyze(ctx, rawURL)
	metrics.Observe("analyze_url", start, nil)
	metrics.ObserveURL(res)
	return res
}

func (d *Dispatcher) NetInfo(ctx context.Context, withPublic bool) (probes.NetworkInfoResult, error) {
	start := time.Now()
	res, err := d.NetworkInfo(ctx, withPublic)
	metrics.Observe("netinfo", start, err)
	return res, err
}

// Handle runs p and wraps the outcome in a ProbeData envelope. Failures are
// carried in the envelope, never returned.
func (d *Dispatcher) Handle(ctx context.Context, p probes.Probe) probes.ProbeData {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	out := probes.ProbeData{
		ID:      primitive.NewObjectID(),
		ProbeID: p.ID,
		Type:    p.Type,
	}

	var err error
	switch p.Type {
	case probes.ProbeType_INTERFACES:
		out.Data, err = d.Interfaces(ctx, p.Target == "up")
	case probes.ProbeType_SPEEDTEST:
		out.Data, err = d.SpeedTest(ctx, p.Target)
	case probes.ProbeType_URLANALYSIS:
		out.Data = d.AnalyzeURL(ctx, p.Target)
	case probes.ProbeType_NETWORKINFO:
		out.Data, err = d.NetInfo(ctx, p.Target == "public")
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownProbe, p.Type)
	}
	if err != nil {
		log.Warnf("probe %s (%s) failed: %v", p.ID.Hex(), p.Type, err)
		out.Data = nil
		out.Error = probes.ErrorKind(err)
		out.Message = err.Error()
	}
	out.CreatedAt = time.Now().UTC()
	return out
}
