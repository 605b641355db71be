package probes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackpal/gateway"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultProbeTimeout     = 60 * time.Second
	DefaultTransferDuration = 10 * time.Second
	DefaultTransferBytes    = 25 * 1000 * 1000
)

// SpeedTestResult holds one download and one upload measurement taken
// through the same interface. Speeds are in Mbit/s (10^6 bits).
type SpeedTestResult struct {
	DownloadSpeed float64   `json:"downloadSpeed"`
	UploadSpeed   float64   `json:"uploadSpeed"`
	Timestamp     time.Time `json:"timestamp"`
	Interface     string    `json:"interface"`
	Server        string    `json:"server"`
	DownloadBytes int64     `json:"downloadBytes"`
	UploadBytes   int64     `json:"uploadBytes"`
}

// ThroughputProber measures bandwidth of one interface. It keeps no state
// between calls and is safe for concurrent use.
type ThroughputProber struct {
	Endpoints EndpointSource
	// Timeout bounds the whole probe, endpoint discovery included.
	Timeout time.Duration
	// TransferDuration and TransferBytes bound each transfer, whichever is hit first.
	TransferDuration time.Duration
	TransferBytes    int64
}

func NewThroughputProber(src EndpointSource) *ThroughputProber {
	if src == nil {
		src = DefaultEndpoints
	}
	return &ThroughputProber{
		Endpoints:        src,
		Timeout:          DefaultProbeTimeout,
		TransferDuration: DefaultTransferDuration,
		TransferBytes:    DefaultTransferBytes,
	}
}

type transfer struct {
	endpoint Endpoint
	bytes    int64
	elapsed  time.Duration
}

func (t transfer) mbps() float64 {
	secs := t.elapsed.Seconds()
	if secs < 1e-6 {
		secs = 1e-6
	}
	return float64(t.bytes) * 8 / secs / 1e6
}

// Probe runs a download and an upload through interfaceName concurrently.
// An empty name probes the interface holding the default route.
func (p *ThroughputProber) Probe(ctx context.Context, interfaceName string) (SpeedTestResult, error) {
	var s1 SpeedTestResult

	ifi, err := lookupInterface(interfaceName)
	if err != nil {
		return s1, err
	}
	local, err := interfaceAddress(ifi)
	if err != nil {
		return s1, fmt.Errorf("%w: %v", ErrProbe, err)
	}
	log.Infof("starting throughput probe on %s (%s)", ifi.Name, local)

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	discovery := newBoundClient(local)
	endpoints, err := p.Endpoints.Endpoints(ctx, discovery)
	discovery.CloseIdleConnections()
	if err != nil {
		return s1, probeFailure(ctx, err)
	}
	if len(endpoints) == 0 {
		return s1, fmt.Errorf("%w: no reference endpoints", ErrProbe)
	}
	log.Debugf("probing %s against %s", ifi.Name, describeEndpoints(endpoints))

	var down, up transfer
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		down, err = p.firstSuccessful(ctx, gctx, endpoints, local, p.download)
		return err
	})
	g.Go(func() error {
		var err error
		up, err = p.firstSuccessful(ctx, gctx, endpoints, local, p.upload)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Warnf("throughput probe on %s failed: %v", ifi.Name, err)
		return s1, probeFailure(ctx, err)
	}

	s1.DownloadSpeed = down.mbps()
	s1.UploadSpeed = up.mbps()
	s1.DownloadBytes = down.bytes
	s1.UploadBytes = up.bytes
	s1.Interface = ifi.Name
	s1.Server = down.endpoint.Name
	if up.endpoint.Name != down.endpoint.Name {
		s1.Server += ", " + up.endpoint.Name
	}
	s1.Timestamp = time.Now().UTC()

	log.Infof("throughput probe on %s: down %.2f Mbit/s, up %.2f Mbit/s", ifi.Name, s1.DownloadSpeed, s1.UploadSpeed)
	return s1, nil
}

type transferFunc func(probeCtx, ctx context.Context, ep Endpoint, local net.IP) (transfer, error)

// firstSuccessful tries endpoints in order until one transfer succeeds.
func (p *ThroughputProber) firstSuccessful(probeCtx, ctx context.Context, endpoints []Endpoint, local net.IP, fn transferFunc) (transfer, error) {
	var errs []error
	for _, ep := range endpoints {
		t, err := fn(probeCtx, ctx, ep, local)
		if err == nil {
			return t, nil
		}
		log.Debugf("transfer against %s failed: %v", ep.Name, err)
		errs = append(errs, fmt.Errorf("%s: %w", ep.Name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return transfer{}, errors.Join(errs...)
}

// windowClosed reports whether the per-transfer window ran out while the
// probe as a whole is still live, which ends a transfer normally.
func windowClosed(ctx, transferCtx context.Context) bool {
	return transferCtx.Err() != nil && ctx.Err() == nil
}

func (p *ThroughputProber) download(probeCtx, ctx context.Context, ep Endpoint, local net.IP) (transfer, error) {
	tctx, cancel := context.WithTimeout(ctx, p.TransferDuration)
	defer cancel()

	client := newBoundClient(local)
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(tctx, http.MethodGet, ep.DownloadURL, nil)
	if err != nil {
		return transfer{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return transfer{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return transfer{}, fmt.Errorf("download: %s", resp.Status)
	}

	start := time.Now()
	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, p.TransferBytes))
	elapsed := time.Since(start)
	if err != nil && !windowClosed(probeCtx, tctx) {
		return transfer{}, err
	}
	if n == 0 {
		return transfer{}, errors.New("download: no bytes received")
	}
	return transfer{endpoint: ep, bytes: n, elapsed: elapsed}, nil
}

func (p *ThroughputProber) upload(probeCtx, ctx context.Context, ep Endpoint, local net.IP) (transfer, error) {
	tctx, cancel := context.WithTimeout(ctx, p.TransferDuration)
	defer cancel()

	client := newBoundClient(local)
	defer client.CloseIdleConnections()

	body := &countingReader{r: io.LimitReader(zeroReader{}, p.TransferBytes)}
	req, err := http.NewRequestWithContext(tctx, http.MethodPost, ep.UploadURL, body)
	if err != nil {
		return transfer{}, err
	}
	req.ContentLength = p.TransferBytes
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.Do(req)
	end := time.Now()
	if err != nil {
		if !windowClosed(probeCtx, tctx) {
			return transfer{}, err
		}
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return transfer{}, fmt.Errorf("upload: %s", resp.Status)
		}
	}

	n, started := body.stats()
	if n == 0 {
		return transfer{}, errors.New("upload: no bytes sent")
	}
	return transfer{endpoint: ep, bytes: n, elapsed: end.Sub(started)}, nil
}

// newBoundClient returns a client with its own transport whose connections
// originate from local, so concurrent transfers never share a connection.
func newBoundClient(local net.IP) *http.Client {
	dialer := &net.Dialer{
		LocalAddr: &net.TCPAddr{IP: local},
		Timeout:   10 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableCompression:  true,
			MaxIdleConnsPerHost: 1,
		},
	}
}

func lookupInterface(name string) (*net.Interface, error) {
	if name == "" {
		addr, err := gateway.DiscoverInterface()
		if err != nil {
			return nil, fmt.Errorf("%w: could not discover default route interface: %v", ErrProbe, err)
		}
		return interfaceByAddr(addr)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbe, err)
	}
	for i := range ifaces {
		if ifaces[i].Name == name {
			ifi := ifaces[i]
			return &ifi, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInterfaceNotFound, name)
}

func interfaceByAddr(ip net.IP) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbe, err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.Equal(ip) {
				ifi := ifaces[i]
				return &ifi, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no interface holds address %s", ErrInterfaceNotFound, ip)
}

type zeroReader struct{}

func (zeroReader) Read(b []byte) (int, error) {
	for i := range b {
		b[i] = 0
	}
	return len(b), nil
}

// countingReader records how much of the upload body the transport
// consumed and when it started reading. The transport reads from its own
// goroutine, hence the atomics.
type countingReader struct {
	r       io.Reader
	n       atomic.Int64
	started atomic.Int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	c.started.CompareAndSwap(0, time.Now().UnixNano())
	n, err := c.r.Read(b)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingReader) stats() (int64, time.Time) {
	return c.n.Load(), time.Unix(0, c.started.Load())
}

func describeEndpoints(eps []Endpoint) string {
	names := make([]string, 0, len(eps))
	for _, ep := range eps {
		names = append(names, ep.Name)
	}
	return strings.Join(names, ", ")
}
