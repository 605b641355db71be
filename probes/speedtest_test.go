package probes

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopbackInterface(t *testing.T) string {
	t.Helper()
	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagLoopback == 0 || ifi.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.Equal(net.IPv4(127, 0, 0, 1)) {
				return ifi.Name
			}
		}
	}
	t.Skip("no loopback interface with 127.0.0.1")
	return ""
}

func referenceServer(t *testing.T, payload int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		chunk := make([]byte, 32<<10)
		for sent := 0; sent < payload; sent += len(chunk) {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func endpointsFor(name string, srv *httptest.Server) Endpoint {
	return Endpoint{Name: name, DownloadURL: srv.URL + "/down", UploadURL: srv.URL + "/up"}
}

func testProber(eps ...Endpoint) *ThroughputProber {
	p := NewThroughputProber(StaticEndpoints(eps))
	p.Timeout = 10 * time.Second
	p.TransferDuration = 5 * time.Second
	p.TransferBytes = 1 << 20
	return p
}

func TestProbeLoopback(t *testing.T) {
	lo := loopbackInterface(t)
	srv := referenceServer(t, 4<<20)

	res, err := testProber(endpointsFor("local", srv)).Probe(context.Background(), lo)
	require.NoError(t, err)

	assert.Equal(t, lo, res.Interface)
	assert.Equal(t, "local", res.Server)
	assert.Equal(t, int64(1<<20), res.DownloadBytes)
	assert.Equal(t, int64(1<<20), res.UploadBytes)
	for _, v := range []float64{res.DownloadSpeed, res.UploadSpeed} {
		assert.Greater(t, v, 0.0)
		assert.False(t, math.IsInf(v, 0))
		assert.False(t, math.IsNaN(v))
	}
	assert.False(t, res.Timestamp.IsZero())
	assert.Equal(t, time.UTC, res.Timestamp.Location())
}

func TestProbeUnknownInterface(t *testing.T) {
	srv := referenceServer(t, 1<<20)

	res, err := testProber(endpointsFor("local", srv)).Probe(context.Background(), "does-not-exist0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterfaceNotFound))
	assert.Equal(t, SpeedTestResult{}, res)
}

func TestProbeTimeout(t *testing.T) {
	lo := loopbackInterface(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	})
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := testProber(endpointsFor("stalled", srv))
	p.Timeout = 300 * time.Millisecond

	start := time.Now()
	res, err := p.Probe(context.Background(), lo)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProbeTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, SpeedTestResult{}, res)
}

func TestProbeEndpointFailure(t *testing.T) {
	lo := loopbackInterface(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testProber(endpointsFor("broken", srv)).Probe(context.Background(), lo)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProbe), "got %v", err)
	assert.False(t, errors.Is(err, ErrProbeTimeout))
}

func TestProbeFallsBackToNextEndpoint(t *testing.T) {
	lo := loopbackInterface(t)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadEndpoint := endpointsFor("dead", dead)
	dead.Close()
	srv := referenceServer(t, 2<<20)

	res, err := testProber(deadEndpoint, endpointsFor("alive", srv)).Probe(context.Background(), lo)
	require.NoError(t, err)
	assert.Equal(t, "alive", res.Server)
}

func TestProbeTransferWindowEndsSlowDownload(t *testing.T) {
	lo := loopbackInterface(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		chunk := make([]byte, 1024)
		for {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			select {
			case <-r.Context().Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
	})
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := testProber(endpointsFor("slow", srv))
	p.TransferDuration = 300 * time.Millisecond

	res, err := p.Probe(context.Background(), lo)
	require.NoError(t, err)
	assert.Greater(t, res.DownloadBytes, int64(0))
	assert.Less(t, res.DownloadBytes, p.TransferBytes)
	assert.Greater(t, res.DownloadSpeed, 0.0)
}

func TestProbeConcurrentCallsAreIndependent(t *testing.T) {
	lo := loopbackInterface(t)
	srv := referenceServer(t, 2<<20)
	p := testProber(endpointsFor("local", srv))

	var wg sync.WaitGroup
	results := make([]SpeedTestResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = p.Probe(context.Background(), lo)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Greater(t, results[i].DownloadSpeed, 0.0)
		assert.Greater(t, results[i].UploadSpeed, 0.0)
		assert.False(t, math.IsInf(results[i].DownloadSpeed, 0))
		assert.False(t, math.IsInf(results[i].UploadSpeed, 0))
	}
}

func TestProbeNoEndpoints(t *testing.T) {
	lo := loopbackInterface(t)

	_, err := testProber().Probe(context.Background(), lo)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProbe))
}

func TestTransferMbps(t *testing.T) {
	tr := transfer{bytes: 1250000, elapsed: time.Second}
	assert.InDelta(t, 10.0, tr.mbps(), 1e-9)

	tr = transfer{bytes: 1, elapsed: 0}
	assert.False(t, math.IsInf(tr.mbps(), 0))
}

func TestOoklaDownloadURL(t *testing.T) {
	assert.Equal(t,
		"http://speedtest.example.net:8080/speedtest/random4000x4000.jpg",
		ooklaDownloadURL("http://speedtest.example.net:8080/speedtest/upload.php"))
}

func TestStaticEndpointsCopies(t *testing.T) {
	src := StaticEndpoints{{Name: "a"}}
	eps, err := src.Endpoints(context.Background(), nil)
	require.NoError(t, err)
	eps[0].Name = "b"
	assert.Equal(t, "a", src[0].Name)

	_, err = StaticEndpoints{}.Endpoints(context.Background(), nil)
	assert.Error(t, err)
}
