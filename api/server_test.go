package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwatcherio/netwatcher-diag/probes"
	"github.com/netwatcherio/netwatcher-diag/workers"
)

type fakeSpeed struct{}

func (fakeSpeed) Probe(ctx context.Context, name string) (probes.SpeedTestResult, error) {
	switch name {
	case "", "eth0":
		if name == "" {
			name = "eth0"
		}
		return probes.SpeedTestResult{Interface: name, DownloadSpeed: 94.2, UploadSpeed: 11.8}, nil
	case "slow0":
		return probes.SpeedTestResult{}, fmt.Errorf("%w: deadline", probes.ErrProbeTimeout)
	case "dead0":
		return probes.SpeedTestResult{}, fmt.Errorf("%w: connection refused", probes.ErrProbe)
	}
	return probes.SpeedTestResult{}, fmt.Errorf("%w: %s", probes.ErrInterfaceNotFound, name)
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(ctx context.Context, raw string) probes.URLAnalysisResult {
	details, err := probes.ParseURL(raw)
	if err != nil {
		return probes.URLAnalysisResult{OriginalURL: raw, ValidationError: err.Error()}
	}
	details.DNSRecords = []string{"93.184.216.34"}
	return probes.URLAnalysisResult{OriginalURL: raw, IsValid: true, URLDetails: details}
}

func newTestServer(t *testing.T, listErr error) (*httptest.Server, Client) {
	t.Helper()
	d := workers.NewDispatcher(fakeSpeed{}, fakeAnalyzer{})
	d.ListInterfaces = func(ctx context.Context, opts probes.InterfaceOptions) ([]probes.NetworkInterface, error) {
		if listErr != nil {
			return nil, listErr
		}
		all := []probes.NetworkInterface{
			{Name: "lo", Status: probes.InterfaceStatusUp, InterfaceType: probes.InterfaceTypeLoopback, IPAddress: "127.0.0.1"},
			{Name: "eth1", Status: probes.InterfaceStatusDown, InterfaceType: probes.InterfaceTypeEthernet, Speed: 125000000, IPAddress: "fe80::1"},
		}
		if opts.UpOnly {
			return all[:1], nil
		}
		return all, nil
	}
	d.NetworkInfo = func(ctx context.Context, withPublic bool) (probes.NetworkInfoResult, error) {
		n := probes.NetworkInfoResult{Host: probes.HostInfo{Hostname: "box"}, DefaultGateway: "192.168.1.1"}
		if withPublic {
			n.PublicAddress = "203.0.113.7"
		}
		return n, nil
	}

	app, err := NewServer(":0", "test", d).Handler()
	require.NoError(t, err)
	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)

	cfg := NewClientConfig()
	cfg.APIHost = srv.URL
	return srv, NewClient(cfg)
}

func TestInterfacesEndpoint(t *testing.T) {
	_, c := newTestServer(t, nil)

	ifaces, err := c.Interfaces(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, ifaces, 2)
	assert.Equal(t, int64(125000000), ifaces[1].Speed)

	ifaces, err = c.Interfaces(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, ifaces, 1)
}

func TestInterfacesEnumerationError(t *testing.T) {
	srv, c := newTestServer(t, fmt.Errorf("%w: netlink socket", probes.ErrEnumeration))

	resp, err := http.Get(srv.URL + "/api/network/interfaces")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "EnumerationError", body.Error)

	_, err = c.Interfaces(context.Background(), false)
	assert.True(t, errors.Is(err, probes.ErrEnumeration))
}

func TestSpeedTestEndpoint(t *testing.T) {
	srv, c := newTestServer(t, nil)

	res, err := c.SpeedTest(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "eth0", res.Interface)
	assert.Equal(t, 94.2, res.DownloadSpeed)

	tests := []struct {
		iface  string
		status int
		target error
	}{
		{"wlan9", http.StatusNotFound, probes.ErrInterfaceNotFound},
		{"slow0", http.StatusGatewayTimeout, probes.ErrProbeTimeout},
		{"dead0", http.StatusBadGateway, probes.ErrProbe},
	}
	for _, tt := range tests {
		t.Run(tt.iface, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/api/network/test-speed/" + tt.iface)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			_, err = c.SpeedTest(context.Background(), tt.iface)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.True(t, errors.Is(err, tt.target))
		})
	}
}

func TestAnalyzeURLEndpoint(t *testing.T) {
	srv, c := newTestServer(t, nil)

	res, err := c.AnalyzeURL(context.Background(), "https://user@example.com:8443/p?q=1#top")
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	require.NotNil(t, res.URLDetails)
	assert.Equal(t, "example.com:8443", res.Authority)
	assert.Equal(t, []string{"93.184.216.34"}, res.DNSRecords)

	res, err = c.AnalyzeURL(context.Background(), "http://[::1")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Nil(t, res.URLDetails)
	assert.NotEmpty(t, res.ValidationError)

	resp, err := http.Get(srv.URL + "/api/network/analyze-url")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNetworkInfoEndpoint(t *testing.T) {
	_, c := newTestServer(t, nil)

	n, err := c.NetworkInfo(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "box", n.Host.Hostname)
	assert.Equal(t, "203.0.113.7", n.PublicAddress)

	n, err = c.NetworkInfo(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, n.PublicAddress)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var h HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	resp.Body.Close()
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "test", h.Version)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInterfaceSummaryEndpoint(t *testing.T) {
	_, c := newTestServer(t, nil)

	sum, err := c.InterfaceSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalInterfaces)
	require.Len(t, sum.Interfaces, 2)

	assert.True(t, sum.Interfaces[0].IsUp)
	assert.True(t, sum.Interfaces[0].HasIPv4)
	assert.False(t, sum.Interfaces[1].IsUp)
	assert.False(t, sum.Interfaces[1].HasIPv4)
	assert.Equal(t, int64(125000000), sum.Interfaces[1].Speed)
}
