package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/netwatcherio/netwatcher-diag/probes"
)

// ClientConfig object used for client creation
type ClientConfig struct {
	APIHost     string
	HTTPTimeout time.Duration
	DialTimeout time.Duration
	TLSTimeout  time.Duration
}

// NewClientConfig returns a config pointing at a local diagnostics server.
func NewClientConfig() ClientConfig {
	return ClientConfig{
		APIHost: "http://localhost:8080",
		// throughput probes run for up to a minute server side
		HTTPTimeout: 90 * time.Second,
		DialTimeout: 5 * time.Second,
		TLSTimeout:  5 * time.Second,
	}
}

// Client talks to the diagnostics HTTP API.
type Client struct {
	config ClientConfig
	http   *http.Client
}

func NewClient(config ClientConfig) Client {
	return Client{
		config: config,
		http: &http.Client{
			Timeout: config.HTTPTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: config.DialTimeout,
				}).DialContext,
				TLSHandshakeTimeout: config.TLSTimeout,
			},
		},
	}
}

// APIError is a non-2xx answer. It unwraps to the matching probes sentinel
// so callers can use errors.Is the same way as against the probes package.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d %s: %s", e.StatusCode, e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return sentinelFor(e.Kind)
}

// Request executes a GET against endpoint and decodes the JSON body into response.
func (c Client) Request(ctx context.Context, endpoint string, query url.Values, response interface{}) error {
	u, err := url.Parse(c.config.APIHost)
	if err != nil {
		return fmt.Errorf("url.Parse(): %v", err)
	}
	u.Path = path.Join(u.Path, endpoint)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("http.NewRequest(): %v", err)
	}
	req.Header.Add("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		var er ErrorResponse
		if json.Unmarshal(body, &er) == nil && er.Error != "" {
			apiErr.Kind = er.Error
			apiErr.Message = er.Message
		}
		return apiErr
	}

	if response != nil && len(body) > 0 {
		if err := json.Unmarshal(body, response); err != nil {
			return fmt.Errorf("%v \n%s", err, string(body))
		}
	}
	return nil
}

func (c Client) Interfaces(ctx context.Context, upOnly bool) ([]probes.NetworkInterface, error) {
	q := url.Values{}
	if upOnly {
		q.Set("up", "true")
	}
	var out []probes.NetworkInterface
	err := c.Request(ctx, "/api/network/interfaces", q, &out)
	return out, err
}

func (c Client) InterfaceSummary(ctx context.Context) (InterfaceSummary, error) {
	var out InterfaceSummary
	err := c.Request(ctx, "/api/network/test", nil, &out)
	return out, err
}

// SpeedTest probes interfaceName, or the default route interface when empty.
func (c Client) SpeedTest(ctx context.Context, interfaceName string) (probes.SpeedTestResult, error) {
	endpoint := "/api/network/test-speed"
	if interfaceName != "" {
		endpoint += "/" + interfaceName
	}
	var out probes.SpeedTestResult
	err := c.Request(ctx, endpoint, nil, &out)
	return out, err
}

func (c Client) AnalyzeURL(ctx context.Context, rawURL string) (probes.URLAnalysisResult, error) {
	var out probes.URLAnalysisResult
	err := c.Request(ctx, "/api/network/analyze-url", url.Values{"url": {rawURL}}, &out)
	return out, err
}

func (c Client) NetworkInfo(ctx context.Context, withPublic bool) (probes.NetworkInfoResult, error) {
	var out probes.NetworkInfoResult
	err := c.Request(ctx, "/api/network/info", url.Values{"public": {strconv.FormatBool(withPublic)}}, &out)
	return out, err
}
