package probes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/showwin/speedtest-go/speedtest"
)

// Endpoint is a reference server pair used for one throughput probe.
type Endpoint struct {
	Name        string `json:"name"`
	DownloadURL string `json:"downloadUrl"`
	UploadURL   string `json:"uploadUrl"`
}

// EndpointSource yields the reference endpoints for a probe, in preference
// order. client is already bound to the probed interface.
type EndpointSource interface {
	Endpoints(ctx context.Context, client *http.Client) ([]Endpoint, error)
}

type StaticEndpoints []Endpoint

var DefaultEndpoints = StaticEndpoints{
	{
		Name:        "speed.cloudflare.com",
		DownloadURL: "https://speed.cloudflare.com/__down?bytes=25000000",
		UploadURL:   "https://speed.cloudflare.com/__up",
	},
}

func (s StaticEndpoints) Endpoints(ctx context.Context, _ *http.Client) ([]Endpoint, error) {
	if len(s) == 0 {
		return nil, errors.New("no static endpoints configured")
	}
	out := make([]Endpoint, len(s))
	copy(out, s)
	return out, nil
}

// OoklaEndpoints discovers the nearest speedtest.net servers.
type OoklaEndpoints struct {
	// ServerIDs pins specific servers; empty picks the closest ones.
	ServerIDs []int
	// Max caps the number of servers tried, 0 means 3.
	Max int
}

func (o OoklaEndpoints) Endpoints(ctx context.Context, client *http.Client) ([]Endpoint, error) {
	st := speedtest.New(speedtest.WithDoer(client))

	serverList, err := st.FetchServerListContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch speedtest server list: %w", err)
	}
	targets, err := serverList.FindServer(o.ServerIDs)
	if err != nil {
		return nil, fmt.Errorf("select speedtest server: %w", err)
	}
	if len(targets) <= 0 {
		return nil, errors.New("unable to reach Ookla")
	}

	max := o.Max
	if max <= 0 {
		max = 3
	}
	out := make([]Endpoint, 0, max)
	for _, s := range targets {
		if len(out) == max {
			break
		}
		out = append(out, Endpoint{
			Name:        fmt.Sprintf("%s (%s)", s.Sponsor, s.Name),
			DownloadURL: ooklaDownloadURL(s.URL),
			UploadURL:   s.URL,
		})
	}
	return out, nil
}

// ooklaDownloadURL derives the bulk download object from a server's upload.php URL.
func ooklaDownloadURL(uploadURL string) string {
	base := strings.Split(uploadURL, "/upload.php")[0]
	return base + "/random4000x4000.jpg"
}
