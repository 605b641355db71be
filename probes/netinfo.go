package probes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackpal/gateway"
	"github.com/showwin/speedtest-go/speedtest"
	log "github.com/sirupsen/logrus"
)

type NetworkInfoResult struct {
	Host             HostInfo  `json:"host"`
	LocalAddress     string    `json:"localAddress,omitempty"`
	DefaultGateway   string    `json:"defaultGateway,omitempty"`
	DefaultInterface string    `json:"defaultInterface,omitempty"`
	PublicAddress    string    `json:"publicAddress,omitempty"`
	InternetProvider string    `json:"internetProvider,omitempty"`
	Lat              string    `json:"lat,omitempty"`
	Long             string    `json:"long,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// NetworkInfo summarizes the host and its default route. Gateway and public
// address lookups are best effort; only host information is required.
func NetworkInfo(ctx context.Context, withPublic bool) (NetworkInfoResult, error) {
	var n NetworkInfoResult

	host, err := SystemInfo()
	if err != nil {
		return n, fmt.Errorf("unable to read host information: %w", err)
	}
	n.Host = host

	if defaultGateway, err := gateway.DiscoverGateway(); err != nil {
		log.Warnf("could not discover local gateway address: %v", err)
	} else {
		n.DefaultGateway = defaultGateway.String()
	}

	if localAddr, err := gateway.DiscoverInterface(); err != nil {
		log.Warnf("could not discover local interface address: %v", err)
	} else {
		n.LocalAddress = localAddr.String()
		if ifi, err := interfaceByAddr(localAddr); err == nil {
			n.DefaultInterface = ifi.Name
		}
	}

	if withPublic {
		if err := fillPublicInfo(ctx, &n); err != nil {
			log.Warnf("unable to fetch general public network information: %v", err)
		}
	}

	n.Timestamp = time.Now().UTC()
	return n, nil
}

func fillPublicInfo(ctx context.Context, n *NetworkInfoResult) error {
	user, err := speedtest.New().FetchUserInfoContext(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return errors.New("empty user info")
	}
	n.PublicAddress = user.IP
	n.InternetProvider = user.Isp
	n.Lat = user.Lat
	n.Long = user.Lon
	return nil
}
