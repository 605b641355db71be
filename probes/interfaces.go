package probes

import (
	"context"
	"fmt"
	"net"
	"strconv"

	log "github.com/sirupsen/logrus"
)

type InterfaceStatus string

const (
	InterfaceStatusUp      InterfaceStatus = "Up"
	InterfaceStatusDown    InterfaceStatus = "Down"
	InterfaceStatusUnknown InterfaceStatus = "Unknown"
)

type InterfaceType string

const (
	InterfaceTypeEthernet InterfaceType = "Ethernet"
	InterfaceTypeWireless InterfaceType = "Wireless"
	InterfaceTypeLoopback InterfaceType = "Loopback"
	InterfaceTypeOther    InterfaceType = "Other"
)

// NetworkInterface is the live state of one adapter at query time.
type NetworkInterface struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	IPAddress   string          `json:"ipAddress"`
	SubnetMask  string          `json:"subnetMask"`
	MACAddress  string          `json:"macAddress"`
	Status      InterfaceStatus `json:"status"`
	// Speed is the nominal link capacity in bytes per second, 0 when the
	// driver does not report it.
	Speed         int64         `json:"speed"`
	InterfaceType InterfaceType `json:"interfaceType"`
}

type InterfaceOptions struct {
	// UpOnly drops interfaces whose status is not Up.
	UpOnly bool
}

// ListInterfaces reads the OS interface table. It either returns every
// interface or fails with ErrEnumeration, never a partial list.
func ListInterfaces(ctx context.Context, opts InterfaceOptions) ([]NetworkInterface, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumeration, err)
	}
	raw, err := readInterfaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumeration, err)
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]NetworkInterface, 0, len(raw))
	for _, ni := range raw {
		if _, dup := seen[ni.Name]; dup {
			log.Warnf("duplicate interface name %q in interface table, keeping first", ni.Name)
			continue
		}
		seen[ni.Name] = struct{}{}
		if opts.UpOnly && ni.Status != InterfaceStatusUp {
			continue
		}
		out = append(out, ni)
	}

	log.Debugf("enumerated %d network interfaces", len(out))
	return out, nil
}

// primaryAddress picks the first IPv4 address, falling back to the first
// IPv6 one, and formats its mask.
func primaryAddress(addrs []*net.IPNet) (string, string) {
	var v6 *net.IPNet
	for _, a := range addrs {
		if a == nil || a.IP == nil {
			continue
		}
		if ip4 := a.IP.To4(); ip4 != nil {
			mask := a.Mask
			if len(mask) == net.IPv6len {
				mask = mask[12:]
			}
			return ip4.String(), net.IP(mask).String()
		}
		if v6 == nil {
			v6 = a
		}
	}
	if v6 == nil {
		return "", ""
	}
	ones, _ := v6.Mask.Size()
	return v6.IP.String(), "/" + strconv.Itoa(ones)
}

// interfaceAddress returns the address a throughput probe binds to.
func interfaceAddress(ifi *net.Interface) (net.IP, error) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, err
	}
	var v6 net.IP
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipn.IP.To4(); ip4 != nil {
			return ip4, nil
		}
		if v6 == nil && !ipn.IP.IsLinkLocalUnicast() {
			v6 = ipn.IP
		}
	}
	if v6 != nil {
		return v6, nil
	}
	return nil, fmt.Errorf("interface %s has no usable address", ifi.Name)
}
