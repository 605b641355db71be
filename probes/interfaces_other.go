//go:build !linux

package probes

import (
	"context"
	"net"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

func readInterfaces(ctx context.Context) ([]NetworkInterface, error) {
	stats, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]NetworkInterface, 0, len(stats))
	for _, st := range stats {
		nets := make([]*net.IPNet, 0, len(st.Addrs))
		for _, a := range st.Addrs {
			ip, ipn, err := net.ParseCIDR(a.Addr)
			if err != nil {
				continue
			}
			ipn.IP = ip
			nets = append(nets, ipn)
		}
		ip, mask := primaryAddress(nets)

		out = append(out, NetworkInterface{
			Name:          st.Name,
			Description:   strings.Join(st.Flags, ","),
			IPAddress:     ip,
			SubnetMask:    mask,
			MACAddress:    st.HardwareAddr,
			Status:        flagStatus(st.Flags),
			InterfaceType: flagType(st.Name, st.HardwareAddr, st.Flags),
		})
	}
	return out, nil
}

func hasFlag(flags []string, f string) bool {
	for _, v := range flags {
		if v == f {
			return true
		}
	}
	return false
}

func flagStatus(flags []string) InterfaceStatus {
	if hasFlag(flags, "up") {
		return InterfaceStatusUp
	}
	if len(flags) == 0 {
		return InterfaceStatusUnknown
	}
	return InterfaceStatusDown
}

func flagType(name, mac string, flags []string) InterfaceType {
	lower := strings.ToLower(name)
	switch {
	case hasFlag(flags, "loopback"):
		return InterfaceTypeLoopback
	case strings.HasPrefix(lower, "wl"), strings.Contains(lower, "wi-fi"), strings.Contains(lower, "wireless"):
		return InterfaceTypeWireless
	case mac != "":
		return InterfaceTypeEthernet
	default:
		return InterfaceTypeOther
	}
}
