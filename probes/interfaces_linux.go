//go:build linux

package probes

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

var sysClassNet = "/sys/class/net"

func readInterfaces(ctx context.Context) ([]NetworkInterface, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, err
	}

	out := make([]NetworkInterface, 0, len(links))
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if link == nil {
			continue
		}
		attrs := link.Attrs()

		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			return nil, fmt.Errorf("list addresses of %s: %w", attrs.Name, err)
		}
		nets := make([]*net.IPNet, 0, len(addrs))
		for _, a := range addrs {
			nets = append(nets, a.IPNet)
		}
		ip, mask := primaryAddress(nets)

		out = append(out, NetworkInterface{
			Name:          attrs.Name,
			Description:   linkDescription(link),
			IPAddress:     ip,
			SubnetMask:    mask,
			MACAddress:    attrs.HardwareAddr.String(),
			Status:        linkStatus(attrs.OperState, attrs.RawFlags),
			Speed:         linkSpeed(attrs.Name),
			InterfaceType: linkType(attrs),
		})
	}
	return out, nil
}

// linkStatus maps the kernel operstate. Loopback and many virtual links
// report "unknown", so the IFF flags decide in that case.
func linkStatus(state netlink.LinkOperState, rawFlags uint32) InterfaceStatus {
	switch state {
	case netlink.OperUp:
		return InterfaceStatusUp
	case netlink.OperDown, netlink.OperLowerLayerDown, netlink.OperNotPresent, netlink.OperDormant:
		return InterfaceStatusDown
	}
	switch {
	case rawFlags&unix.IFF_UP == 0:
		return InterfaceStatusDown
	case rawFlags&unix.IFF_RUNNING != 0:
		return InterfaceStatusUp
	default:
		return InterfaceStatusUnknown
	}
}

func linkType(attrs *netlink.LinkAttrs) InterfaceType {
	switch {
	case attrs.Flags&net.FlagLoopback != 0 || attrs.EncapType == "loopback":
		return InterfaceTypeLoopback
	case isWireless(attrs.Name):
		return InterfaceTypeWireless
	case attrs.EncapType == "ether":
		return InterfaceTypeEthernet
	default:
		return InterfaceTypeOther
	}
}

func linkDescription(link netlink.Link) string {
	if alias := link.Attrs().Alias; alias != "" {
		return alias
	}
	if driver, err := os.Readlink(filepath.Join(sysClassNet, link.Attrs().Name, "device", "driver")); err == nil {
		return filepath.Base(driver)
	}
	return link.Type()
}

func isWireless(name string) bool {
	for _, p := range []string{"wireless", "phy80211"} {
		if _, err := os.Stat(filepath.Join(sysClassNet, name, p)); err == nil {
			return true
		}
	}
	return false
}

// linkSpeed reads the negotiated speed (Mbit/s) from sysfs and converts it to
// bytes per second. Down links and virtual devices fail the read or report -1.
func linkSpeed(name string) int64 {
	b, err := os.ReadFile(filepath.Join(sysClassNet, name, "speed"))
	if err != nil {
		return 0
	}
	mbit, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil || mbit <= 0 {
		return 0
	}
	return mbit * 1000 * 1000 / 8
}
