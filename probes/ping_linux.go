//go:build linux

package probes

import "github.com/syndtr/gocapability/capability"

// canUseRawICMP reports whether this process holds CAP_NET_RAW.
func canUseRawICMP() bool {
	caps, err := capability.NewPid2(0) // 0 == current process
	if err != nil {
		return false
	}
	if err := caps.Load(); err != nil {
		return false
	}
	return caps.Get(capability.EFFECTIVE, capability.CAP_NET_RAW)
}
