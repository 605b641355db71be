//go:build !linux

package probes

import "runtime"

// Windows only supports privileged ICMP sockets; elsewhere fall back to UDP ping.
func canUseRawICMP() bool {
	return runtime.GOOS == "windows"
}
