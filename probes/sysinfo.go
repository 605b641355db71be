package probes

import (
	"github.com/elastic/go-sysinfo"
)

type HostInfo struct {
	Architecture  string   `json:"architecture"`
	Hostname      string   `json:"name"`
	IPs           []string `json:"ip,omitempty"`
	KernelVersion string   `json:"kernel_version"`
	MACs          []string `json:"mac"`
	OS            OSInfo   `json:"os"`
	Timezone      string   `json:"timezone"`
	Containerized *bool    `json:"containerized,omitempty"`
}

type OSInfo struct {
	Type     string `json:"type"`
	Family   string `json:"family"`
	Platform string `json:"platform"`
	Name     string `json:"name"`
	Version  string `json:"version"`
}

func SystemInfo() (HostInfo, error) {
	host, err := sysinfo.Host()
	if err != nil {
		return HostInfo{}, err
	}
	info := host.Info()

	hi := HostInfo{
		Architecture:  info.Architecture,
		Hostname:      info.Hostname,
		IPs:           info.IPs,
		KernelVersion: info.KernelVersion,
		MACs:          info.MACs,
		Timezone:      info.Timezone,
		Containerized: info.Containerized,
	}
	if info.OS != nil {
		hi.OS = OSInfo{
			Type:     info.OS.Type,
			Family:   info.OS.Family,
			Platform: info.OS.Platform,
			Name:     info.OS.Name,
			Version:  info.OS.Version,
		}
	}
	return hi, nil
}
