package api

import (
	"errors"
	"net"
	"net/http"

	"github.com/netwatcherio/netwatcher-diag/probes"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is served on /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// InterfaceSummary is the quick adapter overview served on /api/network/test.
type InterfaceSummary struct {
	TotalInterfaces int                `json:"totalInterfaces"`
	Interfaces      []InterfaceOverview `json:"interfaces"`
}

type InterfaceOverview struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Status      probes.InterfaceStatus `json:"status"`
	Type        probes.InterfaceType   `json:"type"`
	Speed       int64                  `json:"speed"`
	IsUp        bool                   `json:"isUp"`
	HasIPv4     bool                   `json:"hasIPv4"`
}

func summarize(ifaces []probes.NetworkInterface) InterfaceSummary {
	sum := InterfaceSummary{
		TotalInterfaces: len(ifaces),
		Interfaces:      make([]InterfaceOverview, 0, len(ifaces)),
	}
	for _, ni := range ifaces {
		// the primary address is IPv4 whenever the adapter has one
		ip := net.ParseIP(ni.IPAddress)
		sum.Interfaces = append(sum.Interfaces, InterfaceOverview{
			Name:        ni.Name,
			Description: ni.Description,
			Status:      ni.Status,
			Type:        ni.InterfaceType,
			Speed:       ni.Speed,
			IsUp:        ni.Status == probes.InterfaceStatusUp,
			HasIPv4:     ip != nil && ip.To4() != nil,
		})
	}
	return sum
}

const kindBadRequest = "BadRequestError"

func statusFor(err error) int {
	switch {
	case errors.Is(err, probes.ErrInterfaceNotFound):
		return http.StatusNotFound
	case errors.Is(err, probes.ErrProbeTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, probes.ErrProbe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sentinelFor maps an error kind from the wire back onto the probes sentinel.
func sentinelFor(kind string) error {
	switch kind {
	case "EnumerationError":
		return probes.ErrEnumeration
	case "InterfaceNotFoundError":
		return probes.ErrInterfaceNotFound
	case "ProbeTimeoutError":
		return probes.ErrProbeTimeout
	case "ProbeError":
		return probes.ErrProbe
	}
	return nil
}
