package probes

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProbeType string

const (
	ProbeType_INTERFACES  ProbeType = "INTERFACES"
	ProbeType_SPEEDTEST   ProbeType = "SPEEDTEST"
	ProbeType_URLANALYSIS ProbeType = "URL_ANALYSIS"
	ProbeType_NETWORKINFO ProbeType = "NETINFO"
)

// Probe is a single diagnostic request. Target is the interface name for
// SPEEDTEST, the raw URL for URL_ANALYSIS and a filter flag ("up", "public")
// for INTERFACES and NETINFO.
type Probe struct {
	ID        primitive.ObjectID `json:"id"`
	Type      ProbeType          `json:"type"`
	Target    string             `json:"target"`
	CreatedAt time.Time          `json:"createdAt"`
}

// ProbeData is the response envelope for a Probe.
type ProbeData struct {
	ID        primitive.ObjectID `json:"id"`
	ProbeID   primitive.ObjectID `json:"probe"`
	Type      ProbeType          `json:"type"`
	CreatedAt time.Time          `json:"createdAt"`
	Data      interface{}        `json:"data,omitempty"`
	Error     string             `json:"error,omitempty"`
	Message   string             `json:"message,omitempty"`
}

func (t ProbeType) Valid() bool {
	switch t {
	case ProbeType_INTERFACES, ProbeType_SPEEDTEST, ProbeType_URLANALYSIS, ProbeType_NETWORKINFO:
		return true
	}
	return false
}
