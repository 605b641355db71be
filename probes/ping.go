package probes

import (
	"context"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	log "github.com/sirupsen/logrus"
)

// ReachabilityProber answers whether a host responds at the network layer.
// It says nothing about services running on that host.
type ReachabilityProber interface {
	Reachable(ctx context.Context, ip net.IP) bool
}

type PingResult struct {
	// StartTime is the time that the check started at
	StartTimestamp time.Time `json:"start_timestamp"`
	StopTimestamp  time.Time `json:"stop_timestamp"`
	// PacketsRecv is the number of packets received.
	PacketsRecv int `json:"packets_recv"`
	// PacketsSent is the number of packets sent.
	PacketsSent int `json:"packets_sent"`
	// PacketLoss is the percentage of packets lost.
	PacketLoss float64 `json:"packet_loss"`
	// Addr is the string address of the host being pinged.
	Addr string `json:"addr"`
	// MinRtt is the minimum round-trip time sent via this pinger.
	MinRtt time.Duration `json:"min_rtt"`
	// MaxRtt is the maximum round-trip time sent via this pinger.
	MaxRtt time.Duration `json:"max_rtt"`
	// AvgRtt is the average round-trip time sent via this pinger.
	AvgRtt time.Duration `json:"avg_rtt"`
}

// ICMPProber sends ICMP echo requests with pro-bing.
type ICMPProber struct {
	Count    int
	Interval time.Duration
	Timeout  time.Duration
	// Privileged uses raw ICMP sockets instead of unprivileged UDP ping.
	Privileged bool
}

func NewICMPProber(count int, timeout time.Duration) *ICMPProber {
	if count <= 0 {
		count = 3
	}
	return &ICMPProber{
		Count:      count,
		Interval:   250 * time.Millisecond,
		Timeout:    timeout,
		Privileged: canUseRawICMP(),
	}
}

func (p *ICMPProber) Reachable(ctx context.Context, ip net.IP) bool {
	res, err := p.Ping(ctx, ip)
	if err != nil {
		log.Debugf("icmp probe of %s failed: %v", ip, err)
		return false
	}
	return res.PacketsRecv > 0
}

// Ping blocks until Count replies arrive, Timeout elapses or ctx is done.
func (p *ICMPProber) Ping(ctx context.Context, ip net.IP) (PingResult, error) {
	if err := ctx.Err(); err != nil {
		return PingResult{}, err
	}
	startTime := time.Now()

	pinger, err := probing.NewPinger(ip.String())
	if err != nil {
		return PingResult{}, err
	}
	pinger.Count = p.Count
	pinger.Interval = p.Interval
	pinger.Timeout = p.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < pinger.Timeout || pinger.Timeout <= 0 {
			pinger.Timeout = left
		}
	}
	pinger.SetPrivileged(p.Privileged)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()
	err = pinger.Run() // Blocks until finished.
	close(done)
	if err != nil {
		return PingResult{}, err
	}

	stats := pinger.Statistics()
	return PingResult{
		StartTimestamp: startTime,
		StopTimestamp:  time.Now(),
		PacketsRecv:    stats.PacketsRecv,
		PacketsSent:    stats.PacketsSent,
		PacketLoss:     stats.PacketLoss,
		Addr:           stats.Addr,
		MinRtt:         stats.MinRtt,
		MaxRtt:         stats.MaxRtt,
		AvgRtt:         stats.AvgRtt,
	}, nil
}
