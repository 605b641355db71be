package probes

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewICMPProberDefaults(t *testing.T) {
	p := NewICMPProber(0, 2*time.Second)
	assert.Equal(t, 3, p.Count)
	assert.Equal(t, 2*time.Second, p.Timeout)
	assert.Greater(t, p.Interval, time.Duration(0))
}

func TestReachableCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewICMPProber(1, time.Second)
	assert.False(t, p.Reachable(ctx, net.IPv4(127, 0, 0, 1)))

	_, err := p.Ping(ctx, net.IPv4(127, 0, 0, 1))
	require.Error(t, err)
}
