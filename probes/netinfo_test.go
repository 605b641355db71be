package probes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemInfo(t *testing.T) {
	hi, err := SystemInfo()
	require.NoError(t, err)
	assert.NotEmpty(t, hi.Hostname)
	assert.NotEmpty(t, hi.Architecture)
}

func TestNetworkInfoWithoutPublic(t *testing.T) {
	n, err := NetworkInfo(context.Background(), false)
	require.NoError(t, err)
	assert.NotEmpty(t, n.Host.Hostname)
	assert.Empty(t, n.PublicAddress)
	assert.False(t, n.Timestamp.IsZero())
}
