package netif

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldSkipRecognizesVPNAndContainerPrefixes(t *testing.T) {
	skip := []string{"utun0", "tun0", "ppp0", "wg0", "tailscale0", "wireguard0", "veth1234", "br-abcdef", "docker0"}
	for _, name := range skip {
		assert.True(t, shouldSkip(name), "expected %q to be skipped", name)
	}

	keep := []string{"eth0", "en0", "wlan0", "enp3s0"}
	for _, name := range keep {
		assert.False(t, shouldSkip(name), "expected %q not to be skipped", name)
	}
}

func TestUsableRejectsDownLoopbackAndNonMulticast(t *testing.T) {
	assert.False(t, usable(net.Interface{Name: "eth0", Flags: 0}))
	assert.False(t, usable(net.Interface{Name: "lo", Flags: net.FlagUp | net.FlagMulticast | net.FlagLoopback}))
	assert.False(t, usable(net.Interface{Name: "eth0", Flags: net.FlagUp}))
	assert.True(t, usable(net.Interface{Name: "eth0", Flags: net.FlagUp | net.FlagMulticast}))
}

func TestIsZeroMAC(t *testing.T) {
	assert.True(t, isZeroMAC(net.HardwareAddr{0, 0, 0, 0, 0, 0}))
	assert.False(t, isZeroMAC(net.HardwareAddr{0, 0, 0, 0, 0, 1}))
}

func TestEnumerateDoesNotError(t *testing.T) {
	// Enumerate must succeed on any host even if it finds zero usable
	// interfaces (e.g. a sandboxed CI runner with only loopback).
	_, err := Enumerate()
	require.NoError(t, err)
}

func TestLowestMACOrdersBytewiseAcrossCandidates(t *testing.T) {
	candidates := map[string]net.HardwareAddr{
		"02:00:00:00:00:02": {0x02, 0, 0, 0, 0, 0x02},
		"02:00:00:00:00:01": {0x02, 0, 0, 0, 0, 0x01},
		"02:00:00:00:00:0a": {0x02, 0, 0, 0, 0, 0x0a},
	}
	var lowest net.HardwareAddr
	var lowestStr string
	for str, mac := range candidates {
		if lowestStr == "" || str < lowestStr {
			lowestStr = str
			lowest = mac
		}
	}
	assert.Equal(t, net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}, lowest)
}
