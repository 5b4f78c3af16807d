package openstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawAddresses mirrors the decoded JSON shape Nova hands back in a server's
// Addresses field.
func rawAddresses() map[string]any {
	return map[string]any{
		"private": []any{
			map[string]any{
				"addr":            "10.0.0.5",
				"version":         float64(4),
				"OS-EXT-IPS:type": "fixed",
			},
			map[string]any{
				"addr":            "fd12::5",
				"version":         float64(6),
				"OS-EXT-IPS:type": "fixed",
			},
		},
		"public": []any{
			map[string]any{
				"addr":            "198.51.100.23",
				"version":         float64(4),
				"OS-EXT-IPS:type": "fixed",
			},
		},
	}
}

func TestSelectAddressPrefersFloating(t *testing.T) {
	raw := rawAddresses()
	raw["private"] = append(raw["private"].([]any), map[string]any{
		"addr":            "203.0.113.7",
		"version":         float64(4),
		"OS-EXT-IPS:type": "floating",
	})
	addr, err := selectAddress(raw, "")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", addr)
}

func TestSelectAddressNamedNetwork(t *testing.T) {
	addr, err := selectAddress(rawAddresses(), "private")
	require.NoError(t, err)
	// IPv4 wins over the fd12::5 entry on the same network.
	assert.Equal(t, "10.0.0.5", addr)

	_, err = selectAddress(rawAddresses(), "absent")
	require.ErrorIs(t, err, ErrNoAddress)
}

func TestSelectAddressPublicFallback(t *testing.T) {
	addr, err := selectAddress(rawAddresses(), "")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.23", addr)
}

func TestSelectAddressFixedFallback(t *testing.T) {
	raw := map[string]any{
		"internal": []any{
			map[string]any{
				"addr":            "192.168.7.4",
				"version":         float64(4),
				"OS-EXT-IPS:type": "fixed",
			},
		},
	}
	addr, err := selectAddress(raw, "")
	require.NoError(t, err)
	assert.Equal(t, "192.168.7.4", addr)
}

func TestSelectAddressIPv6Only(t *testing.T) {
	raw := map[string]any{
		"internal": []any{
			map[string]any{
				"addr":            "fd12::9",
				"version":         float64(6),
				"OS-EXT-IPS:type": "fixed",
			},
		},
	}
	addr, err := selectAddress(raw, "")
	require.NoError(t, err)
	assert.Equal(t, "fd12::9", addr)
}

func TestSelectAddressEmpty(t *testing.T) {
	_, err := selectAddress(map[string]any{}, "")
	require.ErrorIs(t, err, ErrNoAddress)

	// Garbage entries are skipped, not fatal.
	_, err = selectAddress(map[string]any{"net": "not-a-list"}, "")
	require.ErrorIs(t, err, ErrNoAddress)
}
