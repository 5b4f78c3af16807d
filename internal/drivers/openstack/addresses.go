package openstack

import (
	"fmt"
)

var ErrNoAddress = fmt.Errorf("server has no usable IP address")

// address is one entry of a server's per-network address listing, decoded
// from the raw JSON shape Nova returns.
type address struct {
	network string
	addr    string
	version int
	kind    string // "fixed" or "floating"
}

// parseAddresses flattens a server's Addresses field. Nova returns it as a
// map of network name to a list of loosely typed address objects, so every
// field comes out of a checked type assertion.
func parseAddresses(raw map[string]any) []address {
	var out []address
	for network, entries := range raw {
		list, ok := entries.([]any)
		if !ok {
			continue
		}
		for _, entry := range list {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			a := address{network: network}
			a.addr, _ = m["addr"].(string)
			if v, ok := m["version"].(float64); ok {
				a.version = int(v)
			}
			a.kind, _ = m["OS-EXT-IPS:type"].(string)
			if a.addr != "" {
				out = append(out, a)
			}
		}
	}
	return out
}

// selectAddress picks the hostname the host framework should connect to:
//
//  1. an address on the explicitly named network, when one is configured
//  2. any floating address
//  3. an address on a network named "public"
//  4. any fixed address
//
// Within each step IPv4 beats IPv6, since v6 reachability from the
// orchestration host is far from a given.
func selectAddress(raw map[string]any, network string) (string, error) {
	addrs := parseAddresses(raw)
	if len(addrs) == 0 {
		return "", ErrNoAddress
	}

	pick := func(match func(address) bool) string {
		var v6 string
		for _, a := range addrs {
			if !match(a) {
				continue
			}
			if a.version != 6 {
				return a.addr
			}
			if v6 == "" {
				v6 = a.addr
			}
		}
		return v6
	}

	if network != "" {
		if addr := pick(func(a address) bool { return a.network == network }); addr != "" {
			return addr, nil
		}
		return "", fmt.Errorf("%w: no address on network %q", ErrNoAddress, network)
	}
	if addr := pick(func(a address) bool { return a.kind == "floating" }); addr != "" {
		return addr, nil
	}
	if addr := pick(func(a address) bool { return a.network == "public" }); addr != "" {
		return addr, nil
	}
	if addr := pick(func(a address) bool { return true }); addr != "" {
		return addr, nil
	}
	return "", ErrNoAddress
}
