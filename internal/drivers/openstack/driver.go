package openstack

import (
	"context"
	"fmt"
)

// Driver provisions OpenStack instances on behalf of the host framework.
//
// A Driver is not safe for concurrent use; the host creates one per suite.
// The package-level floating IP mutex is what coordinates multiple Drivers
// sharing a pool.
type Driver struct {
	// Config is the flat configuration bag the host assembled for this suite.
	Config Config

	// client holds the authenticated service clients, built lazily on the
	// first call that actually needs the cloud.
	client *Client
}

// New validates 'cfg', applies defaults, and returns a Driver. No cloud calls
// are made until Create or Destroy.
func New(cfg Config) (*Driver, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid openstack driver config: %w", err)
	}
	return &Driver{Config: cfg}, nil
}

// conn returns the authenticated service clients, dialing the cloud on first
// use.
func (d *Driver) conn(ctx context.Context) (*Client, error) {
	if d.client != nil {
		return d.client, nil
	}
	client, err := NewClient(ctx, &d.Config)
	if err != nil {
		return nil, err
	}
	d.client = client
	return d.client, nil
}
