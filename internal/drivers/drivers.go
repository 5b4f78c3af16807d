package drivers

import (
	"context"

	"github.com/harnesslab/openstack-driver/internal/state"
)

const (
	// LogAttributeKey is the key where output lines from provisioned instances
	// (SSH bootstrap output and the like) will be surfaced.
	LogAttributeKey = "driver_log"
)

// Provisioner is the lifecycle contract the host framework drives.
//
// The host hands the same state bag to every call and persists it in between,
// so whatever Create records (server id, hostname) is what Destroy gets back.
// Both calls must be safe to repeat: Create on a bag that already names a
// live server is a no-op, as is Destroy on a bag without one.
type Provisioner interface {
	// Create provisions the instance and records its identity in the bag.
	Create(context.Context, state.Bag) error
	// Destroy releases everything Create recorded and clears the bag.
	Destroy(context.Context, state.Bag) error
}
