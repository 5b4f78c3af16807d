package openstack

import (
	"context"

	"github.com/harnesslab/openstack-driver/internal/log"
	"github.com/harnesslab/openstack-driver/internal/state"
)

func (d *Driver) Destroy(ctx context.Context, s state.Bag) error {
	ctx = log.With(ctx, "driver", "openstack")

	if s.String(state.KeyServerID) == "" && !s.Bool(keyKeyPairGenerated) {
		log.Info(ctx, "no server recorded, nothing to destroy")
		return nil
	}

	if _, err := d.conn(ctx); err != nil {
		return err
	}

	// Destructors are pushed in creation order; the stack runs them in
	// reverse, so the floating IP goes before the server it hangs off.
	var stk stack
	if s.Bool(keyKeyPairGenerated) {
		name := s.String(keyKeyPairName)
		path := s.String(keyPrivateKeyPath)
		stk.Push(func(ctx context.Context) error {
			return d.deleteKeyPair(ctx, name, path)
		})
	}
	if id := s.String(state.KeyServerID); id != "" {
		stk.Push(func(ctx context.Context) error {
			return d.deleteServer(ctx, id)
		})
	}
	if fipID := s.String(keyFloatingIPID); fipID != "" {
		allocated := s.Bool(keyFloatingIPAllocated)
		stk.Push(func(ctx context.Context) error {
			return d.releaseFloatingIP(ctx, fipID, allocated)
		})
	}

	if err := stk.Destroy(ctx); err != nil {
		// Keep the bag intact so a retried Destroy can finish the job.
		return err
	}

	for _, key := range []string{
		state.KeyServerID,
		state.KeyHostname,
		keyKeyPairName,
		keyKeyPairGenerated,
		keyPrivateKeyPath,
		keyFloatingIPID,
		keyFloatingIPAllocated,
	} {
		s.Delete(key)
	}
	log.Info(ctx, "destroy complete")
	return nil
}
