package openstack

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/harnesslab/openstack-driver/internal/log"
	"github.com/harnesslab/openstack-driver/internal/state"
)

// State keys the driver owns beyond the two well-known ones. They are
// recorded as each resource comes into being, so a Create that fails halfway
// leaves enough in the bag for Destroy to clean up.
const (
	keyKeyPairName         = "keypair_name"
	keyKeyPairGenerated    = "keypair_generated"
	keyPrivateKeyPath      = "private_key_path"
	keyFloatingIPID        = "floating_ip_id"
	keyFloatingIPAllocated = "floating_ip_allocated"
)

func (d *Driver) Create(ctx context.Context, s state.Bag) error {
	ctx = log.With(ctx, "driver", "openstack")

	// Create must be repeatable; a bag that already names a server means a
	// previous call got all the way through.
	if id := s.String(state.KeyServerID); id != "" {
		log.Info(ctx, "server already provisioned, nothing to do", "id", id)
		return nil
	}

	name := d.Config.serverName()
	ctx, closeLogs := log.SetupInstanceLogging(ctx, d.Config.LogsDirectory, name)
	defer closeLogs()

	// Dial the cloud up front; the resolvers below share the clients from two
	// goroutines and must not race the lazy init.
	if _, err := d.conn(ctx); err != nil {
		return err
	}

	// Image and flavor resolution are independent listings.
	var imageID, flavorID string
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		imageID, err = d.resolveImage(egctx)
		return err
	})
	eg.Go(func() error {
		var err error
		flavorID, err = d.resolveFlavor(egctx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	kp, err := d.ensureKeyPair(ctx, name)
	if err != nil {
		return fmt.Errorf("preparing key pair: %w", err)
	}
	if kp.Generated {
		s.Set(keyKeyPairName, kp.Name)
		s.Set(keyKeyPairGenerated, true)
		if kp.OwnedFile {
			// Only a key file the driver wrote itself gets removed on destroy.
			s.Set(keyPrivateKeyPath, kp.Path)
		}
	}

	server, err := d.bootServer(ctx, name, imageID, flavorID, kp.Name)
	if err != nil {
		return err
	}
	s.Set(state.KeyServerID, server.ID)

	server, err = d.waitForActive(ctx, server.ID)
	if err != nil {
		return err
	}

	var hostname string
	if d.Config.FloatingIP != "" || d.Config.FloatingIPPool != "" {
		fip, err := d.attachFloatingIP(ctx, server.ID)
		if err != nil {
			return err
		}
		s.Set(keyFloatingIPID, fip.ID)
		if fip.Allocated {
			s.Set(keyFloatingIPAllocated, true)
		}
		hostname = fip.Address
	} else {
		hostname, err = selectAddress(server.Addresses, d.Config.NetworkName)
		if err != nil {
			return err
		}
	}
	s.Set(state.KeyHostname, hostname)
	log.Info(ctx, "server provisioned", "id", server.ID, "hostname", hostname)

	if err := d.bootstrapSSH(ctx, hostname, kp); err != nil {
		return fmt.Errorf("bootstrapping SSH access: %w", err)
	}
	log.Info(ctx, "instance is ready", "hostname", hostname)
	return nil
}
