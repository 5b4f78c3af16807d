package openstack

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/keypairs"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/v2/pagination"
)

const serverPollInterval = 2 * time.Second

var (
	ErrServerBuildFailed = fmt.Errorf("server entered ERROR state during build")
	ErrNoNetwork         = fmt.Errorf("configured network not found")
)

// bootServer submits the boot request and returns the created server. The
// returned server is still building; callers wait with waitForActive.
func (d *Driver) bootServer(ctx context.Context, name, imageID, flavorID, keyName string) (*servers.Server, error) {
	log := clog.FromContext(ctx)
	client, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}

	opts := servers.CreateOpts{
		Name:             name,
		ImageRef:         imageID,
		FlavorRef:        flavorID,
		SecurityGroups:   d.Config.SecurityGroups,
		AvailabilityZone: d.Config.AvailabilityZone,
		Metadata:         d.Config.Metadata,
	}
	if d.Config.ConfigDrive {
		t := true
		opts.ConfigDrive = &t
	}
	if d.Config.UserDataPath != "" {
		userData, err := os.ReadFile(d.Config.UserDataPath)
		if err != nil {
			return nil, fmt.Errorf("reading user data file: %w", err)
		}
		opts.UserData = userData
	}
	if len(d.Config.Networks) > 0 {
		nets, err := d.resolveNetworks(ctx)
		if err != nil {
			return nil, err
		}
		opts.Networks = nets
	}

	var builder servers.CreateOptsBuilder = opts
	if keyName != "" {
		builder = keypairs.CreateOptsExt{
			CreateOptsBuilder: builder,
			KeyName:           keyName,
		}
	}

	server, err := servers.Create(ctx, client.Compute, builder, nil).Extract()
	if err != nil {
		return nil, fmt.Errorf("booting server %q: %w", name, err)
	}
	log.Info("server boot requested", "id", server.ID, "name", name)
	return server, nil
}

// resolveNetworks maps the configured network names/ids to boot attachments.
func (d *Driver) resolveNetworks(ctx context.Context) ([]servers.Network, error) {
	client, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]servers.Network, 0, len(d.Config.Networks))
	for _, ref := range d.Config.Networks {
		if _, err := uuid.Parse(ref); err == nil {
			out = append(out, servers.Network{UUID: ref})
			continue
		}
		page, err := networks.List(client.Network, networks.ListOpts{Name: ref}).AllPages(ctx)
		if err != nil {
			return nil, fmt.Errorf("looking up network %q: %w", ref, err)
		}
		nets, err := networks.ExtractNetworks(page)
		if err != nil {
			return nil, fmt.Errorf("decoding network listing: %w", err)
		}
		if len(nets) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoNetwork, ref)
		}
		out = append(out, servers.Network{UUID: nets[0].ID})
	}
	return out, nil
}

// waitForActive polls the server until it reaches ACTIVE, failing fast when
// the build lands in ERROR. The configured server wait bounds the poll.
func (d *Driver) waitForActive(ctx context.Context, serverID string) (*servers.Server, error) {
	log := clog.FromContext(ctx).With("server", serverID)
	client, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.Config.ServerWait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for server %s to become ACTIVE: %w", serverID, ctx.Err())
		case <-time.After(serverPollInterval):
			server, err := servers.Get(ctx, client.Compute, serverID).Extract()
			if err != nil {
				return nil, fmt.Errorf("polling server %s: %w", serverID, err)
			}
			switch server.Status {
			case "ACTIVE":
				log.Info("server is ACTIVE")
				return server, nil
			case "ERROR":
				if server.Fault.Message != "" {
					return nil, fmt.Errorf("%w: %s", ErrServerBuildFailed, server.Fault.Message)
				}
				return nil, ErrServerBuildFailed
			default:
				log.Debug("server still building", "status", server.Status)
			}
		}
	}
}

// deleteServer deletes the server and waits for it to disappear, so destroy
// does not race the port and floating IP cleanup behind it. A server already
// gone is fine.
func (d *Driver) deleteServer(ctx context.Context, serverID string) error {
	log := clog.FromContext(ctx).With("server", serverID)
	client, err := d.conn(ctx)
	if err != nil {
		return err
	}

	log.Info("deleting server")
	if err := servers.Delete(ctx, client.Compute, serverID).ExtractErr(); err != nil {
		if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
			log.Info("server already gone")
			return nil
		}
		return fmt.Errorf("deleting server %s: %w", serverID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.Config.ServerWait)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for server %s to be deleted: %w", serverID, ctx.Err())
		case <-time.After(serverPollInterval):
			_, err := servers.Get(ctx, client.Compute, serverID).Extract()
			if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
				log.Info("server deleted")
				return nil
			}
			if err != nil {
				return fmt.Errorf("polling deleted server %s: %w", serverID, err)
			}
			log.Debug("server still deleting")
		}
	}
}

// Servers rolls up the paginated server listing, optionally filtered by a
// name prefix; the CLI uses it to answer "what did we leak".
func (d *Driver) Servers(ctx context.Context, namePrefix string) ([]servers.Server, error) {
	client, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	var all []servers.Server
	pager := servers.List(client.Compute, servers.ListOpts{Name: namePrefix})
	err = pager.EachPage(ctx, func(ctx context.Context, page pagination.Page) (bool, error) {
		list, err := servers.ExtractServers(page)
		if err != nil {
			return false, err
		}
		all = append(all, list...)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	return all, nil
}
