package openstack

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/extensions/layer3/floatingips"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/ports"
	"github.com/gophercloud/gophercloud/v2/pagination"
)

// floatingIPMu serializes pool address selection. Neutron will happily report
// the same DOWN address to two concurrent listers, so selection and
// association happen under one lock.
var floatingIPMu sync.Mutex

var (
	ErrFloatingIPInUse    = fmt.Errorf("configured floating IP is already associated")
	ErrFloatingIPNotFound = fmt.Errorf("configured floating IP does not exist")
	ErrNoServerPort       = fmt.Errorf("server has no network port to associate a floating IP with")
	ErrNoPoolNetwork      = fmt.Errorf("floating IP pool network not found")
)

// floatingIPResult records what attachFloatingIP did, so Create can stash it
// in the state bag and Destroy can undo exactly that much: a pool-allocated
// address is deleted on destroy, a caller-provided one merely disassociated.
type floatingIPResult struct {
	ID        string
	Address   string
	Allocated bool
}

// attachFloatingIP associates a floating IP with the server: the explicitly
// configured address when one is set, otherwise a free address from the
// configured pool, allocating a new one when the pool has none spare.
func (d *Driver) attachFloatingIP(ctx context.Context, serverID string) (*floatingIPResult, error) {
	log := clog.FromContext(ctx)
	client, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}

	portID, err := d.serverPort(ctx, serverID)
	if err != nil {
		return nil, err
	}

	if d.Config.FloatingIP != "" {
		fip, err := d.findFloatingIP(ctx, d.Config.FloatingIP)
		if err != nil {
			return nil, err
		}
		if fip.PortID != "" {
			return nil, fmt.Errorf("%w: %s -> port %s", ErrFloatingIPInUse, fip.FloatingIP, fip.PortID)
		}
		if _, err := floatingips.Update(ctx, client.Network, fip.ID, floatingips.UpdateOpts{
			PortID: &portID,
		}).Extract(); err != nil {
			return nil, fmt.Errorf("associating floating IP %s: %w", fip.FloatingIP, err)
		}
		log.Info("associated floating IP", "address", fip.FloatingIP, "server", serverID)
		return &floatingIPResult{ID: fip.ID, Address: fip.FloatingIP}, nil
	}

	netID, err := d.poolNetworkID(ctx, d.Config.FloatingIPPool)
	if err != nil {
		return nil, err
	}

	// Selection and association under one lock; see floatingIPMu.
	floatingIPMu.Lock()
	defer floatingIPMu.Unlock()

	free, err := d.listPoolFloatingIPs(ctx, netID)
	if err != nil {
		return nil, err
	}

	result := &floatingIPResult{}
	if fip := pickFreeFloatingIP(free); fip != nil {
		result.ID = fip.ID
		result.Address = fip.FloatingIP
		log.Info("reusing free floating IP from pool", "address", fip.FloatingIP, "pool", d.Config.FloatingIPPool)
	} else {
		created, err := floatingips.Create(ctx, client.Network, floatingips.CreateOpts{
			FloatingNetworkID: netID,
		}).Extract()
		if err != nil {
			return nil, fmt.Errorf("allocating floating IP from pool %q: %w", d.Config.FloatingIPPool, err)
		}
		result.ID = created.ID
		result.Address = created.FloatingIP
		result.Allocated = true
		log.Info("allocated floating IP from pool", "address", created.FloatingIP, "pool", d.Config.FloatingIPPool)
	}

	if _, err := floatingips.Update(ctx, client.Network, result.ID, floatingips.UpdateOpts{
		PortID: &portID,
	}).Extract(); err != nil {
		return nil, fmt.Errorf("associating floating IP %s: %w", result.Address, err)
	}
	log.Info("associated floating IP", "address", result.Address, "server", serverID)
	return result, nil
}

// releaseFloatingIP undoes attachFloatingIP. Addresses the driver allocated
// are deleted outright; pre-existing ones are only disassociated, their
// lifetime belongs to whoever allocated them.
func (d *Driver) releaseFloatingIP(ctx context.Context, fipID string, allocated bool) error {
	log := clog.FromContext(ctx)
	client, err := d.conn(ctx)
	if err != nil {
		return err
	}
	if allocated {
		log.Info("deleting floating IP", "id", fipID)
		if err := floatingips.Delete(ctx, client.Network, fipID).ExtractErr(); err != nil {
			return fmt.Errorf("deleting floating IP %s: %w", fipID, err)
		}
		return nil
	}
	log.Info("disassociating floating IP", "id", fipID)
	if _, err := floatingips.Update(ctx, client.Network, fipID, floatingips.UpdateOpts{
		PortID: nil,
	}).Extract(); err != nil {
		return fmt.Errorf("disassociating floating IP %s: %w", fipID, err)
	}
	return nil
}

// pickFreeFloatingIP returns the first unassociated, DOWN address, or nil.
func pickFreeFloatingIP(fips []floatingips.FloatingIP) *floatingips.FloatingIP {
	for i := range fips {
		if fips[i].PortID == "" && fips[i].Status != "ACTIVE" {
			return &fips[i]
		}
	}
	return nil
}

func (d *Driver) findFloatingIP(ctx context.Context, addr string) (*floatingips.FloatingIP, error) {
	client, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	page, err := floatingips.List(client.Network, floatingips.ListOpts{
		FloatingIP: addr,
	}).AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up floating IP %s: %w", addr, err)
	}
	fips, err := floatingips.ExtractFloatingIPs(page)
	if err != nil {
		return nil, fmt.Errorf("decoding floating IP listing: %w", err)
	}
	if len(fips) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFloatingIPNotFound, addr)
	}
	return &fips[0], nil
}

func (d *Driver) listPoolFloatingIPs(ctx context.Context, netID string) ([]floatingips.FloatingIP, error) {
	client, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	var all []floatingips.FloatingIP
	pager := floatingips.List(client.Network, floatingips.ListOpts{
		FloatingNetworkID: netID,
	})
	err = pager.EachPage(ctx, func(ctx context.Context, page pagination.Page) (bool, error) {
		fips, err := floatingips.ExtractFloatingIPs(page)
		if err != nil {
			return false, err
		}
		all = append(all, fips...)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing pool floating IPs: %w", err)
	}
	return all, nil
}

// serverPort returns the id of the server's first network port.
func (d *Driver) serverPort(ctx context.Context, serverID string) (string, error) {
	client, err := d.conn(ctx)
	if err != nil {
		return "", err
	}
	page, err := ports.List(client.Network, ports.ListOpts{
		DeviceID: serverID,
	}).AllPages(ctx)
	if err != nil {
		return "", fmt.Errorf("listing server ports: %w", err)
	}
	prts, err := ports.ExtractPorts(page)
	if err != nil {
		return "", fmt.Errorf("decoding port listing: %w", err)
	}
	if len(prts) == 0 {
		return "", fmt.Errorf("%w: server %s", ErrNoServerPort, serverID)
	}
	return prts[0].ID, nil
}

// poolNetworkID resolves the floating IP pool, given as an external network
// name or id, to the network id.
func (d *Driver) poolNetworkID(ctx context.Context, pool string) (string, error) {
	if _, err := uuid.Parse(pool); err == nil {
		return pool, nil
	}
	client, err := d.conn(ctx)
	if err != nil {
		return "", err
	}
	page, err := networks.List(client.Network, networks.ListOpts{
		Name: pool,
	}).AllPages(ctx)
	if err != nil {
		return "", fmt.Errorf("looking up pool network %q: %w", pool, err)
	}
	nets, err := networks.ExtractNetworks(page)
	if err != nil {
		return "", fmt.Errorf("decoding network listing: %w", err)
	}
	if len(nets) == 0 {
		return "", fmt.Errorf("%w: %q", ErrNoPoolNetwork, pool)
	}
	return nets[0].ID, nil
}
