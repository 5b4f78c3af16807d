package openstack

import (
	"context"
	"fmt"
	"regexp"

	"github.com/chainguard-dev/clog"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/v2/pagination"
)

var ErrNoFlavor = fmt.Errorf("found no flavor matching the configured reference")

// resolveFlavor turns the configured flavor reference into a flavor id, with
// the same id / exact name / regexp fallthrough as resolveImage.
func (d *Driver) resolveFlavor(ctx context.Context) (string, error) {
	client, err := d.conn(ctx)
	if err != nil {
		return "", err
	}

	var all []flavors.Flavor
	pager := flavors.ListDetail(client.Compute, flavors.ListOpts{})
	err = pager.EachPage(ctx, func(ctx context.Context, page pagination.Page) (bool, error) {
		flavorList, err := flavors.ExtractFlavors(page)
		if err != nil {
			return false, err
		}
		all = append(all, flavorList...)
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("listing flavors: %w", err)
	}

	flavor, err := matchFlavor(all, d.Config.FlavorRef)
	if err != nil {
		return "", err
	}
	clog.FromContext(ctx).Info("resolved flavor", "ref", d.Config.FlavorRef, "id", flavor.ID, "name", flavor.Name)
	return flavor.ID, nil
}

// matchFlavor scans 'flvs' for the flavor referenced by 'ref': first by id,
// then by exact name, then treating 'ref' as a regular expression. The regex
// case prefers the smallest match (RAM, then VCPUs) so a loose pattern lands
// on the cheapest satisfying flavor.
func matchFlavor(flvs []flavors.Flavor, ref string) (flavors.Flavor, error) {
	for _, f := range flvs {
		if f.ID == ref {
			return f, nil
		}
	}
	for _, f := range flvs {
		if f.Name == ref {
			return f, nil
		}
	}
	re, err := regexp.Compile(ref)
	if err != nil {
		return flavors.Flavor{}, fmt.Errorf("flavor reference %q is not an id, name, or valid regexp: %w", ref, err)
	}
	var best *flavors.Flavor
	for i := range flvs {
		if !re.MatchString(flvs[i].Name) {
			continue
		}
		if best == nil || smallerFlavor(flvs[i], *best) {
			best = &flvs[i]
		}
	}
	if best == nil {
		return flavors.Flavor{}, fmt.Errorf("%w: %q", ErrNoFlavor, ref)
	}
	return *best, nil
}

func smallerFlavor(a, b flavors.Flavor) bool {
	if a.RAM != b.RAM {
		return a.RAM < b.RAM
	}
	return a.VCPUs < b.VCPUs
}
