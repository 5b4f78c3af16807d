package openstack

import (
	"context"
	"fmt"
	"regexp"

	"github.com/chainguard-dev/clog"
	"github.com/gophercloud/gophercloud/v2/openstack/image/v2/images"
	"github.com/gophercloud/gophercloud/v2/pagination"
)

var ErrNoImage = fmt.Errorf("found no image matching the configured reference")

// resolveImage turns the configured image reference into an image id. The
// reference is tried as an id, then an exact name, then a regular expression
// over the full (paginated) listing of active images.
func (d *Driver) resolveImage(ctx context.Context) (string, error) {
	client, err := d.conn(ctx)
	if err != nil {
		return "", err
	}

	var all []images.Image
	pager := images.List(client.Image, images.ListOpts{Status: images.ImageStatusActive})
	err = pager.EachPage(ctx, func(ctx context.Context, page pagination.Page) (bool, error) {
		imageList, err := images.ExtractImages(page)
		if err != nil {
			return false, err
		}
		all = append(all, imageList...)
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("listing images: %w", err)
	}

	img, err := matchImage(all, d.Config.ImageRef)
	if err != nil {
		return "", err
	}
	clog.FromContext(ctx).Info("resolved image", "ref", d.Config.ImageRef, "id", img.ID, "name", img.Name)
	return img.ID, nil
}

// matchImage scans 'imgs' for the image referenced by 'ref': first by id,
// then by exact name, then treating 'ref' as a regular expression. The regex
// case prefers the most recently created match, so a pattern like
// 'ubuntu-24.04.*' tracks the newest build.
func matchImage(imgs []images.Image, ref string) (images.Image, error) {
	for _, img := range imgs {
		if img.ID == ref {
			return img, nil
		}
	}
	for _, img := range imgs {
		if img.Name == ref {
			return img, nil
		}
	}
	re, err := regexp.Compile(ref)
	if err != nil {
		return images.Image{}, fmt.Errorf("image reference %q is not an id, name, or valid regexp: %w", ref, err)
	}
	var best *images.Image
	for i := range imgs {
		if !re.MatchString(imgs[i].Name) {
			continue
		}
		if best == nil || imgs[i].CreatedAt.After(best.CreatedAt) {
			best = &imgs[i]
		}
	}
	if best == nil {
		return images.Image{}, fmt.Errorf("%w: %q", ErrNoImage, ref)
	}
	return *best, nil
}
