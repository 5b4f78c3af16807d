package openstack

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const defaultNamePrefix = "harness"

// generateName builds a cloud-safe server name from the configured prefix and
// a short random suffix. Prefixes come from test names and can carry spaces
// or punctuation OpenStack rejects, hence the slugging.
func generateName(prefix string) string {
	if prefix == "" {
		prefix = defaultNamePrefix
	}
	return fmt.Sprintf("%s-%s", slug.Make(prefix), uuid.NewString()[:8])
}

// serverName returns the configured fixed name, or generates one.
func (c *Config) serverName() string {
	if c.ServerName != "" {
		return c.ServerName
	}
	return generateName(c.ServerNamePrefix)
}
