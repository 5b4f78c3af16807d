package openstack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateName(t *testing.T) {
	name := generateName("My Suite (default)")
	assert.True(t, strings.HasPrefix(name, "my-suite-default-"), "got %q", name)
	// prefix + dash + 8 hex chars of uuid
	assert.Len(t, name, len("my-suite-default-")+8)

	// No prefix falls back to the package default.
	assert.True(t, strings.HasPrefix(generateName(""), defaultNamePrefix+"-"))

	// Suffixes are random per call.
	assert.NotEqual(t, generateName("a"), generateName("a"))
}

func TestServerName(t *testing.T) {
	c := &Config{ServerName: "fixed"}
	assert.Equal(t, "fixed", c.serverName())

	c = &Config{ServerNamePrefix: "kitchen"}
	assert.True(t, strings.HasPrefix(c.serverName(), "kitchen-"))
}
