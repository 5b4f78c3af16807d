package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedAccessors(t *testing.T) {
	b := New()
	b.Set(KeyServerID, "4bb29e5f-9a45-4972-a291-97bd2e4d6c68")
	b.Set("port", 2222)
	b.Set("insecure", true)
	b.Set("groups", []string{"default", "ssh"})
	b.Set("meta", map[string]string{"created_by": "harness"})
	b.Set("wait", "3m")

	assert.Equal(t, "4bb29e5f-9a45-4972-a291-97bd2e4d6c68", b.String(KeyServerID))
	assert.Equal(t, 2222, b.Int("port"))
	assert.True(t, b.Bool("insecure"))
	assert.Equal(t, []string{"default", "ssh"}, b.Strings("groups"))
	assert.Equal(t, map[string]string{"created_by": "harness"}, b.StringMap("meta"))
	assert.Equal(t, 3*time.Minute, b.Duration("wait"))

	// Absent or mistyped keys yield zero values, never panics.
	assert.Equal(t, "", b.String("missing"))
	assert.Equal(t, 0, b.Int(KeyServerID))
	assert.False(t, b.Bool("port"))
	assert.Nil(t, b.Strings("missing"))
	assert.Zero(t, b.Duration("port-and-a-half"))
}

func TestBareStringAsSlice(t *testing.T) {
	b := New()
	b.Set("groups", "default")
	assert.Equal(t, []string{"default"}, b.Strings("groups"))

	b.Set("groups", "")
	assert.Nil(t, b.Strings("groups"))
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	b := New()
	b.Set(KeyServerID, "srv-1")
	b.Set(KeyHostname, "203.0.113.7")
	b.Set("port", 22)
	b.Set("groups", []string{"default"})
	b.Set("wait", 90*time.Second)
	require.NoError(t, b.Save(path))

	got, err := Load(path)
	require.NoError(t, err)

	// JSON turns numbers into float64 and slices into []any; the accessors
	// must still normalize them.
	assert.Equal(t, "srv-1", got.String(KeyServerID))
	assert.Equal(t, "203.0.113.7", got.String(KeyHostname))
	assert.Equal(t, 22, got.Int("port"))
	assert.Equal(t, []string{"default"}, got.Strings("groups"))
	assert.Equal(t, 90*time.Second, got.Duration("wait"))
}

func TestLoadMissingFile(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestDeleteAndHas(t *testing.T) {
	b := New()
	b.Set(KeyHostname, "host")
	require.True(t, b.Has(KeyHostname))
	b.Delete(KeyHostname)
	assert.False(t, b.Has(KeyHostname))
}
