package openstack

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/extensions/layer3/floatingips"
	th "github.com/gophercloud/gophercloud/v2/testhelper"
	fake "github.com/gophercloud/gophercloud/v2/testhelper/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer is the testhelper HTTP server the current test's driver points
// at. It is replaced by every fakeDriver call; tests run sequentially.
var testServer th.FakeServer

// fakeDriver builds a Driver whose service clients point at the testhelper
// HTTP server, so cloud calls can be exercised without a cloud.
func fakeDriver(t *testing.T, cfg Config) *Driver {
	t.Helper()
	testServer = th.SetupHTTP()
	t.Cleanup(testServer.Teardown)

	cfg.ImageRef = "ubuntu"
	cfg.FlavorRef = "m1.small"
	d, err := New(cfg)
	require.NoError(t, err)
	d.client = &Client{
		Compute: fake.ServiceClient(testServer),
		Network: fake.ServiceClient(testServer),
		Image:   fake.ServiceClient(testServer),
	}
	return d
}

// handleServerPort serves the port lookup every attachFloatingIP starts with.
func handleServerPort(t *testing.T, serverID string) {
	testServer.Mux.HandleFunc("/ports", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "GET")
		assert.Equal(t, serverID, r.URL.Query().Get("device_id"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ports": [{"id": "port-1"}]}`)
	})
}

func TestPickFreeFloatingIP(t *testing.T) {
	fips := []floatingips.FloatingIP{
		{ID: "a", FloatingIP: "203.0.113.1", PortID: "port-1", Status: "ACTIVE"},
		{ID: "b", FloatingIP: "203.0.113.2", PortID: "", Status: "DOWN"},
		{ID: "c", FloatingIP: "203.0.113.3", PortID: "", Status: "DOWN"},
	}
	fip := pickFreeFloatingIP(fips)
	require.NotNil(t, fip)
	assert.Equal(t, "b", fip.ID)
}

func TestPickFreeFloatingIPNoneFree(t *testing.T) {
	fips := []floatingips.FloatingIP{
		{ID: "a", PortID: "port-1", Status: "ACTIVE"},
		// A DOWN address still attached to a port is not free; it belongs to
		// a server mid-boot.
		{ID: "b", PortID: "port-2", Status: "DOWN"},
	}
	assert.Nil(t, pickFreeFloatingIP(fips))
	assert.Nil(t, pickFreeFloatingIP(nil))
}

func TestAttachFloatingIPExplicitInUse(t *testing.T) {
	d := fakeDriver(t, Config{FloatingIP: "203.0.113.7"})
	handleServerPort(t, "srv-1")
	testServer.Mux.HandleFunc("/floatingips", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "GET")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"floatingips": [
			{"id": "fip-1", "floating_ip_address": "203.0.113.7", "port_id": "port-9", "status": "ACTIVE"}
		]}`)
	})

	_, err := d.attachFloatingIP(t.Context(), "srv-1")
	require.ErrorIs(t, err, ErrFloatingIPInUse)
}

func TestAttachFloatingIPExplicitFree(t *testing.T) {
	d := fakeDriver(t, Config{FloatingIP: "203.0.113.7"})
	handleServerPort(t, "srv-1")
	testServer.Mux.HandleFunc("/floatingips", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "GET")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"floatingips": [
			{"id": "fip-1", "floating_ip_address": "203.0.113.7", "port_id": "", "status": "DOWN"}
		]}`)
	})
	testServer.Mux.HandleFunc("/floatingips/fip-1", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "PUT")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"floatingip": {"id": "fip-1", "floating_ip_address": "203.0.113.7", "port_id": "port-1"}}`)
	})

	fip, err := d.attachFloatingIP(t.Context(), "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "fip-1", fip.ID)
	assert.Equal(t, "203.0.113.7", fip.Address)
	// An address the caller provided is never the driver's to delete.
	assert.False(t, fip.Allocated)
}

func TestAttachFloatingIPReusesPoolAddress(t *testing.T) {
	d := fakeDriver(t, Config{FloatingIPPool: "public"})
	handleServerPort(t, "srv-1")
	testServer.Mux.HandleFunc("/networks", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "GET")
		assert.Equal(t, "public", r.URL.Query().Get("name"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"networks": [{"id": "net-ext", "name": "public"}]}`)
	})
	testServer.Mux.HandleFunc("/floatingips", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			t.Error("allocated a new floating IP although the pool had a free one")
		}
		th.TestMethod(t, r, "GET")
		assert.Equal(t, "net-ext", r.URL.Query().Get("floating_network_id"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"floatingips": [
			{"id": "fip-used", "floating_ip_address": "203.0.113.9", "port_id": "port-7", "status": "ACTIVE"},
			{"id": "fip-free", "floating_ip_address": "203.0.113.10", "port_id": "", "status": "DOWN"}
		]}`)
	})
	testServer.Mux.HandleFunc("/floatingips/fip-free", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "PUT")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"floatingip": {"id": "fip-free", "floating_ip_address": "203.0.113.10", "port_id": "port-1"}}`)
	})

	fip, err := d.attachFloatingIP(t.Context(), "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "fip-free", fip.ID)
	assert.Equal(t, "203.0.113.10", fip.Address)
	// Reused, not allocated: destroy must disassociate, not delete.
	assert.False(t, fip.Allocated)
}

func TestAttachFloatingIPAllocatesWhenPoolEmpty(t *testing.T) {
	// The pool given as a network id skips the name lookup.
	d := fakeDriver(t, Config{FloatingIPPool: "2f245a7b-796b-4f26-9cf9-9e82d248fda7"})
	handleServerPort(t, "srv-1")
	testServer.Mux.HandleFunc("/floatingips", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case "GET":
			fmt.Fprint(w, `{"floatingips": []}`)
		case "POST":
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"floatingip": {"id": "fip-new", "floating_ip_address": "203.0.113.50", "port_id": "", "status": "DOWN"}}`)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})
	testServer.Mux.HandleFunc("/floatingips/fip-new", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "PUT")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"floatingip": {"id": "fip-new", "floating_ip_address": "203.0.113.50", "port_id": "port-1"}}`)
	})

	fip, err := d.attachFloatingIP(t.Context(), "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "fip-new", fip.ID)
	assert.Equal(t, "203.0.113.50", fip.Address)
	// Allocated by the driver: destroy deletes it.
	assert.True(t, fip.Allocated)
}

func TestReleaseFloatingIPDeletesAllocated(t *testing.T) {
	d := fakeDriver(t, Config{})
	deleted := false
	testServer.Mux.HandleFunc("/floatingips/fip-1", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "DELETE")
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, d.releaseFloatingIP(t.Context(), "fip-1", true))
	assert.True(t, deleted)
}

func TestReleaseFloatingIPDisassociatesReused(t *testing.T) {
	d := fakeDriver(t, Config{})
	testServer.Mux.HandleFunc("/floatingips/fip-1", func(w http.ResponseWriter, r *http.Request) {
		// A reused address is disassociated, never deleted.
		th.TestMethod(t, r, "PUT")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"floatingip": {"id": "fip-1", "floating_ip_address": "203.0.113.7", "port_id": null}}`)
	})

	require.NoError(t, d.releaseFloatingIP(t.Context(), "fip-1", false))
}
