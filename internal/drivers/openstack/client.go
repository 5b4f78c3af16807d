package openstack

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/utils/v2/openstack/clientconfig"
)

// Client bundles the authenticated service clients the driver needs: Nova for
// servers/flavors/keypairs, Neutron for networks/ports/floating IPs, Glance
// for image listings.
type Client struct {
	Compute *gophercloud.ServiceClient
	Network *gophercloud.ServiceClient
	Image   *gophercloud.ServiceClient
}

var ErrAuthFailed = fmt.Errorf("failed to authenticate against the OpenStack identity service")

// NewClient authenticates against the configured cloud and builds the service
// clients. Credential resolution is delegated to gophercloud's clientconfig:
// an explicit clouds.yaml entry, explicit config values, and the OS_*
// environment all work, in that order of precedence.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	opts := &clientconfig.ClientOpts{
		Cloud:      cfg.Cloud,
		RegionName: cfg.Region,
	}
	if cfg.AuthURL != "" {
		opts.AuthInfo = &clientconfig.AuthInfo{
			AuthURL:     cfg.AuthURL,
			Username:    cfg.Username,
			Password:    cfg.Password,
			ProjectName: cfg.ProjectName,
			DomainName:  cfg.DomainName,
		}
	}

	ao, err := clientconfig.AuthOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("assembling auth options: %w", err)
	}
	// Tokens expire over long-running suites; let gophercloud refresh them.
	ao.AllowReauth = true

	provider, err := openstack.NewClient(ao.IdentityEndpoint)
	if err != nil {
		return nil, fmt.Errorf("constructing provider client: %w", err)
	}

	if cfg.Insecure || cfg.CACertPath != "" {
		transport, err := tlsTransport(cfg)
		if err != nil {
			return nil, err
		}
		provider.HTTPClient = http.Client{Transport: transport}
	}

	if err := openstack.Authenticate(ctx, provider, *ao); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	region := cfg.Region
	if region == "" {
		region = os.Getenv("OS_REGION_NAME")
	}
	eo := gophercloud.EndpointOpts{Region: region}

	compute, err := openstack.NewComputeV2(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("locating compute endpoint: %w", err)
	}
	network, err := openstack.NewNetworkV2(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("locating network endpoint: %w", err)
	}
	image, err := openstack.NewImageV2(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("locating image endpoint: %w", err)
	}

	return &Client{
		Compute: compute,
		Network: network,
		Image:   image,
	}, nil
}

// tlsTransport builds an HTTP transport honoring the insecure toggle and/or a
// custom CA bundle. Some private clouds run with self-signed endpoints, which
// is the only reason 'insecure' exists.
func tlsTransport(cfg *Config) (*http.Transport, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.Insecure, //nolint:gosec // operator opt-in
	}
	if cfg.CACertPath != "" {
		pem, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from CA bundle %s", cfg.CACertPath)
		}
		tlsConfig.RootCAs = pool
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsConfig,
	}, nil
}
