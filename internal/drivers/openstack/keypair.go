package openstack

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/keypairs"
	xssh "golang.org/x/crypto/ssh"

	"github.com/harnesslab/openstack-driver/internal/ssh"
)

// keyPairResult describes the keypair the server will boot with. Generated
// keypairs are the driver's to delete on destroy; configured ones are not.
type keyPairResult struct {
	Name      string
	Path      string // local private key file, when one exists
	Generated bool
	OwnedFile bool // the driver wrote the key file and must remove it

	signer xssh.Signer
}

// ensureKeyPair prepares the Nova keypair for the boot request.
//
// A configured key_name is used untouched. A configured public key file is
// imported under the server's name. With neither, an ED25519 pair is
// generated, its public half imported and the private half written to a
// temp file for the host framework's later SSH sessions.
func (d *Driver) ensureKeyPair(ctx context.Context, serverName string) (*keyPairResult, error) {
	log := clog.FromContext(ctx)
	cfg := &d.Config

	if cfg.KeyName != "" {
		signer, err := d.configuredSigner()
		if err != nil {
			return nil, err
		}
		return &keyPairResult{
			Name:   cfg.KeyName,
			Path:   cfg.PrivateKeyPath,
			signer: signer,
		}, nil
	}

	client, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.PublicKeyPath != "" {
		pub, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading public key file: %w", err)
		}
		if _, err := keypairs.Create(ctx, client.Compute, keypairs.CreateOpts{
			Name:      serverName,
			PublicKey: string(pub),
		}).Extract(); err != nil {
			return nil, fmt.Errorf("importing public key: %w", err)
		}
		log.Info("imported public key", "name", serverName, "path", cfg.PublicKeyPath)
		signer, err := d.configuredSigner()
		if err != nil {
			return nil, err
		}
		return &keyPairResult{
			Name:      serverName,
			Path:      cfg.PrivateKeyPath,
			Generated: true,
			signer:    signer,
		}, nil
	}

	keys, err := ssh.NewED25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}
	pub, err := keys.Public.MarshalOpenSSH()
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	if _, err := keypairs.Create(ctx, client.Compute, keypairs.CreateOpts{
		Name:      serverName,
		PublicKey: string(pub),
	}).Extract(); err != nil {
		return nil, fmt.Errorf("importing generated key pair: %w", err)
	}
	log.Info("imported generated key pair", "name", serverName)

	keyFile, err := os.CreateTemp("", serverName+"-*.pem")
	if err != nil {
		return nil, fmt.Errorf("creating temp key file: %w", err)
	}
	pemData, err := keys.Private.MarshalOpenSSH(serverName)
	if err != nil {
		_ = keyFile.Close()
		return nil, fmt.Errorf("marshaling private key: %w", err)
	}
	if _, err := keyFile.Write(pemData); err != nil {
		_ = keyFile.Close()
		return nil, fmt.Errorf("writing private key: %w", err)
	}
	if err := keyFile.Chmod(0o600); err != nil {
		_ = keyFile.Close()
		return nil, fmt.Errorf("setting key file permissions: %w", err)
	}
	_ = keyFile.Close()
	log.Info("saved private key", "path", keyFile.Name())

	signer, err := keys.Private.ToSSH()
	if err != nil {
		return nil, fmt.Errorf("converting private key: %w", err)
	}
	return &keyPairResult{
		Name:      serverName,
		Path:      keyFile.Name(),
		Generated: true,
		OwnedFile: true,
		signer:    signer,
	}, nil
}

// configuredSigner loads the signer from the configured private key path, or
// returns nil when the driver will fall back to password auth.
func (d *Driver) configuredSigner() (xssh.Signer, error) {
	if d.Config.PrivateKeyPath == "" {
		return nil, nil
	}
	signer, err := ssh.LoadKeyFile(d.Config.PrivateKeyPath, []byte(d.Config.KeyPassphrase))
	if err != nil {
		return nil, err
	}
	return signer, nil
}

// deleteKeyPair removes a driver-generated keypair and its local key file.
// A keypair already gone is fine; destroy must be repeatable.
func (d *Driver) deleteKeyPair(ctx context.Context, name, path string) error {
	log := clog.FromContext(ctx)
	client, err := d.conn(ctx)
	if err != nil {
		return err
	}
	log.Info("deleting key pair", "name", name)
	if err := keypairs.Delete(ctx, client.Compute, name, nil).ExtractErr(); err != nil &&
		!gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		return fmt.Errorf("deleting key pair %s: %w", name, err)
	}
	if path != "" {
		log.Info("removing private key file", "path", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing private key file: %w", err)
		}
	}
	return nil
}
