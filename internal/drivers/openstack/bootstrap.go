package openstack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/kballard/go-shellquote"
	xssh "golang.org/x/crypto/ssh"

	"github.com/harnesslab/openstack-driver/internal/drivers"
	"github.com/harnesslab/openstack-driver/internal/ssh"
)

const (
	sshConnectAttempts = 5
	sshConnectBackoff  = 3 * time.Second
)

// bootstrapSSH waits out the instance's SSH daemon, verifies a session, and
// leaves the instance ready for the host framework: the public key installed
// when only a password was usable, and any configured bootstrap commands run.
func (d *Driver) bootstrapSSH(ctx context.Context, host string, kp *keyPairResult) error {
	log := clog.FromContext(ctx)

	wctx, cancel := context.WithTimeout(ctx, d.Config.SSHWait)
	defer cancel()
	if err := waitTCP(wctx, host, uint16(d.Config.SSHPort)); err != nil {
		return fmt.Errorf("waiting for SSH port on %s: %w", host, err)
	}

	// sshd accepts TCP connections before it is ready to authenticate, so the
	// first handshakes after boot can be refused.
	auth := ssh.Auth{Signer: kp.signer, Password: d.Config.SSHPassword}
	var client *xssh.Client
	var err error
	for attempt := 1; ; attempt++ {
		client, err = ssh.Connect(host, uint16(d.Config.SSHPort), d.Config.SSHUser, auth)
		if err == nil {
			break
		}
		if attempt >= sshConnectAttempts {
			return fmt.Errorf("connecting to %s via SSH: %w", host, err)
		}
		log.Debug("SSH connection not yet accepted, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sshConnectBackoff):
		}
	}
	defer client.Close()
	log.Info("SSH connection established", "host", host, "user", d.Config.SSHUser)

	// When the image only offered password auth but we hold a key, install
	// the public half so later sessions don't depend on the password.
	if d.Config.SSHPassword != "" && kp.signer != nil {
		if err := installAuthorizedKey(client, kp.signer); err != nil {
			return err
		}
		log.Info("installed public key in authorized_keys")
	}

	if len(d.Config.BootstrapCommands) == 0 {
		// Still verify command execution; a connection alone proves little.
		if _, _, err := ssh.Exec(client, "/usr/bin/env true"); err != nil {
			return fmt.Errorf("verifying SSH command execution: %w", err)
		}
		return nil
	}

	stdout, stderr, err := ssh.ExecIn(client, d.Config.Shell, d.Config.BootstrapCommands...)
	logInstanceOutput(ctx, stdout, stderr)
	if err != nil {
		return fmt.Errorf("running bootstrap commands: %w", err)
	}
	log.Info("bootstrap commands complete", "count", len(d.Config.BootstrapCommands))
	return nil
}

// installAuthorizedKey appends the signer's public key to the remote user's
// authorized_keys, creating ~/.ssh with the permissions sshd insists on.
func installAuthorizedKey(client *xssh.Client, signer xssh.Signer) error {
	line := strings.TrimSpace(string(xssh.MarshalAuthorizedKey(signer.PublicKey())))
	cmd := fmt.Sprintf(
		"mkdir -p ~/.ssh && chmod 700 ~/.ssh && echo %s >> ~/.ssh/authorized_keys && chmod 600 ~/.ssh/authorized_keys",
		shellquote.Join(line),
	)
	if _, _, err := ssh.Exec(client, cmd); err != nil {
		return fmt.Errorf("installing authorized key: %w", err)
	}
	return nil
}

// logInstanceOutput surfaces instance output line by line under the driver
// log attribute, where the per-instance log file handler picks it up.
func logInstanceOutput(ctx context.Context, stdout, stderr string) {
	log := clog.FromContext(ctx)
	for line := range strings.Lines(stdout) {
		if line = strings.TrimRight(line, "\n"); line != "" {
			log.Info("instance output", drivers.LogAttributeKey, line)
		}
	}
	for line := range strings.Lines(stderr) {
		if line = strings.TrimRight(line, "\n"); line != "" {
			log.Warn("instance output", drivers.LogAttributeKey, line)
		}
	}
}
