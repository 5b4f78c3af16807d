package openstack

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"
)

const tcpPollInterval = 500 * time.Millisecond

var dialer = &net.Dialer{Timeout: 3 * time.Second}

// waitTCP blocks until a TCP connection to host:port succeeds, dialing every
// tcpPollInterval. The error, when there is one, is ctx.Err(): a deadline
// when the configured wait ran out, Canceled when the run was interrupted.
func waitTCP(ctx context.Context, host string, port uint16) error {
	target := net.JoinHostPort(host, strconv.Itoa(int(port)))
	log := clog.FromContext(ctx).With("target", target)
	log.Debug("waiting for TCP port to open")

	ticker := time.NewTicker(tcpPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("gave up waiting for TCP port", "error", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			conn, err := dialer.DialContext(ctx, "tcp", target)
			if err != nil {
				log.Debug("port not open yet", "error", err)
				continue
			}
			if err := conn.Close(); err != nil {
				log.Warn("closing dial connection", "error", err)
			}
			log.Debug("port is open")
			return nil
		}
	}
}
