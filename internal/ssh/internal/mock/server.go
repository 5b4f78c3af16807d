package mock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

type (
	// server is a minimal in-process SSH server for exercising the client
	// facade. It authenticates with the configured callbacks, accepts
	// 'session' channels, ACKs 'exec' requests with a zero exit status, and
	// relays both the requests and any stdin lines back to the test.
	//
	// Construct with 'NewServer', start with 'ListenAndServe', stop with
	// 'Shutdown'.
	server struct {
		// Config is the SSH server configuration. Modifications after
		// 'ListenAndServe' have no effect.
		Config *ssh.ServerConfig

		cancel context.CancelFunc
		port   uint16
		wait   Waiter
	}

	// PubKeyCallback validates a public key offered by an inbound connection.
	// A non-nil error aborts the connection.
	PubKeyCallback func(ssh.ConnMetadata, ssh.PublicKey) (*ssh.Permissions, error)

	// PassCallback validates a password offered by an inbound connection.
	// A non-nil error aborts the connection.
	PassCallback func(ssh.ConnMetadata, []byte) (*ssh.Permissions, error)

	// ReqChannel yields every 'exec' request the server accepted, payload
	// trimmed of its length prefix.
	ReqChannel <-chan *ssh.Request

	// MsgChannel yields every line a client wrote to stdin.
	MsgChannel <-chan string
)

func NewServer(t *testing.T, port uint16, signer ssh.Signer, auth Auth) (*server, error) {
	if t == nil {
		return nil, fmt.Errorf("no *testing.T provided in call to NewServer")
	}
	require.True(t, auth.PublicKey != nil || auth.Password != nil, "at least one auth callback is required")
	require.NotNil(t, signer, "a non-nil ssh.Signer is required")
	config := &ssh.ServerConfig{
		PublicKeyCallback: auth.PublicKey,
		PasswordCallback:  auth.Password,
	}
	config.AddHostKey(signer)
	return &server{
		Config: config,
		wait:   NewWaiter(),
		port:   port,
	}, nil
}

func (s *server) ListenAndServe(t *testing.T, ctx context.Context) (ReqChannel, MsgChannel, error) {
	ctx, s.cancel = context.WithCancel(ctx)
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{Port: int(s.port)})
	require.NoError(t, err, "failed to listen on TCP/%d: %s", s.port, err)
	reqs := make(chan *ssh.Request, 64)
	msgs := make(chan string, 64)
	s.wait.Add()
	go s.serve(t, ctx, listener, reqs, msgs)
	return reqs, msgs, nil
}

func (s *server) serve(
	t *testing.T,
	ctx context.Context,
	listener *net.TCPListener,
	reqs chan<- *ssh.Request,
	msgs chan<- string,
) {
	defer s.wait.Done()
	for {
		select {
		case <-ctx.Done():
			close(reqs)
			close(msgs)
			require.NoError(t, listener.Close())
			return
		default:
			// Bounded accept so ctx cancellation is noticed.
			listener.SetDeadline(time.Now().Add(100 * time.Millisecond))
			conn, err := listener.AcceptTCP()
			if err != nil {
				var operr *net.OpError
				if errors.As(err, &operr) && operr.Timeout() {
					continue
				}
			}
			require.NoError(t, err)
			s.wait.Add()
			go s.handleConn(t, ctx, conn, reqs, msgs)
		}
	}
}

// handleConn performs the SSH handshake, then accepts 'session' channels and
// hands each to a session handler goroutine. Everything else is rejected.
func (s *server) handleConn(
	t *testing.T,
	ctx context.Context,
	conn *net.TCPConn,
	reqs chan<- *ssh.Request,
	msgs chan<- string,
) {
	defer s.wait.Done()
	sshConn, chans, globalReqs, err := ssh.NewServerConn(conn, s.Config)
	require.NoError(t, err)
	defer sshConn.Close()
	// Global requests carry nothing these tests care about; ACK and drop.
	go ssh.DiscardRequests(globalReqs)
	for {
		select {
		case <-ctx.Done():
			return
		case newChan := <-chans:
			if newChan == nil {
				return
			}
			if newChan.ChannelType() != "session" {
				newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
				continue
			}
			channel, chanReqs, err := newChan.Accept()
			require.NoError(t, err)
			s.wait.Add()
			go s.handleSession(t, ctx, channel, asyncRead(t, channel), chanReqs, reqs, msgs)
		}
	}
}

// handleSession services one 'session' channel: 'exec' requests are ACKed,
// answered with a zero 'exit-status', and relayed out through 'reqs'; stdin
// arrives via 'in' and is relayed line by line through 'msgs'. The session
// ends when 'in' closes (client EOF) or the context is done.
func (s *server) handleSession(
	t *testing.T,
	ctx context.Context,
	channel ssh.Channel,
	in <-chan string,
	chanReqs <-chan *ssh.Request,
	reqs chan<- *ssh.Request,
	msgs chan<- string,
) {
	defer func() {
		require.NoError(t, channel.Close())
		s.wait.Done()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-chanReqs:
			if req == nil {
				return
			}
			// 'exec' is the only request type the client facade sends.
			require.Equal(t, "exec", req.Type)
			if req.WantReply {
				require.NoError(t, req.Reply(true, nil))
			}
			_, err := channel.SendRequest("exit-status", false, marshalExitStatus(0))
			require.NoError(t, err)
			// Strip the payload's length prefix for the assertion's sake.
			req.Payload = bytes.TrimLeftFunc(req.Payload, func(r rune) bool {
				return r < 0x20
			})
			reqs <- req
		case msg, more := <-in:
			// Relay stdin one trimmed line at a time.
			for line := range strings.SplitSeq(strings.TrimSpace(msg), "\n") {
				line = strings.TrimFunc(line, func(r rune) bool {
					return r < 0x20
				})
				if line == "" {
					continue
				}
				msgs <- line
			}
			if !more {
				return
			}
		}
	}
}

var ErrServerNotStarted = fmt.Errorf(
	"shutdown called without a call to 'ListenAndServe' first",
)

// Shutdown cancels the serve loop and waits for every goroutine to exit.
func (s *server) Shutdown(ctx context.Context) error {
	if s.cancel == nil {
		return ErrServerNotStarted
	}
	s.cancel()
	return s.wait.WaitContext(ctx)
}
