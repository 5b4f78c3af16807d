package mock

import (
	"bytes"
	"fmt"
	"testing"

	"golang.org/x/crypto/ssh"
)

var ErrUnauthorized = fmt.Errorf("credentials are not authorized")

// Auth bundles the authentication callbacks a mock server should accept.
// At least one of the two callbacks must be non-nil.
type Auth struct {
	PublicKey PubKeyCallback
	Password  PassCallback
}

// PublicKeyCallback returns a closure for use with an 'ssh.ServerConfig' to
// perform validation of offered public keys from inbound SSH connections
// against the public keys provided in 'allowedPubKeys'.
func PublicKeyCallback(t *testing.T, allowedPubKeys ...ssh.PublicKey) PubKeyCallback {
	marshaledPubKeys := make([][]byte, len(allowedPubKeys))
	for i := range len(marshaledPubKeys) {
		marshaledPubKeys[i] = allowedPubKeys[i].Marshal()
	}
	return func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
		// Expect the "user" public key to exist in 'allowedPubKeys'.
		keyMarshaled := key.Marshal()
		for _, marshaledPubKey := range marshaledPubKeys {
			if bytes.Equal(marshaledPubKey, keyMarshaled) {
				return nil, nil
			}
		}
		return nil, ErrUnauthorized
	}
}

// PasswordCallback returns a closure for use with an 'ssh.ServerConfig' to
// validate a username+password pair offered by an inbound SSH connection.
func PasswordCallback(t *testing.T, user, password string) PassCallback {
	return func(conn ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
		if conn.User() == user && string(pass) == password {
			return nil, nil
		}
		return nil, ErrUnauthorized
	}
}
