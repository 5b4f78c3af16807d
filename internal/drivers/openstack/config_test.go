package openstack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	c := &Config{ImageRef: "ubuntu.*", FlavorRef: "m1.small"}
	c.applyDefaults()

	assert.Equal(t, "root", c.SSHUser)
	assert.Equal(t, 22, c.SSHPort)
	assert.Equal(t, "bash", c.Shell)
	assert.Equal(t, 5*time.Minute, c.ServerWait)
	assert.Equal(t, 5*time.Minute, c.SSHWait)
	assert.NotNil(t, c.Metadata)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	c := &Config{
		ImageRef:   "x",
		FlavorRef:  "y",
		SSHUser:    "ubuntu",
		SSHPort:    2222,
		Shell:      "sh",
		ServerWait: time.Minute,
	}
	c.applyDefaults()

	assert.Equal(t, "ubuntu", c.SSHUser)
	assert.Equal(t, 2222, c.SSHPort)
	assert.Equal(t, "sh", c.Shell)
	assert.Equal(t, time.Minute, c.ServerWait)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing image",
			cfg:     Config{FlavorRef: "m1.small"},
			wantErr: "image_ref is required",
		},
		{
			name:    "missing flavor",
			cfg:     Config{ImageRef: "ubuntu"},
			wantErr: "flavor_ref is required",
		},
		{
			name: "floating ip and pool are exclusive",
			cfg: Config{
				ImageRef:       "ubuntu",
				FlavorRef:      "m1.small",
				FloatingIP:     "203.0.113.7",
				FloatingIPPool: "public",
			},
			wantErr: "mutually exclusive",
		},
		{
			name: "key name without a way to connect",
			cfg: Config{
				ImageRef:  "ubuntu",
				FlavorRef: "m1.small",
				KeyName:   "ops",
			},
			wantErr: "key_name requires",
		},
		{
			// Importing a public key without its private half or a password
			// would boot a server nothing can log into.
			name: "public key without a way to connect",
			cfg: Config{
				ImageRef:      "ubuntu",
				FlavorRef:     "m1.small",
				PublicKeyPath: "/home/ops/.ssh/id_ed25519.pub",
			},
			wantErr: "public_key_path requires",
		},
		{
			name: "valid minimal",
			cfg: Config{
				ImageRef:  "ubuntu",
				FlavorRef: "m1.small",
			},
		},
		{
			name: "valid key name with private key",
			cfg: Config{
				ImageRef:       "ubuntu",
				FlavorRef:      "m1.small",
				KeyName:        "ops",
				PrivateKeyPath: "/home/ops/.ssh/id_ed25519",
			},
		},
		{
			name: "valid public key with password",
			cfg: Config{
				ImageRef:      "ubuntu",
				FlavorRef:     "m1.small",
				PublicKeyPath: "/home/ops/.ssh/id_ed25519.pub",
				SSHPassword:   "hunter2",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	d, err := New(Config{ImageRef: "ubuntu", FlavorRef: "m1.small"})
	require.NoError(t, err)
	// Defaults are applied onto the driver's copy.
	assert.Equal(t, "root", d.Config.SSHUser)
}
