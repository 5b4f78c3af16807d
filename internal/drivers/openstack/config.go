package openstack

import (
	"fmt"
	"time"
)

// Config configures the OpenStack driver.
type Config struct {
	// Authentication. When Cloud is set, credentials come from the named
	// clouds.yaml entry; otherwise AuthURL and friends are used, each falling
	// back to the usual OS_* environment variables.
	Cloud             string `json:"cloud,omitempty"`
	AuthURL           string `json:"auth_url,omitempty"`
	Username          string `json:"username,omitempty"`
	Password          string `json:"password,omitempty"`
	ProjectName       string `json:"project_name,omitempty"`
	DomainName        string `json:"domain_name,omitempty"`
	Region            string `json:"region,omitempty"`
	Insecure          bool   `json:"insecure,omitempty"`
	CACertPath        string `json:"cacert,omitempty"`

	// Server shape. ImageRef and FlavorRef accept an id, an exact name, or a
	// regular expression.
	ServerName       string            `json:"server_name,omitempty"`
	ServerNamePrefix string            `json:"server_name_prefix,omitempty"`
	ImageRef         string            `json:"image_ref"`
	FlavorRef        string            `json:"flavor_ref"`
	AvailabilityZone string            `json:"availability_zone,omitempty"`
	SecurityGroups   []string          `json:"security_groups,omitempty"`
	Networks         []string          `json:"networks,omitempty"`     // names or ids
	NetworkName      string            `json:"network_name,omitempty"` // which network's address to hand to the host
	UserDataPath     string            `json:"user_data,omitempty"`
	ConfigDrive      bool              `json:"config_drive,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`

	// SSH bootstrap.
	SSHUser           string   `json:"ssh_user,omitempty"`     // default: root
	SSHPort           int      `json:"ssh_port,omitempty"`     // default: 22
	SSHPassword       string   `json:"ssh_password,omitempty"` // for images without injected keys
	KeyName           string   `json:"key_name,omitempty"`     // existing Nova keypair
	PrivateKeyPath    string   `json:"private_key_path,omitempty"`
	PublicKeyPath     string   `json:"public_key_path,omitempty"`
	KeyPassphrase     string   `json:"key_passphrase,omitempty"`
	Shell             string   `json:"shell,omitempty"` // default: bash
	BootstrapCommands []string `json:"bootstrap_commands,omitempty"`

	// Floating IP. FloatingIP associates a specific pre-allocated address,
	// FloatingIPPool allocates from the named external network. At most one.
	FloatingIP     string `json:"floating_ip,omitempty"`
	FloatingIPPool string `json:"floating_ip_pool,omitempty"`

	// Operational.
	ServerWait    time.Duration `json:"server_wait,omitempty"` // default: 5m
	SSHWait       time.Duration `json:"ssh_wait,omitempty"`    // default: 5m
	LogsDirectory string        `json:"logs_directory,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.SSHUser == "" {
		c.SSHUser = "root"
	}
	if c.SSHPort == 0 {
		c.SSHPort = 22
	}
	if c.Shell == "" {
		c.Shell = "bash"
	}
	if c.ServerWait == 0 {
		c.ServerWait = 5 * time.Minute
	}
	if c.SSHWait == 0 {
		c.SSHWait = 5 * time.Minute
	}
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
}

func (c *Config) validate() error {
	if c.ImageRef == "" {
		return fmt.Errorf("image_ref is required")
	}
	if c.FlavorRef == "" {
		return fmt.Errorf("flavor_ref is required")
	}
	if c.FloatingIP != "" && c.FloatingIPPool != "" {
		return fmt.Errorf("floating_ip and floating_ip_pool are mutually exclusive")
	}
	if c.KeyName != "" && c.PrivateKeyPath == "" && c.SSHPassword == "" {
		return fmt.Errorf("key_name requires private_key_path or ssh_password to connect")
	}
	if c.PublicKeyPath != "" && c.PrivateKeyPath == "" && c.SSHPassword == "" {
		return fmt.Errorf("public_key_path requires private_key_path or ssh_password to connect")
	}
	if c.SSHPort < 0 || c.SSHPort > 65535 {
		return fmt.Errorf("ssh_port %d is out of range", c.SSHPort)
	}
	return nil
}
