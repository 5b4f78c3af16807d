// openstack-driver is a thin operator CLI around the OpenStack provisioning
// driver. It stands in for the host framework during development: the state
// bag the framework would persist between lifecycle calls is kept in a local
// JSON file instead.
//
// Usage:
//
//	openstack-driver -config driver.json -state state.json create
//	openstack-driver -config driver.json -state state.json destroy
//	openstack-driver -config driver.json list [name-prefix]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/harnesslab/openstack-driver/internal/drivers/openstack"
	"github.com/harnesslab/openstack-driver/internal/state"
)

type opts struct {
	ConfigPath string
	StatePath  string
	LogsDir    string
	ServerWait time.Duration
	SSHWait    time.Duration
	Verbose    bool

	args []string
}

func parseFlags() *opts {
	opts := &opts{}

	flag.StringVar(&opts.ConfigPath, "config", "driver.json", "Path to the driver config (JSON)")
	flag.StringVar(&opts.StatePath, "state", "state.json", "Path to the persisted state bag (JSON)")
	flag.StringVar(&opts.LogsDir, "logs", "", "Directory for per-instance log files")
	flag.DurationVar(&opts.ServerWait, "server-wait", 0, "Override how long to wait for the server to become ACTIVE")
	flag.DurationVar(&opts.SSHWait, "ssh-wait", 0, "Override how long to wait for SSH to come up")
	flag.BoolVar(&opts.Verbose, "v", false, "Enable debug logging")

	flag.Parse()
	opts.args = flag.Args()

	return opts
}

func main() {
	opts := parseFlags()

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	log := clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	ctx := clog.WithLogger(context.Background(), log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage: openstack-driver [flags] create|destroy|list")

func run(ctx context.Context, opts *opts) error {
	if len(opts.args) == 0 {
		return errUsage
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	driver, err := openstack.New(cfg)
	if err != nil {
		return err
	}

	switch cmd := opts.args[0]; cmd {
	case "create":
		return withState(opts.StatePath, func(s state.Bag) error {
			return driver.Create(ctx, s)
		})
	case "destroy":
		return withState(opts.StatePath, func(s state.Bag) error {
			return driver.Destroy(ctx, s)
		})
	case "list":
		prefix := ""
		if len(opts.args) > 1 {
			prefix = opts.args[1]
		}
		servers, err := driver.Servers(ctx, prefix)
		if err != nil {
			return err
		}
		for _, server := range servers {
			fmt.Printf("%s\t%s\t%s\n", server.ID, server.Status, server.Name)
		}
		return nil
	default:
		return fmt.Errorf("%w (got %q)", errUsage, cmd)
	}
}

func loadConfig(opts *opts) (openstack.Config, error) {
	var cfg openstack.Config
	data, err := os.ReadFile(opts.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decoding config file %s: %w", opts.ConfigPath, err)
	}
	if opts.LogsDir != "" {
		cfg.LogsDirectory = opts.LogsDir
	}
	if opts.ServerWait != 0 {
		cfg.ServerWait = opts.ServerWait
	}
	if opts.SSHWait != 0 {
		cfg.SSHWait = opts.SSHWait
	}
	return cfg, nil
}

// withState loads the bag, runs 'fn', and persists the bag whether or not
// 'fn' succeeded: a half-finished Create records ids that the next destroy
// needs.
func withState(path string, fn func(state.Bag) error) error {
	bag, err := state.Load(path)
	if err != nil {
		return err
	}
	fnErr := fn(bag)
	if saveErr := bag.Save(path); saveErr != nil {
		return errors.Join(fnErr, saveErr)
	}
	return fnErr
}
