package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrUnsupportedFormat = errors.New("unsupported configuration format")
)

// Defaults applied when a value is absent from every source.
const (
	DefaultBindAddress        = "0.0.0.0"
	DefaultPort               = 9999
	DefaultIdleTimeoutSeconds = 180
)

// Options is the mutable, on-disk shape of a Config. It is only used while
// assembling configuration; the running bridge holds a Config.
type Options struct {
	BindAddress        string `json:"bind_address" yaml:"bind_address"`
	Port               int    `json:"port" yaml:"port"`
	IdleTimeoutSeconds int    `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
	MaxConnections     int    `json:"max_connections" yaml:"max_connections"`
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		BindAddress:        DefaultBindAddress,
		Port:               DefaultPort,
		IdleTimeoutSeconds: DefaultIdleTimeoutSeconds,
	}
}

// Validate checks the options for values the acceptor cannot use.
// Port 0 is accepted and asks the OS for an ephemeral port. Host names are
// accepted as bind addresses and resolved when the acceptor binds.
func (o Options) Validate() error {
	var problems []string

	if strings.TrimSpace(o.BindAddress) == "" {
		problems = append(problems, "bind_address must not be empty")
	}
	if o.Port < 0 || o.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range 0-65535", o.Port))
	}
	if o.IdleTimeoutSeconds <= 0 {
		problems = append(problems, fmt.Sprintf("idle_timeout_seconds must be positive, got %d", o.IdleTimeoutSeconds))
	}
	if o.MaxConnections < 0 {
		problems = append(problems, fmt.Sprintf("max_connections must not be negative, got %d", o.MaxConnections))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Config is the immutable acceptor configuration. It is passed by value and
// exposes its fields through accessors only.
type Config struct {
	bindAddress        string
	port               int
	idleTimeoutSeconds int
	maxConnections     int
}

// New validates opts and freezes them into a Config.
func New(opts Options) (Config, error) {
	if err := opts.Validate(); err != nil {
		return Config{}, err
	}
	return Config{
		bindAddress:        opts.BindAddress,
		port:               opts.Port,
		idleTimeoutSeconds: opts.IdleTimeoutSeconds,
		maxConnections:     opts.MaxConnections,
	}, nil
}

// BindAddress returns the configured listen address.
func (c Config) BindAddress() string { return c.bindAddress }

// Port returns the configured listen port.
func (c Config) Port() int { return c.port }

// IdleTimeoutSeconds returns the bidirectional idle timeout in seconds.
func (c Config) IdleTimeoutSeconds() int { return c.idleTimeoutSeconds }

// IdleTimeout returns the idle timeout as a duration.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.idleTimeoutSeconds) * time.Second
}

// MaxConnections returns the concurrent connection cap, 0 meaning unlimited.
func (c Config) MaxConnections() int { return c.maxConnections }

// Addr returns the host:port the acceptor binds to.
func (c Config) Addr() string {
	return net.JoinHostPort(c.bindAddress, strconv.Itoa(c.port))
}

// Options returns a copy of the values this Config was built from.
func (c Config) Options() Options {
	return Options{
		BindAddress:        c.bindAddress,
		Port:               c.port,
		IdleTimeoutSeconds: c.idleTimeoutSeconds,
		MaxConnections:     c.maxConnections,
	}
}

// LoadOptions reads options from a JSON or YAML file layered over the defaults.
// A missing file yields the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &opts)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &opts)
	default:
		return opts, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return opts, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return opts, nil
}

// Load reads and validates the configuration at path.
func Load(path string) (Config, error) {
	opts, err := LoadOptions(path)
	if err != nil {
		return Config{}, err
	}
	return New(opts)
}
