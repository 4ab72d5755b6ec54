// Package sessionconfig loads the tunable knobs a host sets around the
// core channel and container packages: suite selection, chunk size,
// handshake and inactivity deadlines, and keystore location. None of it
// is read by the core packages themselves — a host loads a Config and
// passes the individual values into channel.RunInitiator,
// channel.SendStream, and keystore.Open.
package sessionconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pqfed/transfer/pkg/pqc/channel"
	"github.com/pqfed/transfer/pkg/pqc/container"
	"github.com/pqfed/transfer/pkg/pqc/kem"
)

// Config is the complete tuning surface for one host's transfers.
type Config struct {
	Suite    SuiteConfig    `yaml:"suite"`
	Stream   StreamConfig   `yaml:"stream"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Keystore KeystoreConfig `yaml:"keystore"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SuiteConfig selects which hybrid suites this host offers or accepts.
type SuiteConfig struct {
	PQCAlg string `yaml:"pqc_alg"` // "ML-KEM-512" | "ML-KEM-768" | "ML-KEM-1024"
}

// StreamConfig tunes the chunked container format.
type StreamConfig struct {
	ChunkSizeBytes uint32 `yaml:"chunk_size_bytes"`
}

// TimeoutConfig tunes how long the channel waits at each phase.
type TimeoutConfig struct {
	Handshake       time.Duration `yaml:"handshake"`
	ChunkInactivity time.Duration `yaml:"chunk_inactivity"`
}

// KeystoreConfig locates the at-rest keypair store.
type KeystoreConfig struct {
	Directory string `yaml:"directory"`
}

// LoggingConfig mirrors pkg/logging's constructor arguments.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
}

// Load reads and validates a YAML config file, filling in defaults for
// anything left zero.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sessionconfig: read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("sessionconfig: parse config file: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("sessionconfig: invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Suite.PQCAlg == "" {
		c.Suite.PQCAlg = "ML-KEM-768"
	}
	if c.Stream.ChunkSizeBytes == 0 {
		c.Stream.ChunkSizeBytes = container.DefaultChunkSize
	}
	if c.Timeouts.Handshake == 0 {
		c.Timeouts.Handshake = channel.HandshakeDeadline
	}
	if c.Timeouts.ChunkInactivity == 0 {
		c.Timeouts.ChunkInactivity = 60 * time.Second
	}
	if c.Keystore.Directory == "" {
		c.Keystore.Directory = "./keystore"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	if _, err := c.Alg(); err != nil {
		return err
	}
	if c.Stream.ChunkSizeBytes == 0 {
		return fmt.Errorf("stream.chunk_size_bytes must be positive")
	}
	if c.Timeouts.Handshake <= 0 {
		return fmt.Errorf("timeouts.handshake must be positive")
	}
	if c.Timeouts.ChunkInactivity <= 0 {
		return fmt.Errorf("timeouts.chunk_inactivity must be positive")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	return nil
}

// Alg resolves the configured suite's algorithm tag.
func (c *Config) Alg() (kem.Alg, error) {
	switch c.Suite.PQCAlg {
	case "ML-KEM-512":
		return kem.K512, nil
	case "ML-KEM-768":
		return kem.K768, nil
	case "ML-KEM-1024":
		return kem.K1024, nil
	default:
		return 0, fmt.Errorf("unknown suite.pqc_alg: %q", c.Suite.PQCAlg)
	}
}

// Default returns a config populated entirely with defaults, useful for
// generating a starter file with Write.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Write marshals cfg to path as YAML.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("sessionconfig: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("sessionconfig: write config file: %w", err)
	}
	return nil
}
