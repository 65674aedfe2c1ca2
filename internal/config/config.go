// Package config loads and validates oggseek configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every setting the command and the server read.
type Config struct {
	Logging Logging `toml:"logging"`
	Demux   Demux   `toml:"demux"`
	Server  Server  `toml:"server"`
}

// Logging configures both the application and demuxer loggers.
type Logging struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `toml:"level"`
	// Format is text or json.
	Format string `toml:"format"`
}

// Demux configures how streams are read and seeked.
type Demux struct {
	// MatchRange is the byte range below which seeking scans pages linearly.
	MatchRange int64 `toml:"match_range"`
	// ChunkSize is the largest single read from the underlying file.
	ChunkSize int `toml:"chunk_size"`
	// UseIndex builds a page index up front and seeks from it.
	UseIndex bool `toml:"use_index"`
}

// Server configures the HTTP server.
type Server struct {
	// Listen is the address to bind (host:port).
	Listen string `toml:"listen"`
	// TargetDuration is the playlist segment target duration in seconds.
	TargetDuration int `toml:"target_duration"`
	// ShutdownTimeout is the graceful shutdown timeout in seconds.
	ShutdownTimeout int `toml:"shutdown_timeout"`
}

const (
	defaultMatchRange      = 100000
	defaultChunkSize       = 64 << 10
	defaultListen          = ":8080"
	defaultTargetDuration  = 6
	defaultShutdownTimeout = 10
)

// Default returns a configuration with every default applied.
func Default() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

// Load reads the TOML file at path over the defaults and validates the
// result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := cfg.Decode(file); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode reads TOML from r into c. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate checks the configuration and fills in zero values with defaults.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}

	if c.Demux.MatchRange < 0 {
		return fmt.Errorf("demux.match_range must not be negative")
	}
	if c.Demux.ChunkSize < 0 {
		return fmt.Errorf("demux.chunk_size must not be negative")
	}

	if c.Server.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
			return fmt.Errorf("invalid server.listen address %q: %w", c.Server.Listen, err)
		}
	}
	if c.Server.TargetDuration < 0 {
		return fmt.Errorf("server.target_duration must not be negative")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative")
	}

	c.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Demux.MatchRange == 0 {
		c.Demux.MatchRange = defaultMatchRange
	}
	if c.Demux.ChunkSize == 0 {
		c.Demux.ChunkSize = defaultChunkSize
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	if c.Server.TargetDuration == 0 {
		c.Server.TargetDuration = defaultTargetDuration
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
}
