package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/agleyzer/oggseek/internal/config"
	"github.com/agleyzer/oggseek/internal/logging"
	"github.com/agleyzer/oggseek/internal/probe"
)

type globalFlags struct {
	config    string
	logLevel  string
	logFormat string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// ensureConfig loads the configuration once and applies the logging flags
// over it.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if c.flags.logLevel != "" {
			cfg.Logging.Level = c.flags.logLevel
		}
		if c.flags.logFormat != "" {
			cfg.Logging.Format = c.flags.logFormat
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logOptions(out io.Writer) logging.Options {
	return logging.Options{
		Level:  c.config.Logging.Level,
		Format: c.config.Logging.Format,
		Output: out,
	}
}

func (c *commandContext) logger(out io.Writer) (*slog.Logger, error) {
	return logging.New(c.logOptions(out))
}

func (c *commandContext) demuxLogger(out io.Writer) (hclog.Logger, error) {
	return logging.NewDemuxLogger(c.logOptions(out))
}

// demuxOptions builds the demuxer options from the configuration.
func (c *commandContext) demuxOptions(out io.Writer) (probe.Options, error) {
	log, err := c.demuxLogger(out)
	if err != nil {
		return probe.Options{}, err
	}
	return probe.Options{
		Logger:     log,
		MatchRange: c.config.Demux.MatchRange,
		ChunkSize:  c.config.Demux.ChunkSize,
	}, nil
}

// mediaFile is an open input file.
type mediaFile struct {
	*os.File
	name    string
	size    int64
	modTime time.Time
}

func openMedia(path string) (*mediaFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open media: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat media: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open media: %s is a directory", path)
	}
	return &mediaFile{File: f, name: info.Name(), size: info.Size(), modTime: info.ModTime()}, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
