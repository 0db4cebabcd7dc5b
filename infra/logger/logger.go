package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/mqttbridge/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Config selects the log level and output format.
type Config struct {
	// Level is a zerolog level name: debug, info, warn or error.
	Level string `json:"level"`
	// Format is "json" or "console". APP_ENV=dev forces console output.
	Format string `json:"format"`
}

func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("logging.format: unknown format %q", c.Format)
	}
	return nil
}

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stdout
	level            = zerolog.InfoLevel
	format           = "json"
)

// Configure sets the level and format used by loggers created afterwards.
func Configure(cfg Config) error {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	lvl, _ := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	mu.Lock()
	level, format = lvl, cfg.Format
	mu.Unlock()
	return nil
}

// SetOutput redirects loggers created afterwards to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// New returns a Logger for the given component.
func New(component string) Logger {
	return NewZerologLogger(component)
}
