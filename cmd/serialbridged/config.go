package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds the daemon's runtime configuration.
type Config struct {
	// SerialPort is the path to the device's serial port (e.g. "/dev/ttyUSB0").
	SerialPort string
	// BaudRate is the baud rate used when a connect call doesn't override it.
	BaudRate int
	// LogLevel sets the logging level (debug, info, warn, error).
	LogLevel string
	// IdleThreshold is the Async Packetizer's idle-gap flush threshold.
	IdleThreshold time.Duration
	// ResponseBufferCap bounds a single Send's accumulated response.
	ResponseBufferCap int
	// AsyncStoreCapacity bounds the pending-URC backlog.
	AsyncStoreCapacity int
}

// ConfigOption is a function that modifies a Config in place.
type ConfigOption func(*Config) error

// LoadConfig builds a Config by applying opts in order; later options
// override earlier ones.
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// WithDefaults applies the daemon's baseline configuration.
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.IdleThreshold = 100 * time.Millisecond
		c.ResponseBufferCap = 4096
		c.AsyncStoreCapacity = 1000
		return nil
	}
}

// WithEnv overrides configuration from environment variables.
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if v := os.Getenv("SERIAL_PORT"); v != "" {
			c.SerialPort = v
		}
		if v := os.Getenv("BAUD_RATE"); v != "" {
			if b, err := strconv.Atoi(v); err == nil {
				c.BaudRate = b
			}
		}
		if v := os.Getenv("LOG_LEVEL"); v != "" {
			c.LogLevel = v
		}
		if v := os.Getenv("IDLE_THRESHOLD_MS"); v != "" {
			if ms, err := strconv.Atoi(v); err == nil {
				c.IdleThreshold = time.Duration(ms) * time.Millisecond
			}
		}
		if v := os.Getenv("RESPONSE_BUFFER_CAP"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.ResponseBufferCap = n
			}
		}
		if v := os.Getenv("ASYNC_STORE_CAPACITY"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.AsyncStoreCapacity = n
			}
		}
		return nil
	}
}

// WithFlags overrides configuration from explicitly-set command-line flags.
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "idle-threshold-ms":
				if ms, err := strconv.Atoi(f.Value.String()); err == nil {
					c.IdleThreshold = time.Duration(ms) * time.Millisecond
				}
			case "response-buffer-cap":
				if n, err := strconv.Atoi(f.Value.String()); err == nil {
					c.ResponseBufferCap = n
				}
			case "async-store-capacity":
				if n, err := strconv.Atoi(f.Value.String()); err == nil {
					c.AsyncStoreCapacity = n
				}
			}
		})
		return nil
	}
}
