package engine

import (
	"log/slog"
	"time"
)

// ConnParams identifies the physical line parameters of an open connection,
// used by Connect to decide whether a repeated Connect call is a no-op
// (matching parameters) or an error (differing parameters) per the Mode
// state diagram in §4.
type ConnParams struct {
	PortName string
	BaudRate int
}

// Config configures an Engine. Zero-value fields are filled in by
// setDefaults; construct one directly or through NewConfigBuilder's chained
// With* calls.
type Config struct {
	Dialer Dialer
	Logger *slog.Logger

	BaudRate int

	ReadChunkSize      int
	ReadPollInterval   time.Duration
	IdleThreshold      time.Duration
	SyncChannelCap     int
	AsyncStoreCapacity int
	ResponseBufferCap  int
	ShutdownGrace      time.Duration
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = 115200
	}
	if c.ReadChunkSize == 0 {
		c.ReadChunkSize = 4096
	}
	if c.ReadPollInterval == 0 {
		c.ReadPollInterval = 20 * time.Millisecond
	}
	if c.IdleThreshold == 0 {
		c.IdleThreshold = 100 * time.Millisecond
	}
	if c.SyncChannelCap == 0 {
		c.SyncChannelCap = 256
	}
	if c.AsyncStoreCapacity == 0 {
		c.AsyncStoreCapacity = 1000
	}
	if c.ResponseBufferCap == 0 {
		c.ResponseBufferCap = 4096
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = time.Second
	}
}

// DefaultConfig returns a Config with every default from §6 applied and no
// Dialer configured; callers must set one before use.
func DefaultConfig() Config {
	c := Config{}
	c.setDefaults()
	return c
}

// ConfigBuilder builds a Config through chained With* calls, mirroring the
// modem.NewConfigBuilder() fluent style this module is descended from.
type ConfigBuilder struct {
	cfg Config
}

// NewConfigBuilder starts a new ConfigBuilder with every default pre-applied.
func NewConfigBuilder() *ConfigBuilder {
	b := &ConfigBuilder{}
	b.cfg.setDefaults()
	return b
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.cfg.Dialer = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.cfg.Logger = l
	return b
}

func (b *ConfigBuilder) WithBaudRate(baud int) *ConfigBuilder {
	b.cfg.BaudRate = baud
	return b
}

func (b *ConfigBuilder) WithReadChunkSize(n int) *ConfigBuilder {
	b.cfg.ReadChunkSize = n
	return b
}

func (b *ConfigBuilder) WithReadPollInterval(d time.Duration) *ConfigBuilder {
	b.cfg.ReadPollInterval = d
	return b
}

func (b *ConfigBuilder) WithIdleThreshold(d time.Duration) *ConfigBuilder {
	b.cfg.IdleThreshold = d
	return b
}

func (b *ConfigBuilder) WithSyncChannelCap(n int) *ConfigBuilder {
	b.cfg.SyncChannelCap = n
	return b
}

func (b *ConfigBuilder) WithAsyncStoreCapacity(n int) *ConfigBuilder {
	b.cfg.AsyncStoreCapacity = n
	return b
}

func (b *ConfigBuilder) WithResponseBufferCap(n int) *ConfigBuilder {
	b.cfg.ResponseBufferCap = n
	return b
}

func (b *ConfigBuilder) WithShutdownGrace(d time.Duration) *ConfigBuilder {
	b.cfg.ShutdownGrace = d
	return b
}

// Build validates and returns the assembled Config.
func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.cfg.validate(); err != nil {
		return Config{}, err
	}
	return b.cfg, nil
}
