package engine

import (
	"context"
	"testing"
	"time"
)

type nopDialer struct{}

func (nopDialer) Dial(ctx context.Context, params ConnParams) (Transport, error) { return nil, nil }

func TestConfigSetDefaults(t *testing.T) {
	c := DefaultConfig()
	if c.BaudRate != 115200 {
		t.Errorf("BaudRate default = %d, want 115200", c.BaudRate)
	}
	if c.ReadChunkSize != 4096 {
		t.Errorf("ReadChunkSize default = %d, want 4096", c.ReadChunkSize)
	}
	if c.ReadPollInterval != 20*time.Millisecond {
		t.Errorf("ReadPollInterval default = %v, want 20ms", c.ReadPollInterval)
	}
	if c.IdleThreshold != 100*time.Millisecond {
		t.Errorf("IdleThreshold default = %v, want 100ms", c.IdleThreshold)
	}
	if c.SyncChannelCap != 256 {
		t.Errorf("SyncChannelCap default = %d, want 256", c.SyncChannelCap)
	}
	if c.AsyncStoreCapacity != 1000 {
		t.Errorf("AsyncStoreCapacity default = %d, want 1000", c.AsyncStoreCapacity)
	}
	if c.ResponseBufferCap != 4096 {
		t.Errorf("ResponseBufferCap default = %d, want 4096", c.ResponseBufferCap)
	}
	if c.ShutdownGrace != time.Second {
		t.Errorf("ShutdownGrace default = %v, want 1s", c.ShutdownGrace)
	}
}

func TestConfigValidateRequiresDialer(t *testing.T) {
	c := DefaultConfig()
	if err := c.validate(); err == nil {
		t.Fatalf("expected error when no Dialer is configured")
	}
	c.Dialer = nopDialer{}
	if err := c.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigBuilderFluentChain(t *testing.T) {
	cfg, err := NewConfigBuilder().
		WithDialer(nopDialer{}).
		WithBaudRate(9600).
		WithIdleThreshold(25 * time.Millisecond).
		WithResponseBufferCap(2048).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", cfg.BaudRate)
	}
	if cfg.IdleThreshold != 25*time.Millisecond {
		t.Errorf("IdleThreshold = %v, want 25ms", cfg.IdleThreshold)
	}
	if cfg.ResponseBufferCap != 2048 {
		t.Errorf("ResponseBufferCap = %d, want 2048", cfg.ResponseBufferCap)
	}
	// Fields not overridden keep their defaults.
	if cfg.ShutdownGrace != time.Second {
		t.Errorf("ShutdownGrace = %v, want 1s default", cfg.ShutdownGrace)
	}
}

func TestConfigBuilderBuildFailsWithoutDialer(t *testing.T) {
	_, err := NewConfigBuilder().WithBaudRate(9600).Build()
	if err == nil {
		t.Fatalf("expected error without a Dialer")
	}
}
