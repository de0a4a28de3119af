package engine

import (
	"context"
	"testing"
	"time"
)

type fakeDialer struct {
	transport    *fakeTransport
	dialErr      error
	dialedParams ConnParams
}

func (d *fakeDialer) Dial(ctx context.Context, params ConnParams) (Transport, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.dialedParams = params
	return d.transport, nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	transport.SetReadTimeout(5 * time.Millisecond)
	cfg := Config{
		Dialer:             &fakeDialer{transport: transport},
		ReadChunkSize:      256,
		ReadPollInterval:   5 * time.Millisecond,
		IdleThreshold:      20 * time.Millisecond,
		SyncChannelCap:     16,
		AsyncStoreCapacity: 16,
		ResponseBufferCap:  4096,
		ShutdownGrace:      200 * time.Millisecond,
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, transport
}

func TestEngineConnectDialsWithRequestedParams(t *testing.T) {
	transport := newFakeTransport()
	transport.SetReadTimeout(5 * time.Millisecond)
	dialer := &fakeDialer{transport: transport}
	cfg := Config{Dialer: dialer}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params := ConnParams{PortName: "COM3", BaudRate: 9600}
	if err := e.Connect(context.Background(), params); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	if dialer.dialedParams != params {
		t.Fatalf("Dial was called with %+v, want %+v", dialer.dialedParams, params)
	}
}

func TestEngineConnectIsIdempotentWithSameParams(t *testing.T) {
	e, _ := newTestEngine(t)
	params := ConnParams{PortName: "/dev/ttyUSB0", BaudRate: 115200}

	if err := e.Connect(context.Background(), params); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if err := e.Connect(context.Background(), params); err != nil {
		t.Fatalf("second Connect with matching params should be a no-op: %v", err)
	}
	e.Disconnect()
}

func TestEngineConnectWithDifferentParamsWhileOpenFails(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.Connect(context.Background(), ConnParams{PortName: "/dev/ttyUSB0", BaudRate: 115200}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	err := e.Connect(context.Background(), ConnParams{PortName: "/dev/ttyUSB0", BaudRate: 9600})
	if err == nil {
		t.Fatalf("expected error reconnecting with different params while open")
	}
}

func TestEngineSendFailsWhenNotConnected(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Send(context.Background(), []byte("AT\r\n"), PolicyNone, nil, 0)
	if err == nil {
		t.Fatalf("expected error sending on an unopened engine")
	}
}

func TestEngineEndToEndSendAndAsyncDrain(t *testing.T) {
	e, transport := newTestEngine(t)
	if err := e.Connect(context.Background(), ConnParams{PortName: "/dev/ttyUSB0", BaudRate: 115200}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	// An unsolicited message arrives first, while the engine is idle.
	transport.emit([]byte("+CREG: 1\r\n"))
	time.Sleep(40 * time.Millisecond)

	pkts, dropped := e.ReadAsyncMessages()
	if dropped != 0 {
		t.Fatalf("unexpected drops: %d", dropped)
	}
	if len(pkts) != 1 || pkts[0].Text != "+CREG: 1\r\n" {
		t.Fatalf("expected the URC to have been captured, got %+v", pkts)
	}

	// Now drive a synchronous exchange.
	go func() {
		time.Sleep(10 * time.Millisecond)
		transport.emit([]byte("OK\r\n"))
	}()

	result, err := e.Send(context.Background(), []byte("AT\r\n"), PolicyATCommand, nil, time.Second)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.MatchedTerminator != "OK\r\n" {
		t.Fatalf("unexpected terminator: %q", result.MatchedTerminator)
	}
}

func TestEngineDisconnectWithoutConnectFails(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.Disconnect(); err == nil {
		t.Fatalf("expected error disconnecting an already-closed engine")
	}
}

func TestEngineRecordsFaultOnTransportClose(t *testing.T) {
	e, transport := newTestEngine(t)
	if err := e.Connect(context.Background(), ConnParams{PortName: "/dev/ttyUSB0", BaudRate: 115200}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	transport.Close()
	time.Sleep(40 * time.Millisecond)

	if e.Connected() {
		t.Fatalf("expected engine to transition to closed after a fatal transport error")
	}

	_, err := e.Send(context.Background(), []byte("AT\r\n"), PolicyNone, nil, 0)
	if err == nil {
		t.Fatalf("expected Send to fail fast after a recorded fault")
	}
}

func TestEngineMetricsAccumulate(t *testing.T) {
	e, transport := newTestEngine(t)
	if err := e.Connect(context.Background(), ConnParams{PortName: "/dev/ttyUSB0", BaudRate: 115200}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	if _, err := e.Send(context.Background(), []byte("AT\r\n"), PolicyNone, nil, 0); err != nil {
		t.Fatalf("Send: %v", err)
	}
	_ = transport

	m := e.Metrics()
	if m.SendOps != 1 {
		t.Fatalf("SendOps = %d, want 1", m.SendOps)
	}
	if m.BytesSent != 4 {
		t.Fatalf("BytesSent = %d, want 4", m.BytesSent)
	}
}
