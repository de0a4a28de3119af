// Package engine implements the protocol-agnostic serial-port I/O engine:
// concurrent ingestion, mode-switched demultiplexer, idle-timer
// packetizer, encoding-adaptive codec, and the four synchronous wait
// policies described by the specification this module implements.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Engine is a singleton per open connection: it owns a Port Handle
// (possibly absent), a Mode flag, a Sync Channel, an Async Packetizer, an
// Async Store, and the Reader goroutine. It transitions Closed -> Open on
// Connect and Open -> Closed on Disconnect or a fatal I/O error; every
// exit path guarantees Reader termination and OS descriptor release.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metricsCollector

	// lifecycle guards Connect/Disconnect against concurrent callers;
	// Send/ReadAsyncMessages never take it, they only read the atomic
	// isOpen flag and the current component pointers.
	lifecycle sync.Mutex

	isOpen atomic.Bool
	params atomic.Value // ConnParams

	transport  Transport
	gate       *modeGate
	syncCh     *syncChannel
	pkt        *packetizer
	store      *asyncStore
	controller *controller

	cancel context.CancelFunc
	done   chan struct{}

	lastFault atomic.Value // faultRecord
}

// faultRecord boxes the Engine's last terminal fault for lastFault; a zero
// faultRecord means no fault (atomic.Value cannot store a nil interface).
type faultRecord struct{ err error }

// New constructs an unopened Engine. Call Connect before Send or
// ReadAsyncMessages will succeed.
func New(cfg Config) (*Engine, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger,
		metrics: newMetricsCollector(),
	}, nil
}

// Connect opens the Port Handle and starts the Reader. If the Engine is
// already Open with matching ConnParams this is a no-op; with differing
// parameters it is an error (§4 state diagram).
func (e *Engine) Connect(ctx context.Context, params ConnParams) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.isOpen.Load() {
		if cur, ok := e.params.Load().(ConnParams); ok && cur == params {
			return nil
		}
		return &Error{Code: CodeConnection, Err: ErrAlreadyConnected}
	}

	transport, err := e.cfg.Dialer.Dial(ctx, params)
	if err != nil {
		return &Error{Code: CodeConnection, Err: err}
	}
	if err := transport.SetReadTimeout(e.cfg.ReadPollInterval); err != nil {
		transport.Close()
		return &Error{Code: CodeConnection, Err: err}
	}

	e.transport = transport
	e.gate = &modeGate{}
	e.syncCh = newSyncChannel(e.cfg.SyncChannelCap)
	e.pkt = newPacketizer(e.cfg.IdleThreshold)
	e.store = newAsyncStore(e.cfg.AsyncStoreCapacity)
	e.lastFault.Store(faultRecord{})

	e.controller = &controller{
		transport:         transport,
		gate:              e.gate,
		sync:              e.syncCh,
		store:             e.store,
		metrics:           e.metrics,
		logger:            e.logger,
		responseBufferCap: e.cfg.ResponseBufferCap,
		connected:         e.isOpen.Load,
		fault:             e.recordFault,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	rd := &reader{
		transport: transport,
		gate:      e.gate,
		sync:      e.syncCh,
		pkt:       e.pkt,
		store:     e.store,
		metrics:   e.metrics,
		logger:    e.logger,
		chunkSize: e.cfg.ReadChunkSize,
		// A terminal Reader fault also stops the Reader and releases the
		// port, so a faulted Engine holds no descriptor.
		fault: func(err error) {
			e.recordFault(err)
			cancel()
			transport.Close()
		},
	}

	var eg errgroup.Group
	eg.Go(func() error {
		defer close(e.done)
		rd.run(runCtx)
		return nil
	})

	e.params.Store(params)
	e.isOpen.Store(true)
	e.logger.Info("connected", "port", params.PortName, "baud", params.BaudRate)
	return nil
}

// recordFault is the Reader's (or Controller's) terminal-fault callback:
// it records the cause and flips the Engine to Closed so subsequent Send
// calls fail fast with CONNECTION_ERROR (§7 propagation policy).
func (e *Engine) recordFault(err error) {
	e.lastFault.Store(faultRecord{err: err})
	e.isOpen.Store(false)
	e.metrics.recordError()
}

// Disconnect asserts the shutdown signal, waits up to ShutdownGrace for
// the Reader to observe it, then force-releases the port.
func (e *Engine) Disconnect() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if !e.isOpen.Load() {
		return &Error{Code: CodeConnection, Err: ErrAlreadyClosed}
	}

	e.isOpen.Store(false)
	e.cancel()

	select {
	case <-e.done:
	case <-time.After(e.cfg.ShutdownGrace):
		e.logger.Warn("reader did not exit within shutdown grace period")
	}

	err := e.transport.Close()
	e.logger.Info("disconnected")
	if err != nil {
		return &Error{Code: CodeConnection, Err: err}
	}
	return nil
}

// Send forwards to the Sync Controller, failing fast with
// CONNECTION_ERROR if the Engine is not Open.
func (e *Engine) Send(ctx context.Context, payload []byte, policy WaitPolicy, stopPattern []byte, timeout time.Duration) (SendResult, error) {
	if !e.isOpen.Load() {
		if f, ok := e.lastFault.Load().(faultRecord); ok && f.err != nil {
			return SendResult{}, &Error{Code: CodeConnection, Err: f.err}
		}
		return SendResult{}, &Error{Code: CodeConnection, Err: ErrNotConnected}
	}
	return e.controller.Send(ctx, payload, policy, stopPattern, timeout)
}

// ReadAsyncMessages drains the Async Store, returning every packet
// published since the previous call and how many packets were dropped to
// overflow in the meantime.
func (e *Engine) ReadAsyncMessages() ([]AsyncPacket, int) {
	if e.store == nil {
		return nil, 0
	}
	return e.store.drain()
}

// Connected reports whether the Engine currently owns an open Port
// Handle.
func (e *Engine) Connected() bool {
	return e.isOpen.Load()
}

// Codec exposes the engine's encoding adapter so the outer tool layer can
// encode a caller's payload before calling Send.
func (e *Engine) Codec() Codec {
	return Codec{}
}

// Metrics returns a snapshot of the performance counters accumulated over
// the Engine's lifetime.
func (e *Engine) Metrics() PerformanceMetrics {
	return e.metrics.snapshot()
}
