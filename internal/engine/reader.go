package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// reader is the single background Producer of §4.B. It is the sole reader
// of the Port Handle (I1): every byte it retrieves is routed to either the
// Sync Channel or the packetizer, never both and never dropped silently
// (I2). Grounded on the teacher's Modem.Loop single-goroutine pattern and
// on driver/reader.py's BackgroundReader._run.
type reader struct {
	transport Transport
	gate      *modeGate
	sync      *syncChannel
	pkt       *packetizer
	store     *asyncStore
	metrics   *metricsCollector
	logger    *slog.Logger

	chunkSize int

	fault func(error)
}

// run executes the reader loop until ctx is cancelled or a fatal I/O error
// occurs. It always performs a final packetizer flush before returning
// (§4.B step 5).
func (r *reader) run(ctx context.Context) {
	buf := make([]byte, r.chunkSize)

	for {
		if ctx.Err() != nil {
			r.finalFlush()
			return
		}

		n, err := r.transport.Read(buf)
		if n > 0 {
			now := time.Now()
			chunk := append([]byte(nil), buf[:n]...)
			r.route(chunk, now)
		}

		// Step 4: idle-timer check happens every iteration, whether or not
		// bytes arrived, so the async stream never starves waiting on the
		// next Read to return.
		r.checkIdle(time.Now())

		if err != nil {
			if isTimeout(err) {
				continue
			}
			r.logger.Error("port read failed", "error", err)
			r.metrics.recordError()
			r.finalFlush()
			if r.fault != nil {
				r.fault(newError(CodeConnection, "port read failed: %w", err))
			}
			return
		}
	}
}

// route classifies a chunk by the Mode observed at arrival and dispatches
// it to the Sync Channel or the packetizer (§4.B step 3).
func (r *reader) route(chunk []byte, now time.Time) {
	switch r.gate.load() {
	case modeSync:
		// I3: any Idle-mode bytes accumulated before this transition must
		// be flushed as one final async packet before the new chunk is
		// routed to the sync path, so a partial URC never leaks across
		// the mode boundary.
		if pkt, ok := r.pkt.flush(now); ok {
			r.publish(pkt)
		}
		if !r.sync.push(chunk) {
			r.logger.Error("sync channel overflow")
			if r.fault != nil {
				r.fault(newError(CodeSystem, "%w", ErrSyncChannelOverflow))
			}
		}
	default: // modeIdle
		r.pkt.append(chunk, now)
	}
	r.metrics.recordReceive(len(chunk))
}

// checkIdle flushes the packetizer if the idle threshold has elapsed with
// a non-empty buffer (§4.B step 4 / §4.E trigger 1).
func (r *reader) checkIdle(now time.Time) {
	if !r.pkt.idleElapsed(now) {
		return
	}
	if pkt, ok := r.pkt.flush(now); ok {
		r.publish(pkt)
	}
}

// finalFlush publishes any residual packetizer bytes on shutdown (§4.E
// trigger 3).
func (r *reader) finalFlush() {
	if pkt, ok := r.pkt.flush(time.Now()); ok {
		r.publish(pkt)
	}
}

func (r *reader) publish(pkt AsyncPacket) {
	if r.store.push(pkt) {
		r.metrics.recordAsyncOverflow(1)
	}
	r.metrics.recordAsyncPacket()
}

// isTimeout reports whether err is the expected short-read-timeout
// signal rather than a fatal connectivity fault. go.bug.st/serial returns
// an *os.PathError/net-style timeout-flagged error; we only need to know
// whether it's transient.
func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}
