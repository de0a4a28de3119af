package engine

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"
)

// WaitPolicy selects the rule Send uses to decide it is done reading, per
// §4.G.
type WaitPolicy string

const (
	PolicyKeyword   WaitPolicy = "keyword"
	PolicyTimeout   WaitPolicy = "timeout"
	PolicyNone      WaitPolicy = "none"
	PolicyATCommand WaitPolicy = "at_command"
)

// AT_COMMAND's compound stop condition: the first occurrence of any of
// these three terminators, tolerating both echo-on and echo-off modes
// (no echo stripping is performed — see DESIGN.md Open Question (a)).
var atCommandTerminators = [][]byte{
	[]byte("OK\r\n"),
	[]byte("ERROR\r\n"),
	[]byte("> "),
}

// SendResult is the tagged product type returned by Send, rendered by the
// outer tool layer into the send_data success envelope of §6.
type SendResult struct {
	OK                 bool
	Text               string
	Raw                []byte
	IsHex              bool
	MatchedStopPattern *bool
	MatchedTerminator  string
	BytesReceived      int
	PendingAsyncCount  int
	Truncated          bool
}

// controller implements the Sync Controller of §4.G: the four wait
// policies, mode entry/exit around a send, and response assembly.
type controller struct {
	transport Transport
	gate      *modeGate
	sync      *syncChannel
	store     *asyncStore
	metrics   *metricsCollector
	logger    *slog.Logger
	codec     Codec

	responseBufferCap int

	sendMu sync.Mutex

	connected func() bool
	fault     func(error)
}

// Send implements the common preamble/per-policy-loop/postamble of §4.G.
func (c *controller) Send(ctx context.Context, payload []byte, policy WaitPolicy, stopPattern []byte, timeout time.Duration) (SendResult, error) {
	if !c.connected() {
		return SendResult{}, &Error{Code: CodeConnection, Err: ErrNotConnected}
	}

	switch policy {
	case PolicyKeyword:
		if len(stopPattern) == 0 {
			return SendResult{}, &Error{Code: CodeInvalidInput, Err: ErrMissingStopPattern}
		}
	case PolicyTimeout, PolicyNone, PolicyATCommand:
		// no additional required inputs
	default:
		return SendResult{}, &Error{Code: CodeInvalidInput, Err: ErrUnknownWaitPolicy}
	}

	start := time.Now()

	// Preamble steps 2-5.
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.gate.set(modeSync)
	c.sync.drain()

	if err := c.writeFull(payload); err != nil {
		c.gate.set(modeIdle)
		c.metrics.recordError()
		return SendResult{}, &Error{Code: CodeConnection, Err: err}
	}
	c.metrics.recordSend(len(payload))

	acc := newResponseAccumulator(c.responseBufferCap)

	var result SendResult
	var err error
	switch policy {
	case PolicyKeyword:
		result, err = c.runKeyword(ctx, acc, stopPattern, timeout)
	case PolicyATCommand:
		result, err = c.runATCommand(ctx, acc, timeout)
	case PolicyTimeout:
		result, err = c.runTimeout(ctx, acc, timeout)
	case PolicyNone:
		result = SendResult{OK: true, BytesReceived: 0}
	}

	// Postamble: flip back to Idle, discard any chunks still queued (I4),
	// and release the mutex (deferred above).
	c.gate.set(modeIdle)
	c.sync.drain()

	if err != nil {
		return SendResult{}, err
	}

	result.PendingAsyncCount = c.store.pendingCount()
	c.metrics.recordResponseTime(time.Since(start))
	return result, nil
}

// writeFull writes payload in full, retrying any partial write until
// success or a fatal error (§4.G preamble step 5).
func (c *controller) writeFull(payload []byte) error {
	remaining := payload
	for len(remaining) > 0 {
		n, err := c.transport.Write(remaining)
		if err != nil {
			return err
		}
		remaining = remaining[n:]
	}
	return nil
}

// runKeyword implements the KEYWORD policy: pop, append, search after
// every append, first match wins (§4.G's tie-break rule). Grounded on
// Gurux's synchronousMediaBase.Search buffer+scan design, reimplemented as
// a plain scan since the Sync Channel already serializes one chunk at a
// time.
func (c *controller) runKeyword(ctx context.Context, acc *responseAccumulator, stopPattern []byte, timeout time.Duration) (SendResult, error) {
	deadline := time.Now().Add(timeout)
	matched := false

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		popCtx, cancel := context.WithTimeout(ctx, remaining)
		chunk, err := c.sync.pop(popCtx)
		cancel()
		if err != nil {
			break
		}

		overflow := acc.append(chunk)
		if len(overflow) > 0 {
			c.publishOverflow(overflow)
		}

		if bytes.Contains(acc.bytes(), stopPattern) {
			matched = true
			break
		}
	}

	text, isHex := c.codec.Decode(acc.bytes())
	m := matched
	return SendResult{
		OK:                 true,
		Text:               text,
		Raw:                acc.bytes(),
		IsHex:              isHex,
		MatchedStopPattern: &m,
		BytesReceived:      acc.len(),
		Truncated:          acc.truncated,
	}, nil
}

// runATCommand is KEYWORD-equivalent with the 3-way terminator set of
// §4.G's AT_COMMAND convenience policy.
func (c *controller) runATCommand(ctx context.Context, acc *responseAccumulator, timeout time.Duration) (SendResult, error) {
	deadline := time.Now().Add(timeout)
	matched := false
	var which string

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		popCtx, cancel := context.WithTimeout(ctx, remaining)
		chunk, err := c.sync.pop(popCtx)
		cancel()
		if err != nil {
			break
		}

		overflow := acc.append(chunk)
		if len(overflow) > 0 {
			c.publishOverflow(overflow)
		}

		buf := acc.bytes()
		for _, term := range atCommandTerminators {
			if bytes.Contains(buf, term) {
				matched = true
				which = string(term)
				break
			}
		}
		if matched {
			break
		}
	}

	text, isHex := c.codec.Decode(acc.bytes())
	m := matched
	return SendResult{
		OK:                 true,
		Text:               text,
		Raw:                acc.bytes(),
		IsHex:              isHex,
		MatchedStopPattern: &m,
		MatchedTerminator:  which,
		BytesReceived:      acc.len(),
		Truncated:          acc.truncated,
	}, nil
}

// runTimeout implements TIMEOUT: accumulate every chunk until timeout
// elapses. Always succeeds, even with zero bytes.
func (c *controller) runTimeout(ctx context.Context, acc *responseAccumulator, timeout time.Duration) (SendResult, error) {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		popCtx, cancel := context.WithTimeout(ctx, remaining)
		chunk, err := c.sync.pop(popCtx)
		cancel()
		if err != nil {
			break
		}
		overflow := acc.append(chunk)
		if len(overflow) > 0 {
			c.publishOverflow(overflow)
		}
	}

	text, isHex := c.codec.Decode(acc.bytes())
	return SendResult{
		OK:            true,
		Text:          text,
		Raw:           acc.bytes(),
		IsHex:         isHex,
		BytesReceived: acc.len(),
		Truncated:     acc.truncated,
	}, nil
}

// publishOverflow routes response bytes beyond ResponseBufferCap to the
// async path per §7's TRUNCATION behavior, feeding any resulting drop into
// the performance metrics collector.
func (c *controller) publishOverflow(b []byte) {
	text, isHex := c.codec.Decode(b)
	pkt := AsyncPacket{Bytes: b, Text: text, IsHex: isHex, Timestamp: time.Now()}
	if c.store.push(pkt) {
		c.metrics.recordAsyncOverflow(1)
	}
}

// responseAccumulator is the mutable ResponseBuffer of §3, capped at
// ResponseBufferCap. Bytes beyond the cap are not appended; append
// returns them as overflow so the caller can route them to the async
// path per §7's TRUNCATION behavior ("further bytes enter the Async
// path").
type responseAccumulator struct {
	buf       []byte
	cap       int
	truncated bool
}

func newResponseAccumulator(cap int) *responseAccumulator {
	return &responseAccumulator{cap: cap}
}

func (a *responseAccumulator) append(chunk []byte) (overflow []byte) {
	if a.truncated {
		return chunk
	}
	room := a.cap - len(a.buf)
	if room <= 0 {
		a.truncated = true
		return chunk
	}
	if len(chunk) <= room {
		a.buf = append(a.buf, chunk...)
		return nil
	}
	a.buf = append(a.buf, chunk[:room]...)
	a.truncated = true
	return chunk[room:]
}

func (a *responseAccumulator) bytes() []byte { return a.buf }
func (a *responseAccumulator) len() int      { return len(a.buf) }
