package engine

import "time"

// AsyncPacket is a completed, immutable unit of Idle-mode bytes, created by
// the packetizer when the idle threshold elapses with a non-empty buffer
// (or on a forced flush — see §4.E). Timestamp is the arrival time of the
// packet's last byte.
type AsyncPacket struct {
	Bytes     []byte
	Text      string
	IsHex     bool
	Timestamp time.Time
}

// packetizer accumulates Idle-mode bytes into a rolling buffer and emits
// discrete packets on idle-timeout, mode-switch flush, or shutdown.
// Grounded on driver/reader.py's _check_async_idle_timeout /
// _flush_async_buffer pair; not safe for concurrent use, the Reader is its
// sole owner.
type packetizer struct {
	buf       []byte
	lastRx    time.Time
	threshold time.Duration
	codec     Codec
}

func newPacketizer(threshold time.Duration) *packetizer {
	return &packetizer{threshold: threshold, lastRx: time.Now()}
}

// append adds bytes arriving while Mode=Idle and records their arrival
// time for the idle-timeout check.
func (p *packetizer) append(b []byte, arrival time.Time) {
	p.buf = append(p.buf, b...)
	p.lastRx = arrival
}

// idleElapsed reports whether the buffer is non-empty and the idle
// threshold has elapsed since the last byte arrived — the condition the
// Reader checks every loop iteration per §4.B step 4.
func (p *packetizer) idleElapsed(now time.Time) bool {
	return len(p.buf) > 0 && now.Sub(p.lastRx) >= p.threshold
}

// flush closes out the current buffer as one AsyncPacket, or returns
// (AsyncPacket{}, false) if the buffer is empty. Used for the idle-timeout
// path, the forced I3 mode-switch flush, and the final shutdown flush.
func (p *packetizer) flush(now time.Time) (AsyncPacket, bool) {
	if len(p.buf) == 0 {
		return AsyncPacket{}, false
	}
	b := p.buf
	p.buf = nil
	text, isHex := p.codec.Decode(b)
	pkt := AsyncPacket{Bytes: b, Text: text, IsHex: isHex, Timestamp: p.lastRx}
	p.lastRx = now
	return pkt, true
}
