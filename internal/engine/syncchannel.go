package engine

import "context"

// syncChannel is the bounded ordered chunk queue of §4.D carrying bytes
// from the Reader to the Sync Controller while Mode=Sync. Its bound is a
// backpressure safety, not a design ceiling: a full channel means the
// Controller isn't consuming, a SYSTEM_ERROR per §7.
type syncChannel struct {
	ch chan []byte
}

func newSyncChannel(capacity int) *syncChannel {
	return &syncChannel{ch: make(chan []byte, capacity)}
}

// push is called only by the Reader. It never blocks: a full channel is a
// fatal internal error, reported through ok=false so the Reader can
// transition the Engine to Closed rather than stalling forever (I2 would
// otherwise be violated by a silently blocked Reader).
func (c *syncChannel) push(b []byte) (ok bool) {
	select {
	case c.ch <- b:
		return true
	default:
		return false
	}
}

// pop blocks for the next chunk until ctx is done.
func (c *syncChannel) pop(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.ch:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// drain discards any chunks currently queued, without blocking. Used
// before each Sync-mode send (§4.G preamble step 4) and to implement I4 on
// Sync->Idle transition.
func (c *syncChannel) drain() {
	for {
		select {
		case <-c.ch:
		default:
			return
		}
	}
}
