package lcsframe

import (
	"bytes"

	"github.com/ampiolux/lcs-gateway/internal/metrics"
)

// largeBufferReclaimThreshold is the capacity above which the accumulation
// buffer is discarded and reallocated once fully drained, so that a burst of
// line noise doesn't permanently retain a large backing array.
const largeBufferReclaimThreshold = 16 * 1024

// Reassembler turns a byte stream into a sequence of complete frames,
// repeatedly applying tryDecode and resyncing past framing or BCC errors.
// It is not safe for concurrent use; each Agent connection owns one.
type Reassembler struct {
	acc *bytes.Buffer
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{acc: bytes.NewBuffer(nil)}
}

// Feed appends a newly read chunk and invokes onFrame for each complete frame
// found, in order. onCorrupt, if non-nil, is invoked once per byte dropped
// because of a BCC mismatch; bytes dropped for a bad STX, Length or ETX are
// skipped silently, and it does not fire for ordinary "wait for more data"
// returns.
func (r *Reassembler) Feed(chunk []byte, onFrame func(Frame), onCorrupt func()) {
	r.acc.Write(chunk)
	for {
		res := tryDecode(r.acc.Bytes())
		if res.Consumed == 0 {
			break
		}
		if res.Complete {
			r.acc.Next(res.Consumed)
			metrics.IncFramesDecoded()
			onFrame(res.Frame)
			continue
		}
		if res.FrameCorrupt {
			metrics.IncMalformed()
			if onCorrupt != nil {
				onCorrupt()
			}
		}
		r.acc.Next(res.Consumed)
	}
	if r.acc.Len() == 0 && cap(r.acc.Bytes()) > largeBufferReclaimThreshold {
		r.acc = bytes.NewBuffer(nil)
	}
}

// Len reports the number of unconsumed, buffered bytes (partial frame or
// garbage awaiting resync).
func (r *Reassembler) Len() int { return r.acc.Len() }
