package camera

import (
	"sync"
	"time"

	"github.com/smazurov/uvcnode/internal/driver"
)

// maxFrameReads is how many times one delivered frame is handed out before
// it is treated as stale.
const maxFrameReads = 2

// Frame describes one captured frame. Frames returned by Camera.Frame own
// their Data: no driver writes to it after delivery, but both reads of one
// frame share the same bytes, so treat Data as read-only. Use Clone before
// modifying it.
type Frame struct {
	Count     uint
	Height    int
	Width     int
	Format    Format
	Data      []byte
	Size      uint
	Sequence  uint32
	Timestamp time.Time
}

// Clone returns a copy that owns its pixel data.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	if f.Data != nil {
		c.Data = make([]byte, len(f.Data))
		copy(c.Data, f.Data)
	}
	return &c
}

type slotState uint8

const (
	slotEmpty slotState = iota // nothing delivered yet
	slotFresh                  // delivered, not yet read
	slotRead                   // read at least once, still servable
	slotStale                  // read maxFrameReads times
)

func (s slotState) String() string {
	switch s {
	case slotEmpty:
		return "empty"
	case slotFresh:
		return "fresh"
	case slotRead:
		return "read"
	case slotStale:
		return "stale"
	}
	return "invalid"
}

// frameSlot holds the most recent frame. Writes come from the driver
// goroutine and reads from callers.
//
// store copies the driver bytes into a buffer owned by the slot. A buffer
// is reused only while its frame was never handed out, so a returned frame
// is never written again.
type frameSlot struct {
	mu    sync.Mutex
	frame Frame
	state slotState
}

func (s *frameSlot) store(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf []byte
	if s.state == slotFresh {
		buf = s.frame.Data
	}
	if f.Data != nil {
		if cap(buf) < len(f.Data) {
			buf = make([]byte, len(f.Data))
		}
		buf = buf[:len(f.Data)]
		copy(buf, f.Data)
	} else {
		buf = nil
	}

	s.frame = f
	s.frame.Data = buf
	s.frame.Count = 0
	s.state = slotFresh
}

// take returns a snapshot of the frame and bumps its counter, or nil when
// the slot is empty or stale.
func (s *frameSlot) take() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == slotEmpty || s.state == slotStale {
		return nil
	}
	s.frame.Count++
	if s.frame.Count >= maxFrameReads {
		s.state = slotStale
	} else {
		s.state = slotRead
	}
	f := s.frame
	return &f
}

func (s *frameSlot) status() slotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *frameSlot) reset() {
	s.mu.Lock()
	s.frame = Frame{}
	s.state = slotEmpty
	s.mu.Unlock()
}

// deliver converts a raw driver frame and hands it to cb on the calling
// (driver) goroutine. Nil inputs are ignored. The frame passed to cb still
// borrows the driver buffer and is only valid until cb returns.
func deliver(raw *driver.RawFrame, cb func(Frame)) {
	if raw == nil || cb == nil {
		return
	}
	var f Frame
	f.Format = FormatFromNative(raw.Format)
	f.Size = uint(len(raw.Data))
	f.Height = raw.Height
	f.Width = raw.Width
	f.Data = raw.Data
	f.Sequence = raw.Sequence
	f.Timestamp = raw.Timestamp
	f.Count = 0
	cb(f)
}
