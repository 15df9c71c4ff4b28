package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// DefaultBufferSize is the stream's bounded buffer when the caller does
// not configure one.
const DefaultBufferSize = 64

// ErrStreamClosed is returned by Send after Close.
var ErrStreamClosed = errors.New("event stream closed")

// Stream is a bounded event channel between the engine (producer) and
// the transport (consumer). A full buffer blocks the producer; events
// are never dropped, since a dropped sources event would lose data.
type Stream struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewStream creates a stream with the given buffer size (DefaultBufferSize
// if size <= 0).
func NewStream(size int) *Stream {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Stream{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
}

// Send delivers an event, blocking while the buffer is full. Returns
// ctx's error on cancellation or ErrStreamClosed after Close. Closure
// and cancellation are checked before the send is attempted, so an
// already-dead ctx never delivers; no stray events after cancel.
func (s *Stream) Send(ctx context.Context, ev Event) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the producer side finished. Idempotent. Events already
// buffered remain readable via Recv.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Recv returns the next event. ok is false once the stream is closed
// and drained, or when ctx is done.
func (s *Stream) Recv(ctx context.Context) (Event, bool) {
	select {
	case ev := <-s.ch:
		return ev, true
	default:
	}
	select {
	case ev := <-s.ch:
		return ev, true
	case <-s.done:
		// Closed: drain whatever is still buffered.
		select {
		case ev := <-s.ch:
			return ev, true
		default:
			return Event{}, false
		}
	case <-ctx.Done():
		return Event{}, false
	}
}

// Flusher is the subset of http.Flusher the NDJSON writer needs.
type Flusher interface {
	Flush()
}

// WriteNDJSON copies the stream to w as newline-delimited JSON, one
// event per line, flushing after each event when f is non-nil. Returns
// on stream close, ctx cancellation, or write error.
func WriteNDJSON(ctx context.Context, w io.Writer, f Flusher, s *Stream) error {
	enc := json.NewEncoder(w)
	for {
		ev, ok := s.Recv(ctx)
		if !ok {
			return ctx.Err()
		}
		// Encode appends the trailing newline.
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if f != nil {
			f.Flush()
		}
	}
}
