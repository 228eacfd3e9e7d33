package decoder

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"codestream/internal/frames"
	"codestream/internal/logging"
)

// ChunkSource yields raw transport chunks. Next returns io.EOF once the
// upstream has nothing more to send; any other error is a transport failure.
// A chunk and an error may be returned together.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// ChunkSourceFunc adapts a function to ChunkSource.
type ChunkSourceFunc func(ctx context.Context) ([]byte, error)

// Next calls f(ctx).
func (f ChunkSourceFunc) Next(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// Stream drives one Session from a ChunkSource and hands out its events one
// at a time. It does no buffering beyond the events of the chunk in hand.
type Stream struct {
	src     ChunkSource
	frames  *frames.Decoder
	session *Session

	pending []Event
	done    bool
	started time.Time
}

// NewStream wraps src. Options are passed to the underlying Session.
func NewStream(src ChunkSource, opts ...Option) *Stream {
	return &Stream{
		src:     src,
		frames:  frames.NewDecoder(),
		session: NewSession(opts...),
	}
}

// Session exposes the live session, e.g. to read drafts between events.
func (s *Stream) Session() *Session {
	return s.session
}

// Result returns the session result once the terminal event has been produced.
func (s *Stream) Result() (SessionResult, bool) {
	return s.session.Result()
}

// SkippedFrames returns how many payloads were discarded as unparsable.
func (s *Stream) SkippedFrames() int {
	return s.frames.Invalid()
}

// Next returns the next event. After the terminal SessionFinished or
// SessionFailed event it returns io.EOF.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	if s.started.IsZero() {
		s.started = time.Now()
		logging.Stream("session %s: consuming stream", s.session.ID())
		logging.AuditWithSession(s.session.ID()).SessionStart("stream")
	}
	for len(s.pending) == 0 {
		if s.done {
			return Event{}, io.EOF
		}
		s.pull(ctx)
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

// Events returns the remaining events as an iterator. Breaking out of the
// loop leaves the stream where it stopped.
func (s *Stream) Events(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// Drain consumes the stream to its end and returns the result.
func (s *Stream) Drain(ctx context.Context) SessionResult {
	for range s.Events(ctx) {
	}
	res, _ := s.Result()
	return res
}

// pull reads one chunk and queues the events it produces.
func (s *Stream) pull(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		s.fail(&TransportError{Op: "cancel", Err: err})
		return
	}

	chunk, err := s.src.Next(ctx)
	if len(chunk) > 0 {
		s.consume(s.frames.Feed(chunk))
		if s.done {
			return
		}
	}

	switch {
	case err == nil:
		return
	case errors.Is(err, io.EOF):
		s.consume(s.frames.Flush())
		if !s.done {
			logging.StreamDebug("session %s: upstream closed without sentinel", s.session.ID())
			s.finish()
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.fail(&TransportError{Op: "cancel", Err: err})
	default:
		s.fail(&TransportError{Op: "read", Err: err})
	}
}

func (s *Stream) consume(batch []frames.Frame) {
	for _, f := range batch {
		switch f.Kind {
		case frames.KindDelta:
			s.pending = append(s.pending, s.session.ApplyDelta(f.Content)...)
		case frames.KindDone:
			s.finish()
			return
		case frames.KindError:
			s.fail(&TransportError{Op: "frame", Err: f.Err})
			return
		case frames.KindInvalid:
			// Already counted and logged by the frame decoder.
		}
	}
}

func (s *Stream) finish() {
	s.pending = append(s.pending, s.session.Finish()...)
	s.done = true

	elapsed := time.Since(s.started)
	logging.Stream("session %s: complete in %v (%d lines, %d frames skipped)", s.session.ID(), elapsed, s.frames.Lines(), s.frames.Invalid())
	if res, ok := s.session.Result(); ok {
		logging.AuditWithSession(s.session.ID()).SessionEnd(res.Deltas, len(res.Files), len(res.Dropped), elapsed.Milliseconds())
	}
}

func (s *Stream) fail(err error) {
	s.pending = append(s.pending, s.session.Fail(err)...)
	s.done = true

	elapsed := time.Since(s.started)
	logging.StreamWarn("session %s: failed after %v: %v", s.session.ID(), elapsed, err)
	logging.AuditWithSession(s.session.ID()).SessionError(s.session.Deltas(), elapsed.Milliseconds(), err)
}
