package decoder

import (
	"errors"

	"codestream/internal/logging"
)

// Finish closes the session normally. It flushes anything withheld while the
// stream was live, freezes the session and returns the remaining events, the
// last being SessionFinished. Calling it on a finished session returns nil.
func (s *Session) Finish() []Event {
	if s.result != nil {
		return nil
	}
	events := s.refresh(true)
	res := s.freeze(StatusComplete, nil)
	logging.Stream("session %s finished: %d deltas, %d files, %d dropped", s.opts.id, res.Deltas, len(res.Files), len(res.Dropped))
	return append(events, sessionFinished(s.seq, res))
}

// Fail closes the session after an upstream failure. Files that completed
// before the failure stay in the result. The last event is SessionFailed.
func (s *Session) Fail(err error) []Event {
	if s.result != nil {
		return nil
	}
	if err == nil {
		err = &TransportError{Op: "read", Err: errors.New("stream ended without reason")}
	}
	events := s.refresh(true)
	res := s.freeze(StatusErrored, err)
	logging.StreamWarn("session %s failed after %d deltas: %v", s.opts.id, res.Deltas, err)
	return append(events, sessionFailed(s.seq, res))
}

// Result returns the frozen result once the session has finished or failed.
func (s *Session) Result() (SessionResult, bool) {
	if s.result == nil {
		return SessionResult{}, false
	}
	return *s.result, true
}

func (s *Session) freeze(status SessionStatus, err error) SessionResult {
	if s.status == StatusPending {
		logging.StreamDebug("session %s closed before any delta", s.opts.id)
	}
	s.begin()
	s.status = status

	res := SessionResult{
		Status:    status,
		Narrative: s.lastNarrative,
		Files:     []FileBlock{},
		Deltas:    s.seq,
		Err:       err,
	}
	if err != nil {
		res.Error = err.Error()
	}
	if s.service != nil {
		svc := *s.service
		res.Service = &svc
	}

	for _, p := range s.order {
		b := s.files[p]
		switch {
		case b.State == BlockComplete:
			res.Files = append(res.Files, *b)
		case s.opts.salvageDrafts:
			res.Files = append(res.Files, *b)
		default:
			res.Dropped = append(res.Dropped, p)
			logging.StreamDebug("session %s: dropping unfinished %s (%d bytes)", s.opts.id, p, len(b.Content))
			logging.AuditWithSession(s.opts.id).FileDropped(p, len(b.Content))
		}
	}

	s.result = &res
	return res
}

// Replay decodes a complete transcript in one delta and returns the result.
// Every derived field of a session can be reproduced this way.
func Replay(transcript string, opts ...Option) SessionResult {
	s := NewSession(opts...)
	s.ApplyDelta(transcript)
	s.Finish()
	res, _ := s.Result()
	return res
}
