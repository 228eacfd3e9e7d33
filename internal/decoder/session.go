package decoder

import (
	"strings"

	"codestream/internal/logging"
)

// Session is the state of one in-flight model response.
//
// All mutation happens through ApplyDelta, Finish and Fail, from a single
// goroutine. Separate sessions share nothing and may run concurrently.
type Session struct {
	opts   options
	status SessionStatus

	transcript strings.Builder
	seq        int

	files    map[string]*FileBlock
	order    []string
	openedAt map[string]int // offset of the open marker that first named each path

	service     *ServiceAnnotation
	serviceFrom int // annotation search resumes here

	cut      int // first file-open token, -1 until seen
	searched int // transcript length already searched for cut

	committed int // file scan resumes here; earlier captures are settled

	lastNarrative string
	reported      map[int]bool // anomalous open markers already logged, by offset

	result *SessionResult
}

// NewSession creates an empty Pending session.
func NewSession(opts ...Option) *Session {
	o := buildOptions(opts)
	logging.StreamDebug("session %s created (stop_at_fence=%v salvage_drafts=%v)", o.id, o.stopAtFence, o.salvageDrafts)
	return &Session{
		opts:     o,
		status:   StatusPending,
		files:    make(map[string]*FileBlock),
		openedAt: make(map[string]int),
		cut:      -1,
		reported: make(map[int]bool),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.opts.id }

// Status returns the lifecycle state.
func (s *Session) Status() SessionStatus { return s.status }

// Transcript returns everything received so far.
func (s *Session) Transcript() string { return s.transcript.String() }

// Deltas returns how many non-empty deltas were applied.
func (s *Session) Deltas() int { return s.seq }

// Narrative returns the current narrative text.
func (s *Session) Narrative() string { return s.lastNarrative }

// Service returns the annotation, if one has been seen.
func (s *Session) Service() (ServiceAnnotation, bool) {
	if s.service == nil {
		return ServiceAnnotation{}, false
	}
	return *s.service, true
}

// Files returns a copy of every block in first-seen order, drafts included.
func (s *Session) Files() []FileBlock {
	out := make([]FileBlock, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, *s.files[p])
	}
	return out
}

// File returns a copy of the block for path.
func (s *Session) File(path string) (FileBlock, bool) {
	b, ok := s.files[path]
	if !ok {
		return FileBlock{}, false
	}
	return *b, true
}

// ApplyDelta appends one text delta and returns the events it caused, in order:
// narrative, then per file creation and content, then the annotation.
// Deltas applied after the session finished are ignored.
func (s *Session) ApplyDelta(delta string) []Event {
	if s.status.Terminal() {
		logging.StreamWarn("session %s: delta of %d bytes after %s ignored", s.opts.id, len(delta), s.status)
		return nil
	}
	if delta == "" {
		return nil
	}
	s.begin()

	s.seq++
	s.transcript.WriteString(delta)
	return s.refresh(false)
}

// begin moves a Pending session to Streaming. Every session passes through
// Streaming, including one that is closed before its first delta.
func (s *Session) begin() {
	if s.status == StatusPending {
		s.status = StatusStreaming
	}
}

// refresh recomputes every derived field from the transcript.
func (s *Session) refresh(final bool) []Event {
	text := s.transcript.String()
	var events []Event

	s.locateCut(text)
	if n := narrativeOf(text, s.cut, final, s.opts.stopAtFence); n != s.lastNarrative {
		s.lastNarrative = n
		events = append(events, narrativeUpdated(s.seq, n))
	}

	for _, c := range scanBlocks(text, s.committed) {
		if c.settled() {
			s.committed = c.next
		}
		events = s.applyCapture(text, c, final, events)
	}

	if s.service == nil {
		svc, next, ok := findService(text, s.serviceFrom)
		s.serviceFrom = next
		if ok {
			s.service = &svc
			logging.StreamDebug("session %s: service %s|%s", s.opts.id, svc.Name, svc.Domain)
			events = append(events, serviceAnnotated(s.seq, svc))
		}
	}

	return events
}

func (s *Session) locateCut(text string) {
	if s.cut >= 0 {
		return
	}
	start := s.searched - len(openToken) + 1
	if start < 0 {
		start = 0
	}
	if i := strings.Index(text[start:], openToken); i >= 0 {
		s.cut = start + i
		return
	}
	s.searched = len(text)
}

// applyCapture folds one scanned capture into the file map. The map is the
// dedup registry: a path is announced once and completed once.
func (s *Session) applyCapture(text string, c capture, final bool, events []Event) []Event {
	b, known := s.files[c.path]
	if known && s.openedAt[c.path] != c.start {
		// A path keeps the first block that named it, draft or not.
		if !s.reported[c.start] {
			s.reported[c.start] = true
			logging.ScannerWarn("session %s: %q reopened at offset %d while %s; ignored", s.opts.id, c.path, c.start, b.State)
		}
		return events
	}
	if known && b.State == BlockComplete {
		return events
	}

	if !known {
		b = &FileBlock{Path: c.path, State: BlockPending, FirstSeenAt: s.seq}
		s.files[c.path] = b
		s.order = append(s.order, c.path)
		s.openedAt[c.path] = c.start
		b.advance(BlockStreaming)
		logging.ScannerDebug("session %s: %q opened at offset %d", s.opts.id, c.path, c.start)
		events = append(events, fileCreated(s.seq, c.path))
	}

	content := c.content(text, final)
	changed := content != b.Content
	b.Content = content

	completed := c.closed && b.advance(BlockComplete)
	if completed {
		b.CompletedAt = s.seq
		logging.StreamDebug("session %s: %s complete (%d bytes)", s.opts.id, b.Path, len(content))
		logging.AuditWithSession(s.opts.id).FileComplete(b.Path, len(content), s.seq)
	}

	if changed || completed {
		events = append(events, fileContentUpdated(s.seq, b.Path, content, completed))
	}
	return events
}

// advance moves the block forward; it refuses to go backwards or stay put.
func (b *FileBlock) advance(to BlockState) bool {
	if to.rank() <= b.State.rank() {
		return false
	}
	b.State = to
	return true
}
