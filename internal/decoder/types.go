// Package decoder turns a model's streamed text into structured events.
//
// A Session owns one append-only transcript. Every delta is appended and the
// transcript is rescanned for the in-band marker grammar:
//
//	[SERVICE: Display Name|domain.example]
//	[FILE: path/to/file]...contents...[/FILE]
//
// Narrative text (everything before the first file marker), file creation,
// progressive file content and the service annotation are reported as Events.
// A Stream drives a Session from a ChunkSource and exposes the events as a
// pull-based sequence ending in SessionFinished or SessionFailed.
package decoder

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusStreaming SessionStatus = "streaming"
	StatusComplete  SessionStatus = "complete"
	StatusErrored   SessionStatus = "errored"
)

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == StatusComplete || s == StatusErrored
}

// BlockState is the lifecycle state of a FileBlock. It only moves forward.
type BlockState string

const (
	BlockPending   BlockState = "pending"
	BlockStreaming BlockState = "streaming"
	BlockComplete  BlockState = "complete"
)

func (b BlockState) rank() int {
	switch b {
	case BlockStreaming:
		return 1
	case BlockComplete:
		return 2
	default:
		return 0
	}
}

// FileBlock is one file revealed by the stream.
// FirstSeenAt and CompletedAt are delta sequence numbers (1-based).
type FileBlock struct {
	Path        string     `json:"path"`
	Content     string     `json:"content"`
	State       BlockState `json:"state"`
	FirstSeenAt int        `json:"first_seen_at"`
	CompletedAt int        `json:"completed_at,omitempty"`
}

// ServiceAnnotation is the single `[SERVICE: name|domain]` marker of a session.
type ServiceAnnotation struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// SessionResult is the frozen summary produced by the finalizer. Every field
// derives from the transcript alone, so equal transcripts give equal results.
type SessionResult struct {
	Status    SessionStatus      `json:"status"`
	Narrative string             `json:"narrative"`
	Files     []FileBlock        `json:"files"`
	Dropped   []string           `json:"dropped,omitempty"` // never-closed paths left out of Files
	Service   *ServiceAnnotation `json:"service,omitempty"`
	Deltas    int                `json:"deltas"`
	Error     string             `json:"error,omitempty"`

	Err error `json:"-"`
}

// File returns the result entry for path.
func (r SessionResult) File(path string) (FileBlock, bool) {
	for _, f := range r.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileBlock{}, false
}
