package decoder

import "fmt"

// EventKind tags an Event variant.
type EventKind string

const (
	EventNarrativeUpdated   EventKind = "narrative_updated"
	EventFileCreated        EventKind = "file_created"
	EventFileContentUpdated EventKind = "file_content_updated"
	EventServiceAnnotated   EventKind = "service_annotated"
	EventSessionFinished    EventKind = "session_finished"
	EventSessionFailed      EventKind = "session_failed"
)

// Event is one entry of a session's ordered event sequence.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind `json:"kind"`
	Seq  int       `json:"seq"` // delta that produced the event

	Text     string             `json:"text,omitempty"`     // NarrativeUpdated
	Path     string             `json:"path,omitempty"`     // FileCreated, FileContentUpdated
	Content  string             `json:"content,omitempty"`  // FileContentUpdated
	Complete bool               `json:"complete,omitempty"` // FileContentUpdated
	Service  *ServiceAnnotation `json:"service,omitempty"`  // ServiceAnnotated
	Result   *SessionResult     `json:"result,omitempty"`   // SessionFinished, SessionFailed
	Error    string             `json:"error,omitempty"`    // SessionFailed

	Err error `json:"-"`
}

// Terminal reports whether the event ends the sequence.
func (e Event) Terminal() bool {
	return e.Kind == EventSessionFinished || e.Kind == EventSessionFailed
}

func (e Event) String() string {
	switch e.Kind {
	case EventNarrativeUpdated:
		return fmt.Sprintf("#%d narrative(%q)", e.Seq, e.Text)
	case EventFileCreated:
		return fmt.Sprintf("#%d created(%s)", e.Seq, e.Path)
	case EventFileContentUpdated:
		return fmt.Sprintf("#%d content(%s, %d bytes, complete=%v)", e.Seq, e.Path, len(e.Content), e.Complete)
	case EventServiceAnnotated:
		return fmt.Sprintf("#%d service(%s|%s)", e.Seq, e.Service.Name, e.Service.Domain)
	case EventSessionFinished:
		return fmt.Sprintf("#%d finished(%d files)", e.Seq, len(e.Result.Files))
	case EventSessionFailed:
		return fmt.Sprintf("#%d failed(%s)", e.Seq, e.Error)
	default:
		return fmt.Sprintf("#%d %s", e.Seq, e.Kind)
	}
}

func narrativeUpdated(seq int, text string) Event {
	return Event{Kind: EventNarrativeUpdated, Seq: seq, Text: text}
}

func fileCreated(seq int, path string) Event {
	return Event{Kind: EventFileCreated, Seq: seq, Path: path}
}

func fileContentUpdated(seq int, path, content string, complete bool) Event {
	return Event{Kind: EventFileContentUpdated, Seq: seq, Path: path, Content: content, Complete: complete}
}

func serviceAnnotated(seq int, svc ServiceAnnotation) Event {
	return Event{Kind: EventServiceAnnotated, Seq: seq, Service: &svc}
}

func sessionFinished(seq int, result SessionResult) Event {
	return Event{Kind: EventSessionFinished, Seq: seq, Result: &result}
}

func sessionFailed(seq int, result SessionResult) Event {
	return Event{Kind: EventSessionFailed, Seq: seq, Result: &result, Error: result.Error, Err: result.Err}
}
