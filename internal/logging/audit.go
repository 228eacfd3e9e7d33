package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names one kind of audit record.
type AuditEventType string

const (
	// Session lifecycle
	AuditSessionStart AuditEventType = "session_start"
	AuditSessionEnd   AuditEventType = "session_end"
	AuditSessionError AuditEventType = "session_error"

	// File blocks
	AuditFileComplete AuditEventType = "file_complete"
	AuditFileDropped  AuditEventType = "file_dropped"

	// Upstream model calls
	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"
)

// AuditEvent is one JSON line of the audit log.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	Category   string                 `json:"cat,omitempty"`
	SessionID  string                 `json:"session,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// AuditLogger writes audit events, optionally scoped to a session.
type AuditLogger struct {
	sessionID string
	category  Category
}

// InitAudit opens the audit log next to the category logs. It is a no-op
// unless debug mode is on.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	configMu.RLock()
	dir := logsDir
	configMu.RUnlock()
	if dir == "" {
		return fmt.Errorf("audit log: logging not initialized")
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(dir, fmt.Sprintf("%s_audit.jsonl", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns an unscoped audit logger.
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithSession creates an audit logger scoped to a session.
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID, category: CategoryStream}
}

// AuditWithContext creates a logger scoped to a session and category.
func AuditWithContext(sessionID string, category Category) *AuditLogger {
	return &AuditLogger{sessionID: sessionID, category: category}
}

// Log writes an audit event. Nothing is written unless InitAudit succeeded.
func (a *AuditLogger) Log(event AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.Write(append(data, '\n'))
	}
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// SessionStart records that a session began consuming input.
func (a *AuditLogger) SessionStart(source string) {
	a.Log(AuditEvent{
		EventType: AuditSessionStart,
		Target:    source,
		Success:   true,
		Message:   fmt.Sprintf("Session started from %s", source),
	})
}

// SessionEnd records a finished session.
func (a *AuditLogger) SessionEnd(deltas, files, dropped int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditSessionEnd,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"deltas": deltas, "files": files, "dropped": dropped},
		Message:    fmt.Sprintf("Session ended: %d deltas, %d files, %d dropped (%dms)", deltas, files, dropped, durationMs),
	})
}

// SessionError records a session that ended in failure.
func (a *AuditLogger) SessionError(deltas int, durationMs int64, err error) {
	a.Log(AuditEvent{
		EventType:  AuditSessionError,
		Success:    false,
		DurationMs: durationMs,
		Error:      err.Error(),
		Fields:     map[string]interface{}{"deltas": deltas},
		Message:    fmt.Sprintf("Session failed after %d deltas: %v", deltas, err),
	})
}

// FileComplete records a file block that closed.
func (a *AuditLogger) FileComplete(path string, size int, seq int) {
	a.Log(AuditEvent{
		EventType: AuditFileComplete,
		Target:    path,
		Success:   true,
		Fields:    map[string]interface{}{"bytes": size, "seq": seq},
		Message:   fmt.Sprintf("File %s complete (%d bytes at delta %d)", path, size, seq),
	})
}

// FileDropped records a never-closed file left out of the result.
func (a *AuditLogger) FileDropped(path string, size int) {
	a.Log(AuditEvent{
		EventType: AuditFileDropped,
		Target:    path,
		Success:   false,
		Fields:    map[string]interface{}{"bytes": size},
		Message:   fmt.Sprintf("File %s dropped unfinished (%d bytes)", path, size),
	})
}

// LLMCall records one upstream request, successful or not.
func (a *AuditLogger) LLMCall(provider, model string, attempt int, durationMs int64, err error) {
	event := AuditEvent{
		EventType:  AuditLLMResponse,
		Category:   string(CategoryTransport),
		Target:     model,
		Success:    err == nil,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"provider": provider, "attempt": attempt},
		Message:    fmt.Sprintf("%s %s attempt %d (%dms)", provider, model, attempt, durationMs),
	}
	if err != nil {
		event.EventType = AuditLLMError
		event.Error = err.Error()
	}
	a.Log(event)
}
