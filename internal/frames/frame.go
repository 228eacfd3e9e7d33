package frames

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a decoded frame.
type Kind int

const (
	// KindDelta carries a text delta (possibly empty).
	KindDelta Kind = iota
	// KindDone is the end-of-stream sentinel.
	KindDone
	// KindError is an upstream error reported inside the stream.
	KindError
	// KindInvalid is a payload that did not parse; callers skip it.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrInvalidPayload is wrapped by the Err of every KindInvalid frame.
var ErrInvalidPayload = errors.New("invalid frame payload")

// Frame is one decoded `data:` payload.
type Frame struct {
	Kind    Kind
	Content string // text delta for KindDelta
	Raw     string // payload as received
	Err     error  // set for KindError and KindInvalid
}

// wirePayload accepts both the plain `{"content": "..."}` shape and the
// chat-completions chunk shape.
type wirePayload struct {
	Content *string `json:"content"`
	Choices []struct {
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

// ParsePayload decodes a single payload string (without the `data:` prefix).
func ParsePayload(payload string) Frame {
	var wire wirePayload
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return Frame{Kind: KindInvalid, Raw: payload, Err: fmt.Errorf("%w: %v", ErrInvalidPayload, err)}
	}

	if msg, ok := errorMessage(wire.Error); ok {
		return Frame{Kind: KindError, Raw: payload, Err: fmt.Errorf("upstream error: %s", msg)}
	}

	if wire.Content != nil {
		return Frame{Kind: KindDelta, Content: *wire.Content, Raw: payload}
	}

	var b strings.Builder
	for _, choice := range wire.Choices {
		if choice.Delta != nil {
			b.WriteString(choice.Delta.Content)
		}
	}
	return Frame{Kind: KindDelta, Content: b.String(), Raw: payload}
}

func errorMessage(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", false
		}
		return s, true
	}

	var obj struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		switch {
		case obj.Message != "":
			return obj.Message, true
		case obj.Type != "":
			return obj.Type, true
		}
	}
	return string(raw), true
}
