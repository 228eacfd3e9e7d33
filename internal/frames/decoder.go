// Package frames splits raw event-stream bytes into delta payloads.
//
// A transport delivers bytes in arbitrary chunks. Decoder carries an incomplete
// trailing line over to the next Feed, keeps only `data:` lines, and stops at the
// `[DONE]` sentinel. Payloads that do not parse are reported as KindInvalid and
// are meant to be skipped by the caller.
package frames

import (
	"bytes"
	"strings"

	"codestream/internal/logging"
)

const (
	// DataPrefix marks a line carrying a payload.
	DataPrefix = "data:"
	// DoneSentinel is the payload that ends the stream.
	DoneSentinel = "[DONE]"
)

// Decoder turns raw chunks into frames. It is not safe for concurrent use;
// one Decoder belongs to one stream session.
type Decoder struct {
	carry   []byte
	done    bool
	lines   int
	invalid int
}

// NewDecoder creates a Decoder with an empty carry buffer.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes one transport chunk and returns the complete frames it finished.
// After the sentinel has been seen Feed returns nil.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if d.done || len(chunk) == 0 {
		return nil
	}

	d.carry = append(d.carry, chunk...)

	var out []Frame
	for {
		i := bytes.IndexByte(d.carry, '\n')
		if i < 0 {
			break
		}
		line := string(d.carry[:i])
		d.carry = d.carry[i+1:]

		frame, ok := d.decodeLine(line)
		if !ok {
			continue
		}
		out = append(out, frame)
		if frame.Kind == KindDone {
			d.done = true
			d.carry = nil
			return out
		}
	}

	// Keep the partial line in a fresh slice so the chunk backing array can be released.
	if len(d.carry) > 0 {
		d.carry = append([]byte(nil), d.carry...)
	} else {
		d.carry = nil
	}
	return out
}

// Flush decodes whatever is left in the carry buffer as a final line.
// Call it once the upstream source reports it has no more chunks.
func (d *Decoder) Flush() []Frame {
	if d.done || len(d.carry) == 0 {
		d.carry = nil
		return nil
	}
	line := string(d.carry)
	d.carry = nil

	frame, ok := d.decodeLine(line)
	if !ok {
		return nil
	}
	if frame.Kind == KindDone {
		d.done = true
	}
	return []Frame{frame}
}

// Done reports whether the end-of-stream sentinel has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Pending reports how many bytes of an unfinished line are buffered.
func (d *Decoder) Pending() int {
	return len(d.carry)
}

// Invalid returns how many payloads failed to parse.
func (d *Decoder) Invalid() int {
	return d.invalid
}

// Lines returns how many physical lines have been examined.
func (d *Decoder) Lines() int {
	return d.lines
}

func (d *Decoder) decodeLine(line string) (Frame, bool) {
	d.lines++
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, DataPrefix) {
		// event:, id:, retry:, comments and blank separators carry nothing for us.
		return Frame{}, false
	}

	payload := strings.TrimSpace(line[len(DataPrefix):])
	if payload == "" {
		return Frame{}, false
	}
	if payload == DoneSentinel {
		logging.FramesDebug("sentinel after %d lines", d.lines)
		return Frame{Kind: KindDone, Raw: payload}, true
	}

	frame := ParsePayload(payload)
	if frame.Kind == KindInvalid {
		d.invalid++
		logging.FramesDebug("discarding unparsable payload (%d bytes): %v", len(payload), frame.Err)
	}
	return frame, true
}
