package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"codestream/internal/decoder"
)

const (
	formatJSONL  = "jsonl"
	formatText   = "text"
	formatResult = "result"
)

// eventRecord is one JSONL output line.
type eventRecord struct {
	Source string `json:"source,omitempty"`
	decoder.Event
}

// eventWriter renders a session's events in the selected format.
type eventWriter struct {
	w      io.Writer
	format string
	source string
	enc    *json.Encoder
}

func newEventWriter(w io.Writer, format, source string) (*eventWriter, error) {
	switch format {
	case formatJSONL, formatText, formatResult:
	default:
		return nil, fmt.Errorf("unknown output format %q (valid: %s, %s, %s)", format, formatJSONL, formatText, formatResult)
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if format == formatResult {
		enc.SetIndent("", "  ")
	}
	return &eventWriter{w: w, format: format, source: source, enc: enc}, nil
}

// write renders one event. In result format only the terminal event prints.
func (ew *eventWriter) write(ev decoder.Event) error {
	switch ew.format {
	case formatText:
		if ew.source != "" {
			_, err := fmt.Fprintf(ew.w, "%s: %s\n", ew.source, ev)
			return err
		}
		_, err := fmt.Fprintln(ew.w, ev)
		return err
	case formatResult:
		if !ev.Terminal() || ev.Result == nil {
			return nil
		}
		return ew.writeResult(*ev.Result)
	default:
		return ew.enc.Encode(eventRecord{Source: ew.source, Event: ev})
	}
}

func (ew *eventWriter) writeResult(res decoder.SessionResult) error {
	return ew.enc.Encode(struct {
		Source string `json:"source,omitempty"`
		decoder.SessionResult
	}{ew.source, res})
}

// pump drains a stream into the writer and returns its result.
func pump(ctx context.Context, stream *decoder.Stream, ew *eventWriter) (decoder.SessionResult, error) {
	for ev := range stream.Events(ctx) {
		if err := ew.write(ev); err != nil {
			return decoder.SessionResult{}, fmt.Errorf("write output: %w", err)
		}
	}
	res, _ := stream.Result()
	return res, nil
}
