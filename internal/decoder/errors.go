package decoder

import (
	"errors"
	"fmt"
)

// ErrTransport matches every TransportError via errors.Is.
var ErrTransport = errors.New("transport failure")

// TransportError reports that the upstream chunk source failed or was cut off.
// It is the only error surfaced to callers; frame and protocol problems are
// absorbed by the decoder.
type TransportError struct {
	Op  string // read, frame, cancel
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
