// Package transport provides chunk sources for the stream decoder.
//
// Every source implements Next(ctx) ([]byte, error) and returns io.EOF once
// the upstream has nothing more to send. Chunks carry raw event-stream bytes;
// splitting them into frames is the decoder's job.
package transport

import (
	"context"
	"errors"
	"io"
	"sync"
)

// DefaultReadSize is used when a non-positive read size is configured.
const DefaultReadSize = 4096

// ReaderSource reads fixed-size chunks from an io.Reader.
type ReaderSource struct {
	r      io.Reader
	buf    []byte
	closer io.Closer

	closeOnce sync.Once
	closeErr  error
	reads     int
	total     int
}

// NewReaderSource wraps r. If r is also an io.Closer, Close closes it.
func NewReaderSource(r io.Reader, readSize int) *ReaderSource {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	s := &ReaderSource{r: r, buf: make([]byte, readSize)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Next returns the next chunk. The returned slice is owned by the caller.
//
// A blocked Read is not interrupted by ctx; readers whose lifetime is bound
// to a context (HTTP response bodies) unblock on their own.
func (s *ReaderSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := s.r.Read(s.buf)
	s.reads++
	s.total += n

	var chunk []byte
	if n > 0 {
		chunk = append([]byte(nil), s.buf[:n]...)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return chunk, err
	}
	if err != nil {
		return chunk, io.EOF
	}
	return chunk, nil
}

// Stats returns how many reads were made and how many bytes they returned.
func (s *ReaderSource) Stats() (reads, bytes int) {
	return s.reads, s.total
}

// Close closes the underlying reader when it is closable. It is safe to call
// more than once.
func (s *ReaderSource) Close() error {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}
