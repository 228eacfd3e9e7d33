package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"codestream/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// TailStats counts what a TailSource has seen.
type TailStats struct {
	Reads      int
	Bytes      int
	Writes     int // write events for the followed file
	Errors     int
	LastRead   time.Time
	IdleExpiry bool // the source ended because nothing was written in time
}

// TailSource follows a growing capture file, like `tail -f`. It returns
// io.EOF when the file is removed or renamed, or when nothing has been
// written for the idle timeout.
type TailSource struct {
	path    string
	file    *os.File
	watcher *fsnotify.Watcher
	buf     []byte
	idle    time.Duration

	stats TailStats
}

// NewTailSource opens path and starts watching its directory.
func NewTailSource(path string, readSize int, idle time.Duration) (*TailSource, error) {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	if idle <= 0 {
		idle = 30 * time.Second
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory; editors and writers that replace the file keep it observable.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		file.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	logging.Transport("tail: following %s (idle timeout %v)", abs, idle)
	return &TailSource{
		path:    abs,
		file:    file,
		watcher: watcher,
		buf:     make([]byte, readSize),
		idle:    idle,
	}, nil
}

// Next returns the next chunk appended to the file, waiting for writes.
func (s *TailSource) Next(ctx context.Context) ([]byte, error) {
	idleTimer := time.NewTimer(s.idle)
	defer idleTimer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := s.file.Read(s.buf)
		if n > 0 {
			s.stats.Reads++
			s.stats.Bytes += n
			s.stats.LastRead = time.Now()
			return append([]byte(nil), s.buf[:n]...), nil
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read capture file: %w", err)
		}

		// At the current end of file: wait for the writer.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil, io.EOF
			}
			if event.Name != s.path {
				continue
			}
			switch {
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				logging.Transport("tail: %s removed; ending stream", s.path)
				return nil, io.EOF
			case event.Op&fsnotify.Write != 0:
				s.stats.Writes++
				idleTimer.Reset(s.idle)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil, io.EOF
			}
			s.stats.Errors++
			logging.TransportWarn("tail: watcher error: %v", err)

		case <-idleTimer.C:
			s.stats.IdleExpiry = true
			logging.Transport("tail: no writes to %s for %v; ending stream", s.path, s.idle)
			return nil, io.EOF
		}
	}
}

// Stats returns a snapshot of the source counters.
func (s *TailSource) Stats() TailStats {
	return s.stats
}

// Close stops watching and closes the file.
func (s *TailSource) Close() error {
	werr := s.watcher.Close()
	ferr := s.file.Close()
	if werr != nil {
		return werr
	}
	return ferr
}
