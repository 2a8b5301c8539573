package verdict

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/bytedance/sonic"
)

// maxLineBytes bounds a single JSON line when reading the log back.
const maxLineBytes = 1 << 20

// FileStore appends records as JSON lines to a file.
type FileStore struct {
	path string

	mu sync.Mutex
	f  *os.File
}

var _ Store = (*FileStore)(nil)

// OpenFile opens (creating if needed) the log at path for appending.
func OpenFile(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("verdict: open %q: %w", path, err)
	}
	return &FileStore{path: path, f: f}, nil
}

// Record implements [Store]. Each record is written with a single Write call.
func (s *FileStore) Record(_ context.Context, r Record) error {
	line, err := sonic.Marshal(r)
	if err != nil {
		return fmt.Errorf("verdict: marshal: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("verdict: write %q: %w", s.path, os.ErrClosed)
	}
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("verdict: write %q: %w", s.path, err)
	}
	return nil
}

// Recent implements [Store] by scanning the whole file. Lines that do not
// decode are skipped.
func (s *FileStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("verdict: open %q: %w", s.path, err)
	}
	defer f.Close()

	// ring keeps the last limit records; n counts every record seen, so the
	// oldest kept one sits at n%limit once the ring has wrapped.
	ring := make([]Record, limit)
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r Record
		if err := sonic.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		ring[n%limit] = r
		n++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("verdict: read %q: %w", s.path, err)
	}
	if n < limit {
		ring = ring[:n]
	} else {
		ring = append(ring[n%limit:], ring[:n%limit]...)
	}
	slices.Reverse(ring)
	return ring, nil
}

// Close implements [Store].
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
