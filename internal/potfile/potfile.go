package potfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashdeck/hashdeck/pkg/debug"
	"github.com/hashdeck/hashdeck/pkg/fsutil"
)

// Shared is the process-wide append-only potfile. Every session's shadow
// potfile starts as a copy of it, and every newly discovered entry is
// propagated back through AppendLine. All mutation funnels through one
// mutex so concurrent sessions never interleave partial lines.
type Shared struct {
	mu   sync.Mutex
	path string
}

// NewShared opens the shared potfile, creating it when absent
func NewShared(path string) (*Shared, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open shared potfile: %w", err)
	}
	f.Close()

	return &Shared{path: path}, nil
}

// Path returns the potfile location
func (s *Shared) Path() string {
	return s.path
}

// AppendLine appends one complete line. The trailing newline is added here
// so a single write always carries an unbroken line.
func (s *Shared) AppendLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open shared potfile for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to append to shared potfile: %w", err)
	}
	return nil
}

// Snapshot returns every line currently in the potfile. Readers of a
// growing potfile only ever see whole lines: the read stops at the length
// observed when the call began.
func (s *Shared) Snapshot() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shared potfile: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// CopyTo writes the current potfile contents to dst, used to materialize a
// session's shadow potfile at start.
func (s *Shared) CopyTo(dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fsutil.CopyFile(s.path, dst)
}

// Count returns the number of entries in the potfile
func (s *Shared) Count() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fsutil.CountLinesInFile(s.path)
}

// Entry is one recovered credential pair from a potfile line
type Entry struct {
	Hash  string
	Plain string
	Raw   string
}

// Tracker watches one session's shadow potfile for growth. The shadow file
// begins as a full copy of the shared potfile, so only bytes beyond the
// starting length are candidates for propagation; entries that predate the
// session are never re-announced.
type Tracker struct {
	path   string
	offset int64
}

// NewTracker creates a tracker positioned at the shadow file's current
// length.
func NewTracker(path string) *Tracker {
	t := &Tracker{path: path}
	if fi, err := os.Stat(path); err == nil {
		t.offset = fi.Size()
	}
	return t
}

// Offset returns the last observed length
func (t *Tracker) Offset() int64 {
	return t.offset
}

// Reconcile reads any bytes appended since the last call and parses them
// into entries. Potfile lines split on the LAST colon: plaintexts may
// themselves contain colons. Lines without a separator are skipped, but
// the offset still advances past them so a parse anomaly can never cause
// reprocessing. The offset only advances past the final newline, so a
// torn line being written mid-poll is picked up whole on a later call.
func (t *Tracker) Reconcile() ([]Entry, error) {
	fi, err := os.Stat(t.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat shadow potfile: %w", err)
	}

	size := fi.Size()
	if size < t.offset {
		// Truncated out from under us; start over from the new length
		debug.Warning("Shadow potfile %s shrank from %d to %d bytes", t.path, t.offset, size)
		t.offset = size
		return nil, nil
	}
	if size == t.offset {
		return nil, nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shadow potfile: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek shadow potfile: %w", err)
	}

	grown := make([]byte, size-t.offset)
	n, err := io.ReadFull(f, grown)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read shadow potfile growth: %w", err)
	}
	grown = grown[:n]

	last := bytes.LastIndexByte(grown, '\n')
	if last < 0 {
		// No complete line yet
		return nil, nil
	}
	t.offset += int64(last + 1)

	var entries []Entry
	for _, raw := range strings.Split(string(grown[:last]), "\n") {
		raw = strings.TrimRight(raw, "\r")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		sep := strings.LastIndex(raw, ":")
		if sep < 0 {
			debug.Warning("Skipping potfile line without separator: %q", raw)
			continue
		}
		entries = append(entries, Entry{
			Hash:  raw[:sep],
			Plain: raw[sep+1:],
			Raw:   raw,
		})
	}
	return entries, nil
}
