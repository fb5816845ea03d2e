package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ppiankov/tributeguard/internal/analyzer"
)

// GenesisHash is the prev_hash of the first verdict in a log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// TimestampFormat is the layout of Entry.Timestamp (UTC, milliseconds).
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Log appends one Entry per analyzed tribute. Each entry's prev_hash is
// HashLine of the line before it, so an edited or removed verdict breaks
// the chain that Verify walks.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	tail string
}

// Open opens the verdict log at path for appending, creating it and its
// directory when missing. Appends continue the chain of an existing log.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit log %s: %w", path, err)
	}
	tail, err := chainTail(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit log %s: %w", path, err)
	}
	return &Log{f: f, tail: tail}, nil
}

// chainTail hashes the last line of the log at path, or returns
// GenesisHash for a missing or empty log.
func chainTail(path string) (string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("audit log %s: %w", path, err)
	}
	defer f.Close()

	tail := GenesisHash
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Bytes(); len(line) > 0 {
			tail = HashLine(line)
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("audit log %s: %w", path, err)
	}
	return tail, nil
}

// Record links e to the chain, appends it and fsyncs. An empty Timestamp
// is set to now.
func (l *Log) Record(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	e.PrevHash = l.tail

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode verdict: %w", err)
	}
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: append verdict: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	l.tail = HashLine(line)
	return nil
}

// Observe implements analyzer.Observer. Only hashes and counts of the
// tribute reach the log.
func (l *Log) Observe(_ context.Context, o analyzer.Outcome) error {
	return l.Record(Entry{
		RequestID:    o.RequestID,
		Source:       o.Source,
		Verdict:      o.Result.Verdict(),
		FlaggedCount: len(o.Result.FlaggedContent),
		TextHash:     HashText(o.Text),
		PolicyHash:   o.PolicyHash,
		Model:        o.Model,
		DurationMS:   o.Duration.Milliseconds(),
	})
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// HashLine returns "sha256:<hex>" of one encoded entry, without its newline.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
