// Package writelog is a per-line audit log for attribute writes issued by
// the Translation Listener, adapted from the bridge's connection audit
// logger: one append-only file, one fixed-width timestamped line per
// write, success or failure.
package writelog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Logger is a single audit-log file shared by every dispatched write.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	writeSeq uint64
}

// Open creates (or truncates) the audit log at path. An empty path
// disables logging: Open returns a nil *Logger, and every method on a nil
// *Logger is a no-op.
func Open(path string) (*Logger, error) {
	if path == "" {
		return nil, nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{file: f}, nil
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}

// WriteOK records a successful attribute write.
func (l *Logger) WriteOK(streamID uint32, cif0Bit uint8, device, channel, attr string, value float64) {
	l.record(streamID, cif0Bit, device, channel, attr, fmt.Sprintf("%g", value), "OK")
}

// WriteFail records a write that the host library rejected or a mapping
// that could not be resolved.
func (l *Logger) WriteFail(streamID uint32, cif0Bit uint8, device, channel, attr string, reason error) {
	l.record(streamID, cif0Bit, device, channel, attr, reason.Error(), "FAIL")
}

func (l *Logger) record(streamID uint32, cif0Bit uint8, device, channel, attr, detail, status string) {
	if l == nil || l.file == nil {
		return
	}
	seq := atomic.AddUint64(&l.writeSeq, 1)
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	target := channel
	if target == "" {
		target = "-"
	}
	label := fmt.Sprintf("#%06d stream=0x%08x bit=%d %s/%s/%s", seq, streamID, cif0Bit, device, target, attr)
	line := fmt.Sprintf("%s %s %s %s\n", ts, fixedWidth(status, 4), fixedWidth(label, 64), sanitize(detail))

	l.mu.Lock()
	_, _ = l.file.WriteString(line)
	l.mu.Unlock()
}

func fixedWidth(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return fmt.Sprintf("%-*s", width, s)
}

func sanitize(msg string) string {
	msg = strings.TrimRight(msg, "\r\n")
	if msg == "" {
		return "<empty>"
	}
	return msg
}
