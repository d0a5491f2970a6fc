// Package audit records who did what through the gateway.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
	"switchd/internal/infra/tracer"
)

// RetentionPolicy controls how long audit entries are kept.
type RetentionPolicy struct {
	MaxAge  time.Duration // 0 = no limit
	MaxSize int64         // bytes; 0 = no limit
}

// FileLogger implements domain.AuditLogger by appending JSON lines to a file.
type FileLogger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	retention RetentionPolicy
}

// NewFileLogger opens path for appending, creating it and its directory
// with owner-only permissions.
func NewFileLogger(path string, retention RetentionPolicy) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileLogger{file: f, path: path, retention: retention}, nil
}

// Open builds a FileLogger from the gateway audit config.
func Open(cfg config.AuditConfig) (*FileLogger, error) {
	maxSize, err := config.ParseSize(cfg.MaxSize)
	if err != nil {
		return nil, err
	}
	return NewFileLogger(cfg.Path, RetentionPolicy{MaxAge: cfg.MaxAge, MaxSize: maxSize})
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}

// Log writes event as one JSON line and mirrors it onto the active span.
func (a *FileLogger) Log(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return domain.NewDomainError("audit.FileLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	a.mu.Lock()
	_, err = a.file.Write(append(data, '\n'))
	a.mu.Unlock()
	if err != nil {
		return domain.NewDomainError("audit.FileLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("audit."+string(event.Type), trace.WithAttributes(
			tracer.StringAttr("audit.actor", event.Actor),
			tracer.StringAttr("audit.action", event.Action),
			tracer.StringAttr("audit.outcome", event.Outcome),
		))
	}
	return nil
}

// Close closes the log file.
func (a *FileLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// EnforceRetention rewrites the log keeping only entries the policy allows:
// entries older than MaxAge go first, then the oldest until under MaxSize.
// It returns the number of entries removed.
func (a *FileLogger) EnforceRetention(_ context.Context) (int, error) {
	policy := a.retention
	if policy.MaxAge <= 0 && policy.MaxSize <= 0 {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if policy.MaxAge <= 0 {
		info, err := os.Stat(a.path)
		if err != nil {
			return 0, fmt.Errorf("stat audit log: %w", err)
		}
		if info.Size() <= policy.MaxSize {
			return 0, nil
		}
	}

	var cutoff time.Time
	if policy.MaxAge > 0 {
		cutoff = time.Now().Add(-policy.MaxAge)
	}

	kept, removed, err := readKept(a.path, cutoff)
	if err != nil {
		return 0, err
	}

	if policy.MaxSize > 0 {
		var size int64
		for _, line := range kept {
			size += int64(len(line)) + 1
		}
		for len(kept) > 0 && size > policy.MaxSize {
			size -= int64(len(kept[0])) + 1
			kept = kept[1:]
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	tmpPath := a.path + ".tmp"
	if err := writeLines(tmpPath, kept); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}

	// Swap files under the lock; Log appends to the reopened handle.
	if err := a.file.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close for retention: %w", err)
	}
	if err := os.Rename(tmpPath, a.path); err != nil {
		os.Remove(tmpPath)
		a.file, _ = openAppend(a.path)
		return 0, fmt.Errorf("replace audit log: %w", err)
	}
	a.file, err = openAppend(a.path)
	if err != nil {
		return removed, fmt.Errorf("reopen audit log: %w", err)
	}
	return removed, nil
}

func readKept(path string, cutoff time.Time) ([][]byte, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var (
		kept    [][]byte
		removed int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !cutoff.IsZero() {
			var entry struct {
				Timestamp time.Time `json:"timestamp"`
			}
			if json.Unmarshal(line, &entry) == nil && entry.Timestamp.Before(cutoff) {
				removed++
				continue
			}
		}
		kept = append(kept, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan audit log: %w", err)
	}
	return kept, removed, nil
}

func writeLines(path string, lines [][]byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temp audit log: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write temp audit log: %w", err)
	}
	return f.Close()
}
