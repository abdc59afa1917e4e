package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink persists sealed entries. Write must be atomic per entry: a reader of
// the sink never observes a partial record.
type Sink interface {
	Write(Entry) error
	Close() error
}

// NopSink drops every entry.
type NopSink struct{}

func (NopSink) Write(Entry) error { return nil }
func (NopSink) Close() error      { return nil }

// FileSink appends JSON Lines to a file, rotating it through
// <base>.1 … <base>.N when it exceeds maxSize. A single mutex serializes
// writes and rotation; each entry is one write plus one flush.
type FileSink struct {
	mu         sync.Mutex
	path       string
	f          *os.File
	w          *bufio.Writer
	size       int64
	maxSize    int64
	maxBackups int
}

// NewFileSink opens (or creates) the log file for appending.
func NewFileSink(path string, maxSize int64, maxBackups int) (*FileSink, error) {
	if maxSize <= 0 {
		maxSize = 50 * 1024 * 1024
	}
	if maxBackups <= 0 {
		maxBackups = 5
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	s := &FileSink{path: path, maxSize: maxSize, maxBackups: maxBackups}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	s.f = f
	s.w = bufio.NewWriter(f)
	s.size = info.Size()
	return nil
}

// Write serializes the entry and appends it as one line.
func (s *FileSink) Write(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size+int64(len(line)) > s.maxSize {
		if err := s.rotate(); err != nil {
			return err
		}
	}
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	s.size += int64(len(line))
	return nil
}

// rotate shifts <path>.N-1 → <path>.N for descending N, then <path> →
// <path>.1, and reopens a fresh file. Caller holds the mutex.
func (s *FileSink) rotate() error {
	s.w.Flush()
	s.f.Close()

	for i := s.maxBackups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", s.path, i)
		to := fmt.Sprintf("%s.%d", s.path, i+1)
		if _, err := os.Stat(from); err == nil {
			os.Rename(from, to)
		}
	}
	if err := os.Rename(s.path, s.path+".1"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	return s.open()
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w != nil {
		s.w.Flush()
	}
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}
