// Package sink writes built records to their output destination.
package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/record"
)

// FileSink appends records to a file as JSON lines.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	logger *zap.Logger
}

// NewFileSink opens (or creates) the output file at path for appending.
func NewFileSink(path string, logger *zap.Logger) (*FileSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &FileSink{
		file:   file,
		writer: bufio.NewWriter(file),
		logger: logger,
	}, nil
}

// Write appends one record as a JSON line.
func (s *FileSink) Write(_ context.Context, rec *record.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush output file: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}

// MemorySink collects records in memory for tests.
type MemorySink struct {
	mu      sync.Mutex
	records []*record.Record
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write stores the record.
func (s *MemorySink) Write(_ context.Context, rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a snapshot of everything written so far.
func (s *MemorySink) Records() []*record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*record.Record(nil), s.records...)
}
