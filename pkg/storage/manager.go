package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tikresearch/pkg/tiktok"
)

// Sink accepts a sequence of typed records for persistence. Records
// handed to a sink are durable once Close returns; a failed collection
// keeps everything written so far.
type Sink interface {
	Write(record tiktok.Record) error
	Close() error
}

// Manager maps collection modes to output files under a base directory
type Manager struct {
	baseDir string
}

// NewManager creates a storage manager rooted at baseDir
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// Sink opens a sink for the given mode subdirectory, file name and
// format ("json" or "csv").
func (m *Manager) Sink(subdir, name, format string) (Sink, error) {
	dir := filepath.Join(m.baseDir, subdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, SanitizeName(name)+"."+format)
	switch format {
	case "json":
		return newJSONSink(path), nil
	case "csv":
		return newCSVSink(path)
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// SanitizeName makes a query input safe to use as a file name
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	if name == "" {
		name = "output"
	}
	return name
}

// jsonSink collects records and writes them as a pretty-printed JSON
// array on Close. The write is atomic: a temp file renamed into place.
type jsonSink struct {
	path    string
	records []tiktok.Record
}

func newJSONSink(path string) *jsonSink {
	return &jsonSink{path: path}
}

func (s *jsonSink) Write(record tiktok.Record) error {
	s.records = append(s.records, record)
	return nil
}

func (s *jsonSink) Close() error {
	if s.records == nil {
		s.records = []tiktok.Record{}
	}
	data, err := json.MarshalIndent(s.records, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize output: %w", err)
	}
	return nil
}

// Path returns the sink's output path
func (s *jsonSink) Path() string { return s.path }
