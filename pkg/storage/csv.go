package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"tikresearch/pkg/tiktok"
)

// csvSink streams flat records to a CSV file. The header is derived from
// the first record; every record of one run has the same shape, since a
// run collects a single resource kind.
type csvSink struct {
	file   *os.File
	writer *csv.Writer
	header []string
}

func newCSVSink(path string) (*csvSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &csvSink{
		file:   file,
		writer: csv.NewWriter(file),
	}, nil
}

func (s *csvSink) Write(record tiktok.Record) error {
	row, err := flatten(record)
	if err != nil {
		return err
	}

	if s.header == nil {
		for key := range row {
			s.header = append(s.header, key)
		}
		sort.Strings(s.header)
		if err := s.writer.Write(s.header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	values := make([]string, len(s.header))
	for i, key := range s.header {
		values[i] = row[key]
	}
	if err := s.writer.Write(values); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (s *csvSink) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return s.file.Close()
}

// flatten renders a record's fields as strings via its JSON form
func flatten(record tiktok.Record) (map[string]string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	// UseNumber keeps 64-bit vendor IDs exact
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to flatten record: %w", err)
	}

	row := make(map[string]string, len(fields))
	for key, value := range fields {
		switch v := value.(type) {
		case nil:
			row[key] = ""
		case string:
			row[key] = v
		case json.Number:
			row[key] = v.String()
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %s: %w", key, err)
			}
			row[key] = string(encoded)
		}
	}
	return row, nil
}
