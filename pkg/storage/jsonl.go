package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// marshalLine encodes v as one JSON line without escaping &, < and > so URLs stay readable
func marshalLine(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AppendJSONL appends a single record as one line, creating parent directories as needed
func AppendJSONL(path string, record interface{}) error {
	line, err := marshalLine(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}

	if _, err := file.Write(line); err != nil {
		file.Close()
		return fmt.Errorf("failed to append to %s: %w", filepath.Base(path), err)
	}
	return file.Close()
}

// ReadJSONL reads every decodable line of path. A missing file yields no records.
// Blank lines are ignored and malformed lines are counted in skipped rather than failing the read.
func ReadJSONL[T any](path string) (records []T, skipped int, err error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			skipped++
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return records, skipped, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	return records, skipped, nil
}

// WriteJSONL atomically replaces path with one line per record
func WriteJSONL[T any](path string, records []T) error {
	return WriteFileAtomic(path, 0644, func(w io.Writer) error {
		for _, r := range records {
			line, err := marshalLine(r)
			if err != nil {
				return fmt.Errorf("failed to encode record: %w", err)
			}
			if _, err := w.Write(line); err != nil {
				return err
			}
		}
		return nil
	})
}
