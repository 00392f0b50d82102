package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"

	"netflow-crawler/internal/record"
)

// CSVStore appends records to a comma-separated log, writing Header first
// when the file is new or empty.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVStore constructs a CSV store at path. The file is created lazily.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the log location.
func (s *CSVStore) Path() string { return s.path }

// Append implements Writer. Header and row go out in a single write.
func (s *CSVStore) Append(_ context.Context, rec record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ensureDir(s.path); err != nil {
		return &PersistenceError{Store: s.path, Err: err}
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &PersistenceError{Store: s.path, Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return &PersistenceError{Store: s.path, Err: err}
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	// rows written by earlier versions of the crawler use CRLF
	writer.UseCRLF = true
	if info.Size() == 0 {
		if err := writer.Write(Header); err != nil {
			return &PersistenceError{Store: s.path, Err: err}
		}
	}
	if err := writer.Write(rec.Row()); err != nil {
		return &PersistenceError{Store: s.path, Err: err}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return &PersistenceError{Store: s.path, Err: err}
	}

	if _, err := file.Write(buf.Bytes()); err != nil {
		return &PersistenceError{Store: s.path, Err: err}
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

var _ Writer = (*CSVStore)(nil)
