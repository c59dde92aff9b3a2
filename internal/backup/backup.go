package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-logr/logr"

	"vacinacao/internal/config"
	"vacinacao/internal/models"
	"vacinacao/internal/pkg/csvfile"
)

const fileTimeLayout = "2006-01-02T15-04-05.000000"

// ErrBackupExists is returned instead of overwriting an earlier backup.
var ErrBackupExists = errors.New("backup file already exists")

// InconsistentSchemaError is returned under the strict policy when a record's
// fields differ from the first record's.
type InconsistentSchemaError struct {
	Index    int
	Expected []string
	Got      []string
}

func (e *InconsistentSchemaError) Error() string {
	return fmt.Sprintf("record %d has fields %v, expected %v", e.Index, e.Got, e.Expected)
}

// Result describes one written backup.
type Result struct {
	Path    string
	Empty   bool // no records: a zero-byte file was written
	Columns []string
	Rows    int
}

// Writer stores the records of each run as a new CSV file under Dir.
type Writer struct {
	Dir    string
	Policy string
	Now    func() time.Time
	Log    logr.Logger
}

func NewWriter(dir, policy string, log logr.Logger) *Writer {
	return &Writer{Dir: dir, Policy: policy, Now: time.Now, Log: log}
}

// Write creates <Dir>/<timestamp>.csv holding records.
func (w *Writer) Write(records []*models.Record) (*Result, error) {
	columns, err := w.columns(records)
	if err != nil {
		return nil, err
	}

	t := &csvfile.Table{Header: columns}
	for _, rec := range records {
		t.Rows = append(t.Rows, rec.Row(columns))
	}
	data, err := csvfile.Encode(t)
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}

	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	path := filepath.Join(w.Dir, now().Format(fileTimeLayout)+".csv")
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrBackupExists, path)
	}

	if err := csvfile.WriteFileAtomic(path, data, 0644); err != nil {
		return nil, fmt.Errorf("write backup %s: %w", path, err)
	}

	res := &Result{Path: path, Empty: len(records) == 0, Columns: columns, Rows: len(records)}
	if res.Empty {
		w.Log.Info("empty backup written", "path", path)
	} else {
		w.Log.V(1).Info("backup written", "path", path, "rows", res.Rows, "columns", len(columns))
	}

	return res, nil
}

// columns picks the header: the first record's keys, then, under the union
// policy, any key first seen in a later record.
func (w *Writer) columns(records []*models.Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	columns := records[0].Keys()
	seen := make(map[string]struct{}, len(columns))
	for _, k := range columns {
		seen[k] = struct{}{}
	}

	for i, rec := range records[1:] {
		keys := rec.Keys()
		if w.Policy == config.SchemaPolicyStrict {
			if !sameKeys(keys, columns) {
				return nil, &InconsistentSchemaError{Index: i + 1, Expected: columns, Got: keys}
			}
			continue
		}
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}

	if extra := len(columns) - records[0].Len(); extra > 0 {
		w.Log.Info("records have heterogeneous fields, using union header", "extra_columns", extra)
	}

	return columns, nil
}

func sameKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
