package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-logr/logr"

	"vacinacao/internal/models"
	"vacinacao/internal/pkg/csvfile"
)

// ErrCorruptReport means the existing report cannot be merged into safely; it is left as is.
var ErrCorruptReport = errors.New("corrupt report")

// ReportWriteError is returned when the merged report could not be stored.
// The previous report, if any, is still in place.
type ReportWriteError struct {
	Path string
	Err  error
}

func (e *ReportWriteError) Error() string {
	return fmt.Sprintf("write report %s: %v", e.Path, e.Err)
}

func (e *ReportWriteError) Unwrap() error { return e.Err }

// Gap is a run of calendar days missing between two consecutive report rows.
type Gap struct {
	After   time.Time
	Before  time.Time
	Missing int
}

// Result summarizes one merge.
type Result struct {
	Path      string
	Created   bool
	Unchanged bool

	Added      int // rows with a date not yet in the report
	Duplicates int // rows whose date was already present
	Undated    int // incoming rows without a usable date, skipped

	DroppedColumns []string // incoming columns the report header does not have
	Rows           int
	Columns        int
	Gaps           []Gap
	Checksum       uint64
}

// Merger folds backups into the cumulative report at Path, one row per calendar day.
type Merger struct {
	Path     string
	Location *time.Location
	Log      logr.Logger
}

func NewMerger(path string, loc *time.Location, log logr.Logger) *Merger {
	return &Merger{Path: path, Location: loc, Log: log}
}

type datedRow struct {
	day time.Time
	row []string
}

// Merge adds the rows of the backup at backupPath whose dates the report does
// not have yet, sorts the report by date and replaces it atomically. Rows for
// dates already in the report are left untouched.
func (m *Merger) Merge(backupPath string) (*Result, error) {
	res := &Result{Path: m.Path}

	incoming, err := csvfile.Read(backupPath)
	if err != nil {
		return nil, fmt.Errorf("read backup %s: %w", backupPath, err)
	}
	if len(incoming.Rows) == 0 {
		res.Unchanged = true
		m.Log.Info("backup has no rows, report left unchanged", "backup", backupPath)
		return res, nil
	}

	current, raw, err := m.load()
	if err != nil {
		return nil, err
	}

	seen := map[time.Time]struct{}{}
	var rows []datedRow
	var header []string

	if current == nil || current.Empty() {
		res.Created = true
		header = incoming.Header
	} else {
		header = current.Header
		for i, row := range current.Rows {
			day, ok := m.dayOf(header, row)
			if !ok {
				return nil, fmt.Errorf("%w: %s line %d has no usable date", ErrCorruptReport, m.Path, i+2)
			}
			if _, dup := seen[day]; dup {
				res.Duplicates++
				continue
			}
			seen[day] = struct{}{}
			rows = append(rows, datedRow{day: day, row: row})
		}
		if res.Duplicates > 0 {
			m.Log.Info("report had repeated dates, keeping the first of each", "repeated", res.Duplicates)
		}
	}

	res.DroppedColumns = missingColumns(header, incoming.Header)
	if len(res.DroppedColumns) > 0 {
		m.Log.Info("backup has columns the report does not, dropping them", "columns", fmt.Sprint(res.DroppedColumns))
	}

	for _, in := range incoming.Rows {
		// date the row as it will be stored under the report header
		row := project(header, incoming.Header, in)
		day, ok := m.dayOf(header, row)
		if !ok {
			res.Undated++
			continue
		}
		if _, dup := seen[day]; dup {
			res.Duplicates++
			continue
		}
		seen[day] = struct{}{}
		rows = append(rows, datedRow{day: day, row: row})
		res.Added++
	}
	if res.Undated > 0 {
		m.Log.Info("skipped backup rows without a date", "rows", res.Undated)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].day.Before(rows[j].day) })

	res.Gaps = gaps(rows)
	for _, g := range res.Gaps {
		m.Log.Info("report has missing days", "after", g.After.Format(time.DateOnly), "before", g.Before.Format(time.DateOnly), "missing", g.Missing)
	}

	out := &csvfile.Table{Header: header}
	for _, r := range rows {
		out.Rows = append(out.Rows, r.row)
	}
	res.Rows = len(out.Rows)
	res.Columns = len(header)

	if res.Created && res.Rows == 0 {
		res.Created = false
		res.Unchanged = true
		return res, nil
	}

	data, err := csvfile.Encode(out)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	res.Checksum = xxhash.Sum64(data)

	if raw != nil && xxhash.Sum64(raw) == res.Checksum {
		res.Unchanged = true
		m.Log.V(1).Info("report unchanged", "path", m.Path, "rows", res.Rows)
		return res, nil
	}

	if err := m.write(data); err != nil {
		return nil, err
	}

	return res, nil
}

// load reads the current report. A missing file returns a nil table.
func (m *Merger) load() (*csvfile.Table, []byte, error) {
	raw, err := os.ReadFile(m.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read report %s: %w", m.Path, err)
	}

	t, err := csvfile.Read(m.Path)
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, nil, fmt.Errorf("%w: %v", ErrCorruptReport, err)
		}
		return nil, nil, fmt.Errorf("read report %s: %w", m.Path, err)
	}

	return t, raw, nil
}

func (m *Merger) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(m.Path), 0755); err != nil {
		return &ReportWriteError{Path: m.Path, Err: err}
	}
	if err := csvfile.WriteFileAtomic(m.Path, data, 0644); err != nil {
		return &ReportWriteError{Path: m.Path, Err: err}
	}
	return nil
}

// dayOf derives the calendar day of a row from Data, falling back to DataISO.
func (m *Merger) dayOf(header, row []string) (time.Time, bool) {
	for _, col := range []string{models.FieldDate, models.FieldDateISO} {
		i := indexOf(header, col)
		if i < 0 || i >= len(row) {
			continue
		}
		if day, ok := ParseDay(row[i], m.location()); ok {
			return day, true
		}
	}
	return time.Time{}, false
}

func (m *Merger) location() *time.Location {
	if m.Location == nil {
		return time.Local
	}
	return m.Location
}

// project lays an incoming row out along the report header.
func project(header, inHeader, in []string) []string {
	out := make([]string, len(header))
	for i, col := range header {
		if j := indexOf(inHeader, col); j >= 0 && j < len(in) {
			out[i] = in[j]
		}
	}
	return out
}

func missingColumns(header, inHeader []string) []string {
	var out []string
	for _, col := range inHeader {
		if indexOf(header, col) < 0 {
			out = append(out, col)
		}
	}
	return out
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func gaps(rows []datedRow) []Gap {
	var out []Gap
	for i := 1; i < len(rows); i++ {
		days := DaysBetween(rows[i-1].day, rows[i].day)
		if days > 1 {
			out = append(out, Gap{After: rows[i-1].day, Before: rows[i].day, Missing: days - 1})
		}
	}
	return out
}
