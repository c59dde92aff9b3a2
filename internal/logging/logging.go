// Package logging builds the run-scoped logr.Logger used by every pipeline stage.
//
// Lines look like the scraper's historical log file, with funcr rendering the
// key/value pairs:
//
//	2021-03-01 08:00:00,123 INFO Data collected "features"=3
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

const timestampLayout = "2006-01-02 15:04:05,000"

// Open creates the parent directory of path and opens the file for appending.
func Open(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return f, nil
}

// New returns a logger writing to w. Info calls with V(n) are emitted when n <= verbosity.
func New(w io.Writer, verbosity int) logr.Logger {
	return logr.New(&sink{
		Formatter: funcr.NewFormatter(funcr.Options{
			Verbosity:          verbosity,
			RenderBuiltinsHook: keepError,
		}),
		out: log.New(w, "", 0),
		mu:  &sync.Mutex{},
		now: time.Now,
	})
}

// keepError drops the level and msg builtins, which go in the line prefix.
func keepError(kvList []any) []any {
	for i := 0; i+1 < len(kvList); i += 2 {
		if kvList[i] == "error" && kvList[i+1] != nil {
			return kvList[i : i+2]
		}
	}
	return nil
}

// sink prefixes funcr's key/value rendering with timestamp, level, name and message.
type sink struct {
	funcr.Formatter
	out *log.Logger
	mu  *sync.Mutex
	now func() time.Time
}

func (s *sink) Info(level int, msg string, kvList ...any) {
	lvl := "INFO"
	if level > 0 {
		lvl = "DEBUG"
	}
	prefix, args := s.FormatInfo(level, msg, kvList)
	s.write(lvl, prefix, msg, args)
}

func (s *sink) Error(err error, msg string, kvList ...any) {
	prefix, args := s.FormatError(err, msg, kvList)
	s.write("ERROR", prefix, msg, args)
}

func (s *sink) WithValues(kvList ...any) logr.LogSink {
	c := *s
	c.AddValues(kvList)
	return &c
}

func (s *sink) WithName(name string) logr.LogSink {
	c := *s
	c.AddName(name)
	return &c
}

func (s *sink) write(level, prefix, msg, args string) {
	b := strings.Builder{}
	b.WriteString(s.now().Format(timestampLayout))
	b.WriteByte(' ')
	b.WriteString(level)
	b.WriteByte(' ')
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteString(": ")
	}
	b.WriteString(msg)
	if args = strings.TrimSpace(args); args != "" {
		b.WriteByte(' ')
		b.WriteString(args)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Println(b.String())
}
