package testhelpers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Expectation is one canned exchange with the ArcGIS feed, a webhook or the
// summary API. Each expectation answers a single request.
type Expectation struct {
	Method string
	URL    *url.URL

	StatusCode int
	RespBody   []byte
	Headers    http.Header
	Err        error

	ReceivedBody    []byte
	ReceivedHeaders http.Header

	used bool
}

type stub struct {
	mu    sync.Mutex
	queue []*Expectation
	prev  http.RoundTripper
}

var registry = &stub{}

// New queues an expectation for requests to base. base needs a scheme and host.
func New(base string) *Expectation {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		panic(fmt.Sprintf("testhelpers: %q is not an absolute URL", base))
	}
	e := &Expectation{URL: u, Headers: http.Header{}}

	registry.mu.Lock()
	registry.queue = append(registry.queue, e)
	registry.mu.Unlock()
	return e
}

func (e *Expectation) Get(path string) *Expectation  { return e.on(http.MethodGet, path) }
func (e *Expectation) Post(path string) *Expectation { return e.on(http.MethodPost, path) }

func (e *Expectation) on(method, path string) *Expectation {
	p, err := url.Parse(path)
	if err != nil {
		panic(fmt.Sprintf("testhelpers: bad path %q: %v", path, err))
	}
	e.Method = method
	e.URL.Path, e.URL.RawQuery = p.Path, p.RawQuery
	return e
}

func (e *Expectation) Reply(status int) *Expectation {
	e.StatusCode = status
	return e
}

// ReplyError makes the request fail before any response, like a dropped connection.
func (e *Expectation) ReplyError(err error) *Expectation {
	e.Err = err
	return e
}

func (e *Expectation) BodyString(body string) *Expectation {
	e.RespBody = []byte(body)
	return e
}

func (e *Expectation) Header(key, value string) *Expectation {
	e.Headers.Set(key, value)
	return e
}

// IsDone reports whether every queued expectation has been used.
func IsDone() bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	for _, e := range registry.queue {
		if !e.used {
			return false
		}
	}
	return true
}

// Activate routes http.DefaultClient through the queued expectations.
func Activate() {
	if http.DefaultClient.Transport == registry {
		return
	}
	registry.prev = http.DefaultClient.Transport
	http.DefaultClient.Transport = registry
}

// Deactivate puts the previous transport back and forgets all expectations.
func Deactivate() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if http.DefaultClient.Transport == registry {
		http.DefaultClient.Transport = registry.prev
	}
	registry.prev = nil
	registry.queue = nil
}

func (s *stub) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var misses []string
	for _, e := range s.queue {
		if e.used {
			continue
		}
		if why := e.differs(req); why != "" {
			misses = append(misses, why)
			continue
		}

		e.used = true
		e.ReceivedHeaders = req.Header.Clone()
		if req.Body != nil {
			e.ReceivedBody, _ = io.ReadAll(req.Body)
			req.Body.Close()
		}
		if e.Err != nil {
			return nil, e.Err
		}
		return e.response(req), nil
	}

	msg := fmt.Sprintf("testhelpers: unexpected %s %s", req.Method, req.URL)
	if len(misses) > 0 {
		msg += " (" + strings.Join(misses, "; ") + ")"
	}
	return nil, errors.New(msg)
}

// differs returns why req does not fit e, or "" when it does. Query keys
// of e must all be present with the same values; extra keys are allowed.
func (e *Expectation) differs(req *http.Request) string {
	switch {
	case e.Method != "" && e.Method != req.Method:
		return fmt.Sprintf("want %s, got %s", e.Method, req.Method)
	case e.URL.Scheme != req.URL.Scheme || e.URL.Host != req.URL.Host:
		return fmt.Sprintf("want %s://%s, got %s://%s", e.URL.Scheme, e.URL.Host, req.URL.Scheme, req.URL.Host)
	case e.URL.Path != req.URL.Path:
		return fmt.Sprintf("want path %s, got %s", e.URL.Path, req.URL.Path)
	}

	got := req.URL.Query()
	for key, want := range e.URL.Query() {
		have, ok := got[key]
		if !ok || strings.Join(have, ",") != strings.Join(want, ",") {
			return fmt.Sprintf("query %s: want %v, got %v", key, want, have)
		}
	}
	return ""
}

func (e *Expectation) response(req *http.Request) *http.Response {
	status := e.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Headers,
		Body:          io.NopCloser(bytes.NewReader(e.RespBody)),
		ContentLength: int64(len(e.RespBody)),
		Request:       req,
	}
}
