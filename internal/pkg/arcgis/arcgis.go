package arcgis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	"github.com/tidwall/gjson"

	"vacinacao/internal/models"
	"vacinacao/internal/util"
)

const defaultMaxBodyBytes = 32 << 20

// ErrMissingFeatures means the payload decoded fine but carried no "features" list.
var ErrMissingFeatures = errors.New("there is no 'features' information")

// RemoteUnavailableError is returned when the feed answers with a non-2xx status.
type RemoteUnavailableError struct {
	StatusCode int
	URL        string
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("cannot get data from %s: HTTP response code %d", e.URL, e.StatusCode)
}

// MalformedResponseError is returned when the body is not a JSON object of the expected shape.
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Client reads one ArcGIS feature service query endpoint.
type Client struct {
	url    string
	client *http.Client
	log    logr.Logger

	attempts     int
	backoff      time.Duration
	maxBackoff   time.Duration
	maxBodyBytes int64
}

type Option func(*Client)

// WithRetry sets how many attempts a fetch may take and the backoff between them.
func WithRetry(attempts int, backoff, maxBackoff time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.backoff = backoff
		c.maxBackoff = maxBackoff
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client = util.NewHTTPClient(timeout)
	}
}

func WithLogger(log logr.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		c.maxBodyBytes = n
	}
}

func New(feedURL string, opts ...Option) *Client {
	c := &Client{
		url:          feedURL,
		client:       util.NewHTTPClient(20 * time.Second),
		log:          logr.Discard(),
		attempts:     1,
		backoff:      500 * time.Millisecond,
		maxBackoff:   5 * time.Second,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseDefaultClient makes the client go through http.DefaultClient.
func (c *Client) UseDefaultClient() {
	c.client = http.DefaultClient
}

// GetFeatures fetches the feed and returns its features in payload order.
func (c *Client) GetFeatures(ctx context.Context) ([]models.Feature, error) {
	var body []byte
	attempt := 0
	err := util.Retry(ctx, c.attempts, c.backoff, c.maxBackoff, isTransient, func() error {
		attempt++
		var err error
		body, err = c.get(ctx)
		if err != nil && attempt < c.attempts && isTransient(err) {
			c.log.Info("fetch failed, retrying", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return c.parse(body)
}

func (c *Client) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &RemoteUnavailableError{StatusCode: resp.StatusCode, URL: c.url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, &MalformedResponseError{URL: c.url, Err: fmt.Errorf("body exceeds %d bytes", c.maxBodyBytes)}
	}

	return body, nil
}

func (c *Client) parse(body []byte) ([]models.Feature, error) {
	if !gjson.ValidBytes(body) {
		return nil, &MalformedResponseError{URL: c.url, Err: errors.New("invalid JSON")}
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, &MalformedResponseError{URL: c.url, Err: fmt.Errorf("expected a JSON object, got %s", root.Type)}
	}

	features := root.Get("features")
	if !features.Exists() || features.Type == gjson.Null {
		// ArcGIS reports query failures as 200 with an "error" object
		if msg := root.Get("error.message"); msg.Exists() {
			return nil, fmt.Errorf("%w: %s: %s", ErrMissingFeatures, c.url, msg.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMissingFeatures, c.url)
	}
	if !features.IsArray() {
		return nil, &MalformedResponseError{URL: c.url, Err: fmt.Errorf("'features' is %s, not an array", features.Type)}
	}

	items := features.Array()
	out := make([]models.Feature, 0, len(items))
	for _, it := range items {
		out = append(out, models.Feature{Raw: it})
	}

	c.log.Info("Data collected", "features", len(out))

	return out, nil
}

// isTransient reports whether a failed fetch is worth another attempt.
func isTransient(err error) bool {
	var unavailable *RemoteUnavailableError
	if errors.As(err, &unavailable) {
		return unavailable.StatusCode == http.StatusTooManyRequests || unavailable.StatusCode >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
