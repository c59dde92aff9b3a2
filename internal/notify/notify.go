package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	"github.com/tidwall/sjson"
	"golang.org/x/time/rate"

	"vacinacao/internal/models"
	"vacinacao/internal/util"
)

// NotificationError is one failed webhook delivery. It never fails a run.
type NotificationError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notify %s: %v", Redact(e.URL), e.Err)
	}
	return fmt.Sprintf("notify %s: HTTP response code %d", Redact(e.URL), e.StatusCode)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// Summarizer writes a short human summary of the rendered records.
type Summarizer interface {
	Summarize(ctx context.Context, table string) (string, error)
}

type Options struct {
	Username       string
	AvatarURL      string
	MaxContent     int
	Timeout        time.Duration
	// PostsPerSecond paces deliveries; zero means no limit.
	PostsPerSecond float64
	Summarizer     Summarizer
}

// Dispatcher posts a rendered summary of a run's records to chat webhooks.
type Dispatcher struct {
	webhooks []string
	opts     Options
	client   *http.Client
	limiter  *rate.Limiter
	log      logr.Logger
	now      func() time.Time
}

func New(webhooks []string, opts Options, log logr.Logger) *Dispatcher {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.PostsPerSecond > 0 {
		limit = rate.Limit(opts.PostsPerSecond)
	}
	return &Dispatcher{
		webhooks: webhooks,
		opts:     opts,
		client:   util.NewHTTPClient(timeout),
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
		now:      time.Now,
	}
}

// UseDefaultClient makes the dispatcher go through http.DefaultClient.
func (d *Dispatcher) UseDefaultClient() {
	d.client = http.DefaultClient
}

// SetClock replaces the clock used for the message header.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

func (d *Dispatcher) Enabled() bool {
	return len(d.webhooks) > 0
}

// Notify posts the same payload to every webhook. Each webhook is tried even
// when an earlier one failed; the failures are logged and returned joined.
func (d *Dispatcher) Notify(ctx context.Context, records []*models.Record) error {
	if !d.Enabled() {
		return nil
	}

	payload, err := d.Payload(ctx, records)
	if err != nil {
		d.log.Error(err, "cannot build notification", "webhooks", len(d.webhooks))
		return err
	}

	var errs []error
	for _, hook := range d.webhooks {
		err := d.limiter.Wait(ctx)
		if err != nil {
			err = &NotificationError{URL: hook, Err: err}
		} else {
			err = d.post(ctx, hook, payload)
		}
		if err != nil {
			d.log.Error(err, "webhook notification failed", "webhook", Redact(hook))
			errs = append(errs, err)
			continue
		}
		d.log.V(1).Info("webhook notified", "webhook", Redact(hook))
	}

	return errors.Join(errs...)
}

// Payload builds the webhook body: {"username", "avatar_url", "content"}.
func (d *Dispatcher) Payload(ctx context.Context, records []*models.Record) ([]byte, error) {
	table := Table(records)
	content := Header(d.now()) + " \n\n"
	if d.opts.Summarizer != nil && len(records) > 0 {
		summary, err := d.opts.Summarizer.Summarize(ctx, table)
		if err != nil {
			d.log.Error(err, "summary unavailable, sending table only")
		} else if summary != "" {
			content += summary + "\n\n"
		}
	}
	content = truncate(content+table, d.opts.MaxContent)

	body, err := sjson.Set("", "username", d.opts.Username)
	if err != nil {
		return nil, err
	}
	if body, err = sjson.Set(body, "avatar_url", d.opts.AvatarURL); err != nil {
		return nil, err
	}
	if body, err = sjson.Set(body, "content", content); err != nil {
		return nil, err
	}

	return []byte(body), nil
}

func (d *Dispatcher) post(ctx context.Context, hook string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook, bytes.NewReader(payload))
	if err != nil {
		return &NotificationError{URL: hook, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		// url.Error repeats the full webhook URL
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return &NotificationError{URL: hook, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &NotificationError{URL: hook, StatusCode: resp.StatusCode}
	}
	return nil
}

// Redact keeps only scheme and host of a webhook URL; the path usually carries a token.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid webhook url>"
	}
	return u.Scheme + "://" + u.Host
}
