package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// Retry calls fn up to attempts times, doubling the wait between calls up to max.
// Errors for which retryable returns false are returned immediately. When ctx
// ends while waiting, the last error is returned wrapped together with ctx.Err().
func Retry(ctx context.Context, attempts int, initial, max time.Duration, retryable func(error) bool, fn func() error) error {
	if attempts <= 1 {
		return fn()
	}
	d := initial
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("%w (gave up waiting to retry: %w)", lastErr, ctx.Err())
			}
			if d < max {
				d *= 2
				if d > max {
					d = max
				}
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if i == attempts-1 || !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return errors.New("retry: exhausted")
}
