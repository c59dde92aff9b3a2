package util_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vacinacao/internal/util"
)

var errFlaky = errors.New("flaky")

func always(error) bool { return true }

var _ = Describe("Retry", func() {
	It("stops at the first success", func() {
		calls := 0
		err := util.Retry(context.Background(), 5, time.Millisecond, 4*time.Millisecond, always, func() error {
			calls++
			if calls < 3 {
				return errFlaky
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(3))
	})

	It("returns the last error once attempts run out", func() {
		calls := 0
		err := util.Retry(context.Background(), 3, time.Millisecond, time.Millisecond, always, func() error {
			calls++
			return errFlaky
		})
		Expect(err).To(MatchError(errFlaky))
		Expect(calls).To(Equal(3))
	})

	It("does not retry permanent errors", func() {
		calls := 0
		err := util.Retry(context.Background(), 3, time.Millisecond, time.Millisecond,
			func(err error) bool { return !errors.Is(err, errFlaky) },
			func() error {
				calls++
				return errFlaky
			})
		Expect(err).To(MatchError(errFlaky))
		Expect(calls).To(Equal(1))
	})

	It("gives up when the context is cancelled while waiting", func() {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := util.Retry(ctx, 3, time.Hour, time.Hour, always, func() error {
			calls++
			cancel()
			return errFlaky
		})
		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("keeps the last error when the context ends during the wait", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		calls := 0
		err := util.Retry(ctx, 3, time.Hour, time.Hour, always, func() error {
			calls++
			return errFlaky
		})
		Expect(err).To(MatchError(errFlaky))
		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(calls).To(Equal(1))
	})

	It("calls once for a single attempt", func() {
		calls := 0
		err := util.Retry(context.Background(), 1, time.Millisecond, time.Millisecond, always, func() error {
			calls++
			return errFlaky
		})
		Expect(err).To(MatchError(errFlaky))
		Expect(calls).To(Equal(1))
	})
})

var _ = Describe("NewHTTPClient", func() {
	It("sets the timeout", func() {
		Expect(util.NewHTTPClient(3 * time.Second).Timeout).To(Equal(3 * time.Second))
	})
})
