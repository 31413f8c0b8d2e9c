package sync

import (
	"context"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
)

// Retry bounds the exponential backoff applied to transient remote errors.
type Retry struct {
	MaxRetries      uint64        // retries after the first attempt
	InitialInterval time.Duration // wait before the first retry
	MaxInterval     time.Duration // cap on any single wait
}

// DefaultRetry is used when a remote is given a zero Retry.
var DefaultRetry = Retry{
	MaxRetries:      5,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     30 * time.Second,
}

func (r Retry) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxInterval = r.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, r.MaxRetries), ctx)
}

// do runs fn until it succeeds, fails with an error that is not worth
// retrying, or runs out of retries. The last error is returned.
func (r Retry) do(ctx context.Context, log logrus.FieldLogger, op string, fn func() error) error {
	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.backOff(ctx), func(err error, wait time.Duration) {
		log.WithError(err).WithField("op", op).Warnf("transient error, retrying in %s", wait)
	})
}

// shouldRetry reports whether err is transient: server errors, rate
// limiting and dropped connections.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code >= 500 || gerr.Code == http.StatusTooManyRequests {
			return true
		}
		for _, item := range gerr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return true
			}
		}
		return false
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
