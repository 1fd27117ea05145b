package repl

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const remoteRetryMaxElapsed = 30 * time.Second

func newRemoteRetryBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = remoteRetryMaxElapsed
	return bo
}

// isRetryableError returns true for transient connection errors worth
// retrying against a remote peer (stale pool connections, brief network
// issues, server restarts).
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "driver: bad connection") {
		return true
	}
	if strings.Contains(errStr, "invalid connection") {
		return true
	}
	if strings.Contains(errStr, "broken pipe") {
		return true
	}
	if strings.Contains(errStr, "connection reset") {
		return true
	}
	// "connection refused" is transient — a restarting server may come
	// back within the backoff window.
	if strings.Contains(errStr, "connection refused") {
		return true
	}
	// MySQL error 2013: mid-query disconnect
	if strings.Contains(errStr, "lost connection") {
		return true
	}
	// MySQL error 2006: idle connection timeout
	if strings.Contains(errStr, "gone away") {
		return true
	}
	if strings.Contains(errStr, "i/o timeout") {
		return true
	}
	return false
}

// withRemoteRetry executes an operation against the remote peer,
// retrying transient errors with exponential backoff.
func withRemoteRetry(ctx context.Context, op func() error) error {
	bo := newRemoteRetryBackoff()
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}
