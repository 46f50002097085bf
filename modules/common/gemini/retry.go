package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/logger"
)

// rateLimitPenalty - extra wait added on top of the exponential delay for 429s
const rateLimitPenalty = 1000 * time.Millisecond

// Policy - retry settings for one Invoke call
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration // 0 disables the per-attempt deadline

	// OnRetry is called before each wait with the 1-based attempt that failed
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy - 3 attempts, 1s base delay
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// sleep waits for d or until ctx is done. Replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Invoke - run op with classification-driven retry and exponential backoff.
// Attempts are sequential; the error returned is the one from the last attempt.
func Invoke[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		result, err := runAttempt(ctx, policy.AttemptTimeout, op)
		if err == nil {
			if i > 0 {
				logger.WithField("attempt", i+1).Info("✅ [Gemini Retry] Succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("gemini call aborted: %w (last error: %v)", ctxErr, err)
		}

		class := Classify(err)
		if class == apperror.Permanent {
			logger.WithFields(logrus.Fields{
				"attempt": i + 1,
				"error":   truncateString(err.Error(), 200),
			}).Warn("❌ [Gemini Retry] Permanent error, not retrying")
			return zero, wrapRemote(err, class)
		}

		if i == maxAttempts-1 {
			break
		}

		delay := backoff(policy.BaseDelay, i, class)
		logger.WithFields(logrus.Fields{
			"attempt":  i + 1,
			"max":      maxAttempts,
			"class":    class.String(),
			"delay_ms": delay.Milliseconds(),
			"error":    truncateString(err.Error(), 200),
		}).Warn("⚠️  [Gemini Retry] Retryable error, backing off")

		if policy.OnRetry != nil {
			policy.OnRetry(i+1, delay, err)
		}

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}

	logger.WithField("attempts", maxAttempts).Error("❌ [Gemini Retry] All attempts exhausted")
	return zero, wrapRemote(lastErr, Classify(lastErr))
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

// backoff - base * 2^attemptIndex, plus a fixed penalty for rate limits
func backoff(base time.Duration, attemptIndex int, class apperror.Class) time.Duration {
	delay := base * time.Duration(1<<uint(attemptIndex))
	if class == apperror.RateLimited {
		delay += rateLimitPenalty
	}
	return delay
}

// wrapRemote - tag a raw remote failure with its class. Local typed errors pass through.
func wrapRemote(err error, class apperror.Class) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var remoteErr *apperror.RemoteError
	if errors.As(err, &remoteErr) {
		return err
	}
	return &apperror.RemoteError{Class: class, Code: statusCode(err), Err: err}
}

var (
	rateLimitMarkers = []string{"429", "resource exhausted", "resource_exhausted", "quota", "rate limit"}
	transientMarkers = []string{
		"500", "502", "503", "504",
		"fetch failed", "network error", "overloaded", "xhr error", "rpc failed",
		"unavailable", "connection reset", "connection refused", "unexpected eof",
	}
)

// Classify - decide whether a failure is worth retrying.
// Structured status codes win; message sniffing is the last resort.
func Classify(err error) apperror.Class {
	if err == nil {
		return apperror.Permanent
	}

	var remoteErr *apperror.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Class
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return apperror.Permanent
	}

	if code := statusCode(err); code != 0 {
		return classifyStatus(code)
	}

	if errors.Is(err, context.Canceled) {
		return apperror.Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperror.Transient
	}

	return classifyMessage(err.Error())
}

func classifyStatus(code int) apperror.Class {
	switch code {
	case 429:
		return apperror.RateLimited
	case 500, 502, 503, 504:
		return apperror.Transient
	default:
		return apperror.Permanent
	}
}

func classifyMessage(msg string) apperror.Class {
	msg = strings.ToLower(msg)
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return apperror.RateLimited
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return apperror.Transient
		}
	}
	return apperror.Permanent
}

// statusCode - HTTP status from a genai API error, 0 when there is none
func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}

// truncateString - shorten long strings for logs
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
