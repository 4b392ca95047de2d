/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package labsync

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ErrorClass groups errors by how the pipeline reacts to them.
type ErrorClass string

const (
	ErrorClassQuota     ErrorClass = "quota"
	ErrorClassTransient ErrorClass = "transient"
	ErrorClassAuth      ErrorClass = "auth"
	ErrorClassPermanent ErrorClass = "permanent"
)

const (
	defaultQuotaDelay = 60 * time.Second
	maxQuotaDelay     = 300 * time.Second
	jitterFraction    = 0.3
)

var retryHintPattern = regexp.MustCompile(`(?i)retry in ([\d.]+)s`)

// statusCoder is implemented by errors that carry a provider status code.
type statusCoder interface {
	StatusCode() int
}

// RetryOptions configures RetryWithBackoff. MaxRetries counts attempts after the first.
type RetryOptions struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// newTimer and jitter are replaced in tests.
	newTimer func() backoff.Timer
	jitter   func() float64
}

func errorStatusCode(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// ClassifyError decides whether err is a quota, transient, auth or permanent failure.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ""
	}

	code := errorStatusCode(err)
	msg := strings.ToLower(err.Error())

	switch {
	case code == 429 || strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit"):
		return ErrorClassQuota
	case code == 503 || strings.Contains(msg, "overloaded") || isConnectionError(err, msg):
		return ErrorClassTransient
	case code == 401 || code == 403 || strings.Contains(msg, "api key"):
		return ErrorClassAuth
	}
	return ErrorClassPermanent
}

func isConnectionError(err error, msg string) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(msg, "econnreset") || strings.Contains(msg, "etimedout") || strings.Contains(msg, "connection reset")
}

// IsRetryable reports whether RetryWithBackoff would try err again.
func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassQuota || class == ErrorClassTransient
}

// quotaDelay reads a "retry in Ns" hint from the error message, defaulting to a minute.
func quotaDelay(err error) time.Duration {
	delay := defaultQuotaDelay
	if m := retryHintPattern.FindStringSubmatch(err.Error()); m != nil {
		if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
			delay = time.Duration(secs * float64(time.Second))
		}
	}
	if delay > maxQuotaDelay {
		delay = maxQuotaDelay
	}
	return delay
}

// transientDelay is min(initial*2^attempt, max) plus up to 30% jitter.
func transientDelay(attempt int, initial, maxDelay time.Duration, jitter float64) time.Duration {
	base := float64(initial) * math.Pow(2, float64(attempt))
	if base > float64(maxDelay) {
		base = float64(maxDelay)
	}
	return time.Duration(base + jitter*jitterFraction*base)
}

// classifiedBackOff picks each wait from the last error seen by the operation.
type classifiedBackOff struct {
	opts    RetryOptions
	attempt int
	lastErr error
}

func (b *classifiedBackOff) Reset() {
	b.attempt = 0
}

func (b *classifiedBackOff) NextBackOff() time.Duration {
	defer func() { b.attempt++ }()
	if b.lastErr == nil {
		return backoff.Stop
	}
	if ClassifyError(b.lastErr) == ErrorClassQuota {
		return quotaDelay(b.lastErr)
	}
	jitter := rand.Float64
	if b.opts.jitter != nil {
		jitter = b.opts.jitter
	}
	return transientDelay(b.attempt, b.opts.InitialDelay, b.opts.MaxDelay, jitter())
}

// RetryWithBackoff runs op until it succeeds, fails permanently, or MaxRetries retries are spent.
// Quota errors wait for the server hint (or 60s, capped at 300s). Transient errors back off
// exponentially with jitter. Anything else is returned after the first attempt.
// Waiting honours ctx cancellation.
func RetryWithBackoff[T any](ctx context.Context, op func(context.Context) (T, error), opts RetryOptions) (T, error) {
	b := &classifiedBackOff{opts: opts}

	attempt := func() (T, error) {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		b.lastErr = err
		if !IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{
			"error_class": ClassifyError(err),
			"wait":        wait.String(),
			"attempt":     b.attempt,
		}).Warnf("operation failed, retrying: %v", err)
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)

	var timer backoff.Timer
	if opts.newTimer != nil {
		timer = opts.newTimer()
	}
	return backoff.RetryNotifyWithTimerAndData(attempt, policy, notify, timer)
}
