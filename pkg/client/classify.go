package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorClass represents a classification of failed attempts.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassPayload represents 2xx responses that could not be decoded.
	ErrorClassPayload ErrorClass = "payload"
)

// Kind is the outcome of classifying one attempt.
type Kind int

const (
	// KindSuccess means the response can be decoded as a page.
	KindSuccess Kind = iota

	// KindRecoverable means the same request should be retried after Delay.
	KindRecoverable

	// KindTerminal means the request must not be retried.
	KindTerminal
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRecoverable:
		return "recoverable"
	case KindTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Decision is the result of Classify.
type Decision struct {
	Kind  Kind
	Class ErrorClass

	// Delay is how long to wait before retrying. Only set for KindRecoverable.
	Delay time.Duration

	// FromRetryAfter is true when Delay came from a Retry-After header.
	FromRetryAfter bool
}

// Classify maps an HTTP status and headers to a retry decision. It is pure:
// now is only used to resolve an HTTP-date Retry-After value.
func Classify(status int, header http.Header, now time.Time, cfg RetryConfig) Decision {
	switch {
	case status >= 200 && status < 300:
		return Decision{Kind: KindSuccess}
	case status == http.StatusTooManyRequests:
		if delay, ok := ParseRetryAfter(header.Get("Retry-After"), now); ok {
			return Decision{Kind: KindRecoverable, Class: ErrorClassRateLimit, Delay: delay, FromRetryAfter: true}
		}
		return Decision{Kind: KindRecoverable, Class: ErrorClassRateLimit, Delay: cfg.RateLimitWait}
	case status >= 500 && status < 600:
		return Decision{Kind: KindRecoverable, Class: ErrorClassServer, Delay: cfg.ServerErrorWait}
	case status >= 400 && status < 500:
		return Decision{Kind: KindTerminal, Class: ErrorClassClient}
	default:
		// 1xx, 3xx (redirects are already followed by net/http) and nonsense codes.
		return Decision{Kind: KindTerminal, Class: ErrorClassClient}
	}
}

// ClassifyTransportError classifies an error returned by the HTTP round trip.
// Timeouts are treated like server errors; anything else is terminal because
// it carries no signal that retrying would help.
func ClassifyTransportError(err error, cfg RetryConfig) Decision {
	if isTimeout(err) {
		return Decision{Kind: KindRecoverable, Class: ErrorClassNetwork, Delay: cfg.ServerErrorWait}
	}
	return Decision{Kind: KindTerminal, Class: ErrorClassNetwork}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ParseRetryAfter parses a Retry-After value given either as delay-seconds
// or as an HTTP-date. A date in the past yields zero. ok is false when the
// value is absent or unparseable.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		delay := at.Sub(now)
		if delay < 0 {
			delay = 0
		}
		return delay, true
	}

	return 0, false
}
