package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tanviriss/MockMate/internal/metrics"
	"github.com/tanviriss/MockMate/pkg/circuitbreaker"
	"github.com/tanviriss/MockMate/pkg/logger"
	"github.com/tanviriss/MockMate/pkg/retry"
)

var (
	ErrTimeout     = errors.New("speech service timed out")
	ErrRateLimited = errors.New("speech service rate limited")
	ErrEmptyAudio  = errors.New("audio file is empty")
)

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// classify maps a vendor error onto the package sentinels.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	case statusCode(err) == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %v", op, ErrRateLimited, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// serverErrorPolicy retries only 5xx responses.
func serverErrorPolicy(name string) retry.Policy {
	p := retry.DefaultPolicy()
	p.Name = name
	p.MaxAttempts = 2
	p.Retryable = func(err error) bool {
		return statusCode(err) >= 500
	}
	return p
}

// newBreaker trips on vendor outages only. Client errors and rate limits
// say nothing about whether the service is up.
func newBreaker(name string) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(name, circuitbreaker.Config{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		IsFailure: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return false
			}
			code := statusCode(err)
			return code == 0 || code >= 500
		},
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger.GetLogger(),
	})
}
