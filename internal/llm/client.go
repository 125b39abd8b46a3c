package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/metrics"
	"github.com/tanviriss/MockMate/pkg/circuitbreaker"
	"github.com/tanviriss/MockMate/pkg/logger"
	"github.com/tanviriss/MockMate/pkg/retry"
)

// ErrMalformedResponse means the model answered with something that is not
// the JSON document the prompt asked for. It is retried.
var ErrMalformedResponse = errors.New("malformed LLM response")

type Options struct {
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	Retry       *retry.Policy
}

// Client adds a circuit breaker, retries and a per-attempt timeout around a
// Provider.
type Client struct {
	provider    Provider
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	policy      retry.Policy
}

func NewClient(provider Provider, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1500
	}

	cb := circuitbreaker.NewCircuitBreaker("llm_"+provider.Name(), circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure: func(err error) bool {
			return err != nil && !retry.IsPermanent(err) && !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger.GetLogger(),
	})

	policy := retry.Policy{
		Name:           "llm",
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}
	if opts.Retry != nil {
		policy = *opts.Retry
	}

	logger.Info("LLM client initialized",
		zap.String("provider", provider.Name()),
		zap.Duration("timeout", opts.Timeout),
	)

	return &Client{
		provider:    provider,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.Timeout,
		cb:          cb,
		policy:      policy,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var result *CompletionResponse
	err := c.run(ctx, req, func(resp *CompletionResponse) error {
		result = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteJSON asks for a JSON object and decodes it into v. Unparseable
// output is retried like a transport failure.
func (c *Client) CompleteJSON(ctx context.Context, req CompletionRequest, v any) error {
	req.JSON = true
	return c.run(ctx, req, func(resp *CompletionResponse) error {
		if err := json.Unmarshal([]byte(StripCodeFences(resp.Content)), v); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return nil
	})
}

func (c *Client) run(ctx context.Context, req CompletionRequest, handle func(*CompletionResponse) error) error {
	if req.Temperature == 0 {
		req.Temperature = c.temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.policy, func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			resp, err := c.provider.Complete(attemptCtx, req)
			if err != nil {
				return err
			}

			logger.Debug("LLM completion generated",
				zap.String("provider", c.provider.Name()),
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			return handle(resp)
		})
	})
	if err != nil {
		return fmt.Errorf("llm %s: %w", c.provider.Name(), err)
	}
	return nil
}

// StripCodeFences removes a surrounding markdown code block, which models
// add even when told not to.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
