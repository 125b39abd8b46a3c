package speech

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/metrics"
	"github.com/tanviriss/MockMate/pkg/circuitbreaker"
	"github.com/tanviriss/MockMate/pkg/logger"
	"github.com/tanviriss/MockMate/pkg/retry"
)

type Transcription struct {
	Text     string
	Duration *float64
	Language string
}

// Transcriber sends audio files to a Whisper-compatible endpoint (OpenAI or
// Groq through BaseURL).
type Transcriber struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	policy  retry.Policy
	breaker *circuitbreaker.CircuitBreaker
}

type TranscriberConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewTranscriber(cfg TranscriberConfig) *Transcriber {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	policy := serverErrorPolicy("transcription")
	policy.Logger = logger.GetLogger()

	return &Transcriber{
		client:  openai.NewClientWithConfig(config),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		policy:  policy,
		breaker: newBreaker("transcription"),
	}
}

// Transcribe reads the audio at path. The whole call, retries included, is
// bounded by the configured timeout.
func (t *Transcriber) Transcribe(ctx context.Context, path, language string) (*Transcription, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	if info.Size() == 0 {
		return nil, ErrEmptyAudio
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	resp, err := circuitbreaker.ExecuteWithResult(ctx, t.breaker, func() (openai.AudioResponse, error) {
		return retry.DoWithResult(ctx, t.policy, func() (openai.AudioResponse, error) {
			return t.client.CreateTranscription(ctx, openai.AudioRequest{
				Model:       t.model,
				FilePath:    path,
				Language:    language,
				Format:      openai.AudioResponseFormatVerboseJSON,
				Temperature: 0,
			})
		})
	})
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		metrics.TranscriptionDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		return nil, classify("transcribe", err)
	}
	metrics.TranscriptionDuration.WithLabelValues("ok").Observe(elapsed.Seconds())

	result := &Transcription{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
	}
	if resp.Duration > 0 {
		d := resp.Duration
		result.Duration = &d
	}

	logger.Debug("Audio transcribed",
		zap.Int64("bytes", info.Size()),
		zap.Int("chars", len(result.Text)),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}
