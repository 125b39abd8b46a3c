package speech

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tanviriss/MockMate/pkg/circuitbreaker"
	"github.com/tanviriss/MockMate/pkg/logger"
	"github.com/tanviriss/MockMate/pkg/retry"
)

// AudioFormat is the container produced by Synthesize.
const AudioFormat = "mp3"

// Voices maps interviewer personas onto TTS voices. Unknown names are
// passed through as raw voice ids.
var Voices = map[string]openai.SpeechVoice{
	"professional_female": openai.VoiceNova,
	"professional_male":   openai.VoiceOnyx,
	"friendly":            openai.VoiceShimmer,
	"default":             openai.VoiceAlloy,
}

type Synthesizer struct {
	client  *openai.Client
	model   openai.SpeechModel
	timeout time.Duration
	policy  retry.Policy
	breaker *circuitbreaker.CircuitBreaker
}

type SynthesizerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewSynthesizer(cfg SynthesizerConfig) *Synthesizer {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	model := openai.TTSModel1
	if cfg.Model != "" {
		model = openai.SpeechModel(cfg.Model)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	policy := serverErrorPolicy("speech_synthesis")
	policy.Logger = logger.GetLogger()

	return &Synthesizer{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: cfg.Timeout,
		policy:  policy,
		breaker: newBreaker("speech_synthesis"),
	}
}

func resolveVoice(voice string) openai.SpeechVoice {
	if v, ok := Voices[voice]; ok {
		return v
	}
	if voice == "" {
		return Voices["default"]
	}
	return openai.SpeechVoice(voice)
}

// Synthesize returns mp3 audio for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("synthesize: empty text")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	audio, err := circuitbreaker.ExecuteWithResult(ctx, s.breaker, func() ([]byte, error) {
		return retry.DoWithResult(ctx, s.policy, func() ([]byte, error) {
			resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
				Model:          s.model,
				Input:          text,
				Voice:          resolveVoice(voice),
				ResponseFormat: openai.SpeechResponseFormatMp3,
			})
			if err != nil {
				return nil, err
			}
			defer resp.Close()

			return io.ReadAll(resp)
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, classify("synthesize", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesize: empty audio response")
	}

	return audio, nil
}
