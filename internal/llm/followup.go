package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/analysis"
	"github.com/tanviriss/MockMate/pkg/logger"
)

const (
	minWordsBeforeAnalysis = 20
	ReasonAnswerTooShort   = "answer_too_short"
	GenericFollowup        = "Could you elaborate on that with a specific example?"
)

// JSONCompleter is the part of Client the prompt builders need.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, req CompletionRequest, v any) error
}

type FollowupDecision struct {
	Needed   bool
	Question string
	Reason   string
	Focus    string
}

type answerQuality struct {
	NeedsFollowup   bool     `json:"needs_followup"`
	Reason          string   `json:"reason"`
	MissingElements []string `json:"missing_elements"`
}

type followupQuestion struct {
	Question string `json:"followup_question"`
	Focus    string `json:"focus"`
}

type FollowupGenerator struct {
	llm JSONCompleter
}

func NewFollowupGenerator(llm JSONCompleter) *FollowupGenerator {
	return &FollowupGenerator{llm: llm}
}

// DecideFollowup judges whether the answer needs a probing follow-up and,
// if so, writes one. A failed quality analysis is returned as an error; a
// failed question generation falls back to GenericFollowup.
func (g *FollowupGenerator) DecideFollowup(ctx context.Context, questionText, transcript string, questionContext map[string]any) (FollowupDecision, error) {
	quality, err := g.analyzeAnswer(ctx, questionText, transcript, questionContext)
	if err != nil {
		return FollowupDecision{}, err
	}
	if !quality.NeedsFollowup {
		return FollowupDecision{Needed: false, Reason: quality.Reason}, nil
	}

	fq := g.generateQuestion(ctx, questionText, transcript, questionContext, quality.MissingElements)

	return FollowupDecision{
		Needed:   true,
		Question: fq.Question,
		Reason:   quality.Reason,
		Focus:    fq.Focus,
	}, nil
}

func (g *FollowupGenerator) analyzeAnswer(ctx context.Context, questionText, transcript string, questionContext map[string]any) (answerQuality, error) {
	if analysis.CountWords(transcript) < minWordsBeforeAnalysis {
		return answerQuality{NeedsFollowup: true, Reason: ReasonAnswerTooShort}, nil
	}

	prompt := fmt.Sprintf(`Analyze this interview answer QUICKLY and determine if it needs a follow-up question.

Question: %s
Question Type: %s

Answer: %s

Does this answer need a follow-up question? Consider:
1. Is it too vague or generic?
2. Missing specific examples or details?
3. Didn't use STAR method (for behavioral)?
4. Avoided the actual question?
5. Too short (< 50 words)?

Return JSON:
{
    "needs_followup": true/false,
    "reason": "brief explanation why",
    "missing_elements": ["what's missing from the answer"]
}

Return ONLY JSON, no markdown.`, questionText, stringField(questionContext, "question_type", "general"), transcript)

	var quality answerQuality
	if err := g.llm.CompleteJSON(ctx, CompletionRequest{UserPrompt: prompt, Temperature: 0.2, MaxTokens: 300}, &quality); err != nil {
		return answerQuality{}, fmt.Errorf("failed to analyze answer quality: %w", err)
	}
	return quality, nil
}

func (g *FollowupGenerator) generateQuestion(ctx context.Context, questionText, transcript string, questionContext map[string]any, missing []string) followupQuestion {
	missingText := "specifics and details"
	if len(missing) > 0 {
		missingText = strings.Join(missing, ", ")
	}

	prompt := fmt.Sprintf(`You are conducting a live interview. The candidate just gave an incomplete answer. Generate a natural, conversational follow-up question.

Original Question: %s
Type: %s

Their Answer: %s

Missing: %s

Generate ONE follow-up question that:
1. Sounds natural and conversational (like a real interviewer)
2. Encourages them to add more detail
3. Is specific about what you want to hear
4. For behavioral: Probe for STAR elements they missed
5. For technical: Ask for examples or deeper explanation

Return JSON:
{
    "followup_question": "The natural follow-up question",
    "focus": "brief note on what we're probing for"
}

Return ONLY JSON, no markdown.`, questionText, stringField(questionContext, "question_type", "general"), transcript, missingText)

	var fq followupQuestion
	err := g.llm.CompleteJSON(ctx, CompletionRequest{UserPrompt: prompt, Temperature: 0.7, MaxTokens: 200}, &fq)
	if err != nil || strings.TrimSpace(fq.Question) == "" {
		logger.Warn("Follow-up generation failed, using generic follow-up", zap.Error(err))
		return followupQuestion{Question: GenericFollowup, Focus: "getting more detail"}
	}

	fq.Question = strings.TrimSpace(fq.Question)
	return fq
}

func stringField(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}

func stringList(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
