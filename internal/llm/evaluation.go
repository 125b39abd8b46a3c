package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/analysis"
	"github.com/tanviriss/MockMate/pkg/logger"
)

const (
	minScore = 1
	maxScore = 10
)

type StarAnalysis struct {
	Situation string `json:"situation"`
	Task      string `json:"task"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	Notes     string `json:"notes"`
}

// Evaluation is the structured feedback stored on an answer.
type Evaluation struct {
	Score                  float64                    `json:"score"`
	Strengths              []string                   `json:"strengths"`
	Weaknesses             []string                   `json:"weaknesses"`
	Improvements           []string                   `json:"improvements"`
	Feedback               string                     `json:"feedback"`
	EvidenceQuotes         []string                   `json:"evidence_quotes"`
	StarAnalysis           *StarAnalysis              `json:"star_analysis"`
	MissingKeywords        []string                   `json:"missing_keywords"`
	TechnicalAccuracyNotes string                     `json:"technical_accuracy_notes"`
	SpeakingAnalysis       *analysis.SpeakingAnalysis `json:"speaking_analysis,omitempty"`
}

type EvaluationInput struct {
	Question        string
	QuestionContext map[string]any
	Transcript      string
	ResumeData      map[string]any
	JDAnalysis      map[string]any
}

type AnswerEvaluator struct {
	llm JSONCompleter
}

func NewAnswerEvaluator(llm JSONCompleter) *AnswerEvaluator {
	return &AnswerEvaluator{llm: llm}
}

func (e *AnswerEvaluator) EvaluateAnswer(ctx context.Context, in EvaluationInput) (*Evaluation, error) {
	var raw struct {
		Evaluation
		Score *float64 `json:"score"`
	}

	err := e.llm.CompleteJSON(ctx, CompletionRequest{
		SystemPrompt: "You are an expert interview coach evaluating a candidate's answer to an interview question.",
		UserPrompt:   buildEvaluationPrompt(in),
		Temperature:  0.3,
		MaxTokens:    1500,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate answer: %w", err)
	}

	eval := raw.Evaluation
	eval.Score = 5
	if raw.Score != nil {
		eval.Score = clampScore(*raw.Score)
	}

	logger.Debug("Answer evaluated", zap.Float64("score", eval.Score))
	return &eval, nil
}

func clampScore(s float64) float64 {
	if s < minScore {
		return minScore
	}
	if s > maxScore {
		return maxScore
	}
	return s
}

func buildEvaluationPrompt(in EvaluationInput) string {
	var b strings.Builder

	b.WriteString("**Job Context:**\n")
	fmt.Fprintf(&b, "Position: %s\n", stringField(in.JDAnalysis, "job_title", "Not specified"))
	fmt.Fprintf(&b, "Experience Level: %s\n", stringField(in.JDAnalysis, "experience_level", "Not specified"))
	fmt.Fprintf(&b, "Required Skills: %s\n\n", strings.Join(stringList(in.JDAnalysis, "required_skills"), ", "))

	b.WriteString("**Candidate Background:**\n")
	fmt.Fprintf(&b, "Experience: %s\n", indentJSON(in.ResumeData["experience"]))
	fmt.Fprintf(&b, "Skills: %s\n", strings.Join(stringList(in.ResumeData, "skills"), ", "))
	fmt.Fprintf(&b, "Education: %s\n\n", indentJSON(in.ResumeData["education"]))

	b.WriteString("**Question Details:**\n")
	fmt.Fprintf(&b, "Type: %s\n", stringField(in.QuestionContext, "question_type", "general"))
	fmt.Fprintf(&b, "Difficulty: %s\n", stringField(in.QuestionContext, "difficulty", "medium"))
	fmt.Fprintf(&b, "Category: %s\n", stringField(in.QuestionContext, "category", "general"))
	fmt.Fprintf(&b, "Question: %s\n\n", in.Question)

	fmt.Fprintf(&b, "**Candidate's Answer:**\n%s\n\n", in.Transcript)

	b.WriteString(`**Evaluation Criteria:**
1. Relevance - Does the answer address the question? (25%)
2. Specificity - Are there concrete examples and details? (25%)
3. Clarity - Is the answer well-structured and clear? (20%)
4. Technical Accuracy - Is the information technically sound? (20%)
5. Job Alignment - Does it align with job requirements? (10%)

**For Behavioral Questions (STAR Method):**
- Situation: Context and background
- Task: Challenge or responsibility
- Action: Specific actions taken
- Result: Outcomes and learnings

Return ONLY a JSON object in this format:
{
    "score": <integer from 1-10>,
    "strengths": ["<specific strength>"],
    "weaknesses": ["<specific weakness>"],
    "improvements": ["<actionable improvement>"],
    "feedback": "<2-3 sentence overall assessment>",
    "evidence_quotes": ["<quote from answer that demonstrates strength or weakness>"],
    "star_analysis": {
        "situation": "<present/missing/weak>",
        "task": "<present/missing/weak>",
        "action": "<present/missing/weak>",
        "result": "<present/missing/weak>",
        "notes": "<brief explanation>"
    },
    "missing_keywords": ["<keyword from job requirements not mentioned>"],
    "technical_accuracy_notes": "<any technical errors or misconceptions>"
}

Be constructive and specific.`)

	return b.String()
}

func indentJSON(v any) string {
	if v == nil {
		return "[]"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
