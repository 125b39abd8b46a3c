package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateAnswer_ClampsScore(t *testing.T) {
	cases := []struct {
		reply string
		want  float64
	}{
		{`{"score": 14, "feedback": "great"}`, 10},
		{`{"score": 0}`, 1},
		{`{"score": 7.5}`, 7.5},
		{`{"feedback": "no score"}`, 5},
	}

	for _, tc := range cases {
		e := NewAnswerEvaluator(&scriptedLLM{replies: []any{tc.reply}})
		got, err := e.EvaluateAnswer(context.Background(), EvaluationInput{Question: "Q", Transcript: "A"})
		require.NoError(t, err, tc.reply)
		assert.Equal(t, tc.want, got.Score, tc.reply)
	}
}

func TestEvaluateAnswer_PromptCarriesContext(t *testing.T) {
	llm := &scriptedLLM{replies: []any{`{"score": 8, "strengths": ["clear"], "star_analysis": {"situation": "present"}}`}}
	e := NewAnswerEvaluator(llm)

	got, err := e.EvaluateAnswer(context.Background(), EvaluationInput{
		Question:        "Tell me about a time you scaled a system.",
		QuestionContext: map[string]any{"question_type": "behavioral", "difficulty": "hard"},
		Transcript:      "We moved reads to replicas.",
		ResumeData:      map[string]any{"skills": []any{"Go", "Postgres"}},
		JDAnalysis:      map[string]any{"job_title": "Backend Engineer", "required_skills": []any{"Go"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"clear"}, got.Strengths)
	require.NotNil(t, got.StarAnalysis)
	assert.Equal(t, "present", got.StarAnalysis.Situation)

	prompt := llm.prompts[0]
	assert.Contains(t, prompt, "Position: Backend Engineer")
	assert.Contains(t, prompt, "Skills: Go, Postgres")
	assert.Contains(t, prompt, "Type: behavioral")
	assert.Contains(t, prompt, "Difficulty: hard")
	assert.Contains(t, prompt, "We moved reads to replicas.")
}

func TestEvaluateAnswer_Error(t *testing.T) {
	e := NewAnswerEvaluator(&scriptedLLM{})
	_, err := e.EvaluateAnswer(context.Background(), EvaluationInput{Question: "Q", Transcript: "A"})
	assert.Error(t, err)
}
