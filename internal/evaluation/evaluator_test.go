package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanviriss/MockMate/internal/llm"
	"github.com/tanviriss/MockMate/internal/storage/models"
	"github.com/tanviriss/MockMate/internal/storage/sqlite"
)

type fakeAssessor struct {
	scores map[string]float64
	failOn string
	calls  []llm.EvaluationInput
}

func (f *fakeAssessor) EvaluateAnswer(_ context.Context, in llm.EvaluationInput) (*llm.Evaluation, error) {
	f.calls = append(f.calls, in)
	if in.Transcript == f.failOn {
		return nil, errors.New("model unavailable")
	}
	return &llm.Evaluation{Score: f.scores[in.Transcript], Feedback: "ok"}, nil
}

type fixture struct {
	db        *sqlite.Client
	interview *models.Interview
	questions []*models.Question
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "eval.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema(ctx))

	require.NoError(t, db.CreateUser(ctx, &models.User{ID: "u1", Email: "u1@example.com"}))
	resume := &models.Resume{UserID: "u1", ParsedData: map[string]any{"skills": []any{"Go"}}}
	require.NoError(t, db.CreateResume(ctx, resume))

	iv := &models.Interview{UserID: "u1", ResumeID: resume.ID, JDAnalysis: map[string]any{"job_title": "SRE"}}
	require.NoError(t, db.CreateInterview(ctx, iv))

	qs := make([]*models.Question, n)
	for i := range qs {
		qs[i] = &models.Question{Text: "question"}
	}
	require.NoError(t, db.CreateQuestions(ctx, iv.ID, qs))

	return &fixture{db: db, interview: iv, questions: qs}
}

func (f *fixture) answer(t *testing.T, q int, transcript string) {
	t.Helper()
	d := 30.0
	require.NoError(t, f.db.SaveAnswer(context.Background(), &models.Answer{
		QuestionID:           f.questions[q].ID,
		Transcript:           transcript,
		AudioDurationSeconds: &d,
	}))
}

func TestEvaluateInterview_AveragesScores(t *testing.T) {
	f := newFixture(t, 4)
	f.answer(t, 0, "first")
	f.answer(t, 1, "second")
	f.answer(t, 2, "third")

	assessor := &fakeAssessor{scores: map[string]float64{"first": 8, "second": 7, "third": 9}}
	report, err := NewEvaluator(f.db, assessor).EvaluateInterview(context.Background(), f.interview.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Evaluated)
	assert.Equal(t, 8.0, report.OverallScore)
	require.Len(t, assessor.calls, 3)
	assert.Equal(t, "SRE", assessor.calls[0].JDAnalysis["job_title"])

	iv, err := f.db.GetInterview(context.Background(), f.interview.ID)
	require.NoError(t, err)
	require.NotNil(t, iv.OverallScore)
	assert.Equal(t, 8.0, *iv.OverallScore)

	a, err := f.db.GetAnswerByQuestion(context.Background(), f.questions[1].ID)
	require.NoError(t, err)
	require.NotNil(t, a.Score)
	assert.Equal(t, 7.0, *a.Score)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(a.Evaluation, &stored))
	assert.Contains(t, stored, "speaking_analysis")
}

func TestEvaluateInterview_NoAnswersScoresZero(t *testing.T) {
	f := newFixture(t, 2)

	report, err := NewEvaluator(f.db, &fakeAssessor{}).EvaluateInterview(context.Background(), f.interview.ID)
	require.NoError(t, err)
	assert.Zero(t, report.Evaluated)

	iv, err := f.db.GetInterview(context.Background(), f.interview.ID)
	require.NoError(t, err)
	require.NotNil(t, iv.OverallScore, "zero must be stored, not left unset")
	assert.Equal(t, 0.0, *iv.OverallScore)
}

func TestEvaluateInterview_FailureWritesNothing(t *testing.T) {
	f := newFixture(t, 3)
	f.answer(t, 0, "first")
	f.answer(t, 1, "boom")
	f.answer(t, 2, "third")

	assessor := &fakeAssessor{scores: map[string]float64{"first": 8, "third": 9}, failOn: "boom"}
	_, err := NewEvaluator(f.db, assessor).EvaluateInterview(context.Background(), f.interview.ID)
	require.Error(t, err)
	assert.Len(t, assessor.calls, 2, "remaining questions are not evaluated")

	iv, err := f.db.GetInterview(context.Background(), f.interview.ID)
	require.NoError(t, err)
	assert.Nil(t, iv.OverallScore)

	a, err := f.db.GetAnswerByQuestion(context.Background(), f.questions[0].ID)
	require.NoError(t, err)
	assert.Nil(t, a.Score)
}

func TestEvaluateInterview_MissingInterview(t *testing.T) {
	f := newFixture(t, 1)

	_, err := NewEvaluator(f.db, &fakeAssessor{}).EvaluateInterview(context.Background(), 999)
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestOverallScore(t *testing.T) {
	assert.Equal(t, 8.0, OverallScore([]float64{8, 7, 9}))
	assert.Equal(t, 0.0, OverallScore(nil))
	assert.Equal(t, 6.67, OverallScore([]float64{6, 7, 7}))
}
