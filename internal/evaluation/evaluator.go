package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/analysis"
	"github.com/tanviriss/MockMate/internal/llm"
	"github.com/tanviriss/MockMate/internal/metrics"
	"github.com/tanviriss/MockMate/internal/storage/models"
	"github.com/tanviriss/MockMate/internal/storage/sqlite"
	"github.com/tanviriss/MockMate/pkg/logger"
)

// Store is the record store view the evaluator needs. It is expected to be
// a connection pool of its own, not the one serving live interviews.
type Store interface {
	GetInterview(ctx context.Context, id int64) (*models.Interview, error)
	GetResume(ctx context.Context, id int64) (*models.Resume, error)
	ListQuestions(ctx context.Context, interviewID int64) ([]models.Question, error)
	GetAnswerByQuestion(ctx context.Context, questionID int64) (*models.Answer, error)
	SaveEvaluation(ctx context.Context, interviewID int64, scores []models.AnswerScore, overall float64) error
}

type AnswerAssessor interface {
	EvaluateAnswer(ctx context.Context, in llm.EvaluationInput) (*llm.Evaluation, error)
}

type Evaluator struct {
	store    Store
	assessor AnswerAssessor
}

type Report struct {
	InterviewID  int64
	Evaluated    int
	OverallScore float64
	Duration     time.Duration
}

func NewEvaluator(store Store, assessor AnswerAssessor) *Evaluator {
	return &Evaluator{
		store:    store,
		assessor: assessor,
	}
}

// EvaluateInterview scores every answered question of the interview and
// stores the per-answer evaluations together with the aggregate score.
// Nothing is written unless every evaluation succeeds.
func (e *Evaluator) EvaluateInterview(ctx context.Context, interviewID int64) (*Report, error) {
	start := time.Now()
	logger.Info("Starting interview evaluation", zap.Int64("interview_id", interviewID))

	report, err := e.evaluate(ctx, interviewID)
	elapsed := time.Since(start)
	metrics.EvaluationDuration.Observe(elapsed.Seconds())

	if err != nil {
		metrics.EvaluationRuns.WithLabelValues("failed").Inc()
		logger.Error("Interview evaluation failed",
			zap.Int64("interview_id", interviewID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	report.Duration = elapsed
	metrics.EvaluationRuns.WithLabelValues("succeeded").Inc()
	logger.Info("Interview evaluation completed",
		zap.Int64("interview_id", interviewID),
		zap.Int("evaluated", report.Evaluated),
		zap.Float64("overall_score", report.OverallScore),
		zap.Duration("elapsed", elapsed),
	)
	return report, nil
}

func (e *Evaluator) evaluate(ctx context.Context, interviewID int64) (*Report, error) {
	interview, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interview: %w", err)
	}

	resume, err := e.store.GetResume(ctx, interview.ResumeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load resume %d: %w", interview.ResumeID, err)
	}

	questions, err := e.store.ListQuestions(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	var scores []models.AnswerScore
	var values []float64

	for i, q := range questions {
		answer, err := e.store.GetAnswerByQuestion(ctx, q.ID)
		if errors.Is(err, sqlite.ErrNotFound) {
			logger.Debug("No answer for question",
				zap.Int64("question_id", q.ID),
				zap.Int("index", i),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load answer for question %d: %w", q.ID, err)
		}
		if strings.TrimSpace(answer.Transcript) == "" {
			continue
		}

		eval, err := e.assessor.EvaluateAnswer(ctx, llm.EvaluationInput{
			Question:        q.Text,
			QuestionContext: orEmpty(q.Context),
			Transcript:      answer.Transcript,
			ResumeData:      orEmpty(resume.ParsedData),
			JDAnalysis:      orEmpty(interview.JDAnalysis),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate question %d: %w", q.ID, err)
		}

		speaking := analysis.AnalyzeSpeaking(answer.Transcript, answer.AudioDurationSeconds)
		eval.SpeakingAnalysis = &speaking

		data, err := json.Marshal(eval)
		if err != nil {
			return nil, fmt.Errorf("failed to encode evaluation: %w", err)
		}

		scores = append(scores, models.AnswerScore{
			AnswerID:   answer.ID,
			Evaluation: data,
			Score:      eval.Score,
		})
		values = append(values, eval.Score)

		logger.Debug("Question evaluated",
			zap.Int64("question_id", q.ID),
			zap.Int("index", i+1),
			zap.Int("total", len(questions)),
			zap.Float64("score", eval.Score),
		)
	}

	overall := OverallScore(values)
	if err := e.store.SaveEvaluation(ctx, interviewID, scores, overall); err != nil {
		return nil, err
	}

	return &Report{
		InterviewID:  interviewID,
		Evaluated:    len(scores),
		OverallScore: overall,
	}, nil
}

// OverallScore is the mean of scores rounded to two decimals, or 0 when
// there are none.
func OverallScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}

	var total float64
	for _, s := range scores {
		total += s
	}
	return math.Round(total/float64(len(scores))*100) / 100
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
