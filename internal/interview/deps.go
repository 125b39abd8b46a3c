package interview

import (
	"context"

	"github.com/tanviriss/MockMate/internal/auth"
	"github.com/tanviriss/MockMate/internal/evaluation"
	"github.com/tanviriss/MockMate/internal/jobs"
	"github.com/tanviriss/MockMate/internal/llm"
	"github.com/tanviriss/MockMate/internal/session"
	"github.com/tanviriss/MockMate/internal/speech"
	"github.com/tanviriss/MockMate/internal/storage/models"
)

// Conn is one client connection as the orchestrator sees it. Send must be
// safe to call from a single goroutine per connection.
type Conn interface {
	ID() string
	User() auth.User
	Send(v any) error
}

type RecordStore interface {
	GetInterview(ctx context.Context, id int64) (*models.Interview, error)
	ListQuestions(ctx context.Context, interviewID int64) ([]models.Question, error)
	GetQuestionByIndex(ctx context.Context, interviewID int64, index int) (*models.Question, error)
	CountQuestions(ctx context.Context, interviewID int64) (int, error)
	UpdateInterviewStatus(ctx context.Context, id int64, status models.InterviewStatus) (bool, error)
	SaveAnswer(ctx context.Context, answer *models.Answer) error
	AppendFollowupAnswer(ctx context.Context, questionID int64, followupQuestion, transcript, audioURL string, duration *float64) (*models.Answer, error)
	GetAnswerByQuestion(ctx context.Context, questionID int64) (*models.Answer, error)
}

type SessionStore interface {
	Create(ctx context.Context, connID string, interviewID int64, userID string) *session.Session
	Get(ctx context.Context, connID string) (*session.Session, bool)
	Update(ctx context.Context, connID string, sess *session.Session)
	Delete(ctx context.Context, connID string)
	AddAnswerDraft(ctx context.Context, connID string, draft session.AnswerDraft) bool
	MarkCompleted(ctx context.Context, connID string) bool
}

type Transcriber interface {
	Transcribe(ctx context.Context, path, language string) (*speech.Transcription, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

type FollowupDecider interface {
	DecideFollowup(ctx context.Context, questionText, transcript string, questionContext map[string]any) (llm.FollowupDecision, error)
}

type ObjectStore interface {
	Put(ctx context.Context, data []byte, pathHint, contentType string) (string, error)
}

type JobSubmitter interface {
	Submit(name string, fn jobs.Job) error
}

type InterviewEvaluator interface {
	EvaluateInterview(ctx context.Context, interviewID int64) (*evaluation.Report, error)
}

type RateLimiter interface {
	Allow(key string) bool
}

// Deps are the collaborators of an Orchestrator. Synthesizer, Followups,
// Objects and Limiter may be nil; the corresponding features are skipped.
type Deps struct {
	Records     RecordStore
	Sessions    SessionStore
	Transcriber Transcriber
	Synthesizer Synthesizer
	Followups   FollowupDecider
	Objects     ObjectStore
	Jobs        JobSubmitter
	Evaluator   InterviewEvaluator
	Limiter     RateLimiter
}
