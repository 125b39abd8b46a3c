package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/metrics"
	"github.com/tanviriss/MockMate/internal/session"
	"github.com/tanviriss/MockMate/internal/storage/models"
	"github.com/tanviriss/MockMate/internal/storage/sqlite"
	"github.com/tanviriss/MockMate/pkg/config"
	"github.com/tanviriss/MockMate/pkg/logger"
)

const (
	msgCompleted      = "Interview completed! Evaluating your responses..."
	msgGenericError   = "Something went wrong. Please try again."
	msgRateLimited    = "Too many requests. Please slow down."
	msgNoSession      = "Session not found"
	msgNotCurrent     = "That question is not the current question"
	msgAlreadyDone    = "Interview already completed"
	msgTTSUnavailable = "Audio is unavailable right now. Please read the question text."
)

type Config struct {
	MinAudioBytes      int
	MaxAudioBytes      int
	MinTranscriptChars int
	MaxFollowups       int
	TempDir            string
	Language           string
	Voice              string
}

func ConfigFrom(cfg config.InterviewConfig) Config {
	return Config{
		MinAudioBytes:      cfg.MinAudioBytes,
		MaxAudioBytes:      cfg.MaxAudioBytes,
		MinTranscriptChars: cfg.MinTranscriptChars,
		MaxFollowups:       cfg.MaxFollowups,
		TempDir:            cfg.TempDir,
		Language:           cfg.Language,
		Voice:              cfg.Voice,
	}
}

func (c Config) withDefaults() Config {
	if c.MinAudioBytes <= 0 {
		c.MinAudioBytes = 100
	}
	if c.MaxAudioBytes <= 0 {
		c.MaxAudioBytes = 10 * 1024 * 1024
	}
	if c.MinTranscriptChars <= 0 {
		c.MinTranscriptChars = 3
	}
	if c.MaxFollowups < 0 {
		c.MaxFollowups = 0
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.Voice == "" {
		c.Voice = "professional_female"
	}
	return c
}

// clientError carries the message shown to the candidate. The wrapped error,
// if any, is only logged.
type clientError struct {
	msg string
	err error
}

func (e *clientError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *clientError) Unwrap() error { return e.err }

func fail(msg string, err error) error {
	return &clientError{msg: msg, err: err}
}

type handlerFunc func(ctx context.Context, conn Conn, data json.RawMessage) error

// Orchestrator drives the interview protocol for every connection. It keeps
// no per-connection state of its own: progress lives in the session store
// and answers in the record store.
type Orchestrator struct {
	records     RecordStore
	sessions    SessionStore
	transcriber Transcriber
	synthesizer Synthesizer
	followups   FollowupDecider
	objects     ObjectStore
	jobs        JobSubmitter
	evaluator   InterviewEvaluator
	limiter     RateLimiter
	cfg         Config

	handlers map[string]handlerFunc
}

func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	o := &Orchestrator{
		records:     deps.Records,
		sessions:    deps.Sessions,
		transcriber: deps.Transcriber,
		synthesizer: deps.Synthesizer,
		followups:   deps.Followups,
		objects:     deps.Objects,
		jobs:        deps.Jobs,
		evaluator:   deps.Evaluator,
		limiter:     deps.Limiter,
		cfg:         cfg.withDefaults(),
	}

	o.handlers = map[string]handlerFunc{
		EventStartInterview: o.handleStart,
		EventSubmitAnswer:   o.handleSubmit,
		EventConfirmAnswer:  o.handleConfirm,
		EventSkipQuestion:   o.handleSkip,
		EventEndInterview:   o.handleEnd,
	}

	return o
}

// Connect acknowledges an authenticated connection.
func (o *Orchestrator) Connect(ctx context.Context, conn Conn) {
	logger.Info("Interview connection opened",
		zap.String("connection_id", conn.ID()),
		zap.String("user_id", conn.User().ID),
	)
	o.emit(conn, ConnectedEvent{Event: newEvent(EventConnected), SID: conn.ID()})
}

// Disconnect drops the connection's session. Persisted records are left
// as they are so the interview can be resumed later.
func (o *Orchestrator) Disconnect(ctx context.Context, conn Conn) {
	o.sessions.Delete(ctx, conn.ID())
	logger.Info("Interview connection closed", zap.String("connection_id", conn.ID()))
}

// Dispatch handles one raw client message. Failures are reported to the
// client as error events and never returned.
func (o *Orchestrator) Dispatch(ctx context.Context, conn Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		metrics.EventsTotal.WithLabelValues("invalid", "error").Inc()
		o.sendError(conn, fail("Invalid message format", err))
		return
	}

	handler, ok := o.handlers[env.Type]
	if !ok {
		metrics.EventsTotal.WithLabelValues("unknown", "error").Inc()
		o.sendError(conn, fail(fmt.Sprintf("Unknown event type: %s", env.Type), nil))
		return
	}

	if o.limiter != nil && !o.limiter.Allow(conn.User().ID) {
		metrics.EventsTotal.WithLabelValues(env.Type, "rate_limited").Inc()
		o.sendError(conn, fail(msgRateLimited, nil))
		return
	}

	if err := handler(ctx, conn, env.Data); err != nil {
		metrics.EventsTotal.WithLabelValues(env.Type, "error").Inc()
		logger.Warn("Interview event failed",
			zap.String("connection_id", conn.ID()),
			zap.String("event", env.Type),
			zap.Error(err),
		)
		o.sendError(conn, err)
		return
	}
	metrics.EventsTotal.WithLabelValues(env.Type, "ok").Inc()
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fail("Invalid payload", err)
	}
	return nil
}

func (o *Orchestrator) handleStart(ctx context.Context, conn Conn, data json.RawMessage) error {
	var req StartInterviewRequest
	if err := decodeData(data, &req); err != nil {
		return err
	}
	return o.StartInterview(ctx, conn, req)
}

func (o *Orchestrator) handleSubmit(ctx context.Context, conn Conn, data json.RawMessage) error {
	var req SubmitAnswerRequest
	if err := decodeData(data, &req); err != nil {
		return err
	}
	return o.SubmitAnswer(ctx, conn, req)
}

func (o *Orchestrator) handleConfirm(ctx context.Context, conn Conn, data json.RawMessage) error {
	var req ConfirmAnswerRequest
	if err := decodeData(data, &req); err != nil {
		return err
	}
	return o.ConfirmAnswer(ctx, conn, req)
}

func (o *Orchestrator) handleSkip(ctx context.Context, conn Conn, data json.RawMessage) error {
	var req SkipQuestionRequest
	if err := decodeData(data, &req); err != nil {
		return err
	}
	return o.SkipQuestion(ctx, conn, req)
}

func (o *Orchestrator) handleEnd(ctx context.Context, conn Conn, _ json.RawMessage) error {
	return o.EndInterview(ctx, conn)
}

// StartInterview begins or resumes an interview on conn.
func (o *Orchestrator) StartInterview(ctx context.Context, conn Conn, req StartInterviewRequest) error {
	if req.InterviewID <= 0 || req.UserID == "" {
		return fail("Missing interview_id or user_id", nil)
	}
	user := conn.User()
	if req.UserID != user.ID {
		return fail("user_id does not match the authenticated user", nil)
	}

	if sess, ok := o.sessions.Get(ctx, conn.ID()); ok && sess.InterviewID == req.InterviewID {
		return o.resume(ctx, conn, sess)
	}

	interview, err := o.records.GetInterview(ctx, req.InterviewID)
	if errors.Is(err, sqlite.ErrNotFound) || (err == nil && interview.UserID != user.ID) {
		return fail("Interview not found", err)
	}
	if err != nil {
		return fail("Error starting interview", err)
	}
	if interview.Status == models.StatusCompleted {
		return fail(msgAlreadyDone, nil)
	}

	questions, err := o.records.ListQuestions(ctx, interview.ID)
	if err != nil {
		return fail("Error starting interview", err)
	}
	if len(questions) == 0 {
		return fail("No questions found for this interview", nil)
	}

	start := 0
	if interview.Status == models.StatusInProgress {
		start, err = o.firstUnanswered(ctx, questions)
		if err != nil {
			return fail("Error starting interview", err)
		}
	}

	if _, err := o.records.UpdateInterviewStatus(ctx, interview.ID, models.StatusInProgress); err != nil {
		return fail("Error starting interview", err)
	}

	sess := o.sessions.Create(ctx, conn.ID(), interview.ID, user.ID)
	if start > 0 {
		sess.CurrentQuestionIndex = start
	}
	if start < len(questions) {
		sess.CurrentQuestionID = questions[start].ID
	}
	o.sessions.Update(ctx, conn.ID(), sess)

	logger.Info("Interview started",
		zap.String("connection_id", conn.ID()),
		zap.Int64("interview_id", interview.ID),
		zap.Int("total_questions", len(questions)),
		zap.Int("start_index", start),
	)

	o.emit(conn, InterviewStartedEvent{
		Event:                newEvent(EventInterviewStarted),
		InterviewID:          interview.ID,
		TotalQuestions:       len(questions),
		CurrentQuestionIndex: start,
		Resumed:              start > 0,
	})

	if start >= len(questions) {
		return o.complete(ctx, conn, sess)
	}
	o.sendQuestion(ctx, conn, questions[start], start, len(questions))
	return nil
}

// firstUnanswered returns the index of the first question without a stored
// answer, or len(questions) when every question has one.
func (o *Orchestrator) firstUnanswered(ctx context.Context, questions []models.Question) (int, error) {
	for i, q := range questions {
		_, err := o.records.GetAnswerByQuestion(ctx, q.ID)
		if errors.Is(err, sqlite.ErrNotFound) {
			return i, nil
		}
		if err != nil {
			return 0, err
		}
	}
	return len(questions), nil
}

// resume re-delivers the current position of a live session without
// touching any record.
func (o *Orchestrator) resume(ctx context.Context, conn Conn, sess *session.Session) error {
	if sess.Status == session.StatusCompleted {
		o.emitCompleted(conn, sess.InterviewID)
		return nil
	}

	questions, err := o.records.ListQuestions(ctx, sess.InterviewID)
	if err != nil {
		return fail("Error resuming interview", err)
	}

	logger.Info("Interview resumed",
		zap.String("connection_id", conn.ID()),
		zap.Int64("interview_id", sess.InterviewID),
		zap.Int("index", sess.CurrentQuestionIndex),
	)

	o.emit(conn, InterviewStartedEvent{
		Event:                newEvent(EventInterviewStarted),
		InterviewID:          sess.InterviewID,
		TotalQuestions:       len(questions),
		CurrentQuestionIndex: sess.CurrentQuestionIndex,
		Resumed:              true,
	})

	if sess.CurrentQuestionIndex >= len(questions) {
		return o.complete(ctx, conn, sess)
	}

	q := questions[sess.CurrentQuestionIndex]
	o.sendQuestion(ctx, conn, q, sess.CurrentQuestionIndex, len(questions))
	if sess.IsAwaitingFollowup(q.ID) {
		o.sendFollowup(ctx, conn, q.ID, sess.PendingFollowup.Question, sess.PendingFollowup.Reason)
	}
	return nil
}

func (o *Orchestrator) sendQuestion(ctx context.Context, conn Conn, q models.Question, index, total int) {
	questionContext := q.Context
	if questionContext == nil {
		questionContext = map[string]any{}
	}
	o.emit(conn, QuestionEvent{
		Event:          newEvent(EventQuestion),
		QuestionID:     q.ID,
		QuestionText:   q.Text,
		QuestionNumber: index + 1,
		TotalQuestions: total,
		Context:        questionContext,
	})
	o.sendAudio(ctx, conn, q.ID, q.Text, false)
}

func (o *Orchestrator) sendFollowup(ctx context.Context, conn Conn, questionID int64, text, reason string) {
	o.emit(conn, FollowupQuestionEvent{
		Event:        newEvent(EventFollowupQuestion),
		QuestionID:   questionID,
		FollowupText: text,
		Reason:       reason,
		IsFollowup:   true,
	})
	o.sendAudio(ctx, conn, questionID, text, true)
}

// SkipQuestion moves past the current question without storing an answer.
func (o *Orchestrator) SkipQuestion(ctx context.Context, conn Conn, req SkipQuestionRequest) error {
	sess, err := o.activeSession(ctx, conn)
	if err != nil {
		return err
	}
	if req.QuestionID == 0 {
		return fail("Missing question_id", nil)
	}
	if req.QuestionID != sess.CurrentQuestionID {
		return fail(msgNotCurrent, nil)
	}

	logger.Info("Question skipped",
		zap.String("connection_id", conn.ID()),
		zap.Int64("question_id", req.QuestionID),
	)

	sess.RemoveDrafts(req.QuestionID)
	return o.advance(ctx, conn, sess)
}

// EndInterview completes the interview early. Ending an already completed
// session only repeats the acknowledgement.
func (o *Orchestrator) EndInterview(ctx context.Context, conn Conn) error {
	sess, ok := o.sessions.Get(ctx, conn.ID())
	if !ok {
		return fail(msgNoSession, nil)
	}
	if sess.Status == session.StatusCompleted {
		o.emitCompleted(conn, sess.InterviewID)
		return nil
	}
	return o.complete(ctx, conn, sess)
}

func (o *Orchestrator) activeSession(ctx context.Context, conn Conn) (*session.Session, error) {
	sess, ok := o.sessions.Get(ctx, conn.ID())
	if !ok {
		return nil, fail(msgNoSession, nil)
	}
	if sess.Status == session.StatusCompleted {
		return nil, fail(msgAlreadyDone, nil)
	}
	if sess.FollowupCounts == nil {
		sess.FollowupCounts = map[int64]int{}
	}
	return sess, nil
}

// advance moves the session to the next question that has no stored
// answer, or completes the interview when none is left. Answered questions
// are passed over so a resumed interview never asks them again. Any pending
// follow-up is dropped.
func (o *Orchestrator) advance(ctx context.Context, conn Conn, sess *session.Session) error {
	next := sess.CurrentQuestionIndex + 1

	var q *models.Question
	for {
		var err error
		q, err = o.records.GetQuestionByIndex(ctx, sess.InterviewID, next)
		if errors.Is(err, sqlite.ErrNotFound) {
			sess.PendingFollowup = nil
			sess.CurrentQuestionIndex = next
			sess.CurrentQuestionID = 0
			o.sessions.Update(ctx, conn.ID(), sess)
			return o.complete(ctx, conn, sess)
		}
		if err != nil {
			return fail("Error loading the next question", err)
		}

		_, err = o.records.GetAnswerByQuestion(ctx, q.ID)
		if errors.Is(err, sqlite.ErrNotFound) {
			break
		}
		if err != nil {
			return fail("Error loading the next question", err)
		}
		logger.Debug("Passing over answered question",
			zap.String("connection_id", conn.ID()),
			zap.Int64("question_id", q.ID),
		)
		next++
	}

	total, err := o.records.CountQuestions(ctx, sess.InterviewID)
	if err != nil {
		return fail("Error loading the next question", err)
	}

	sess.PendingFollowup = nil
	sess.CurrentQuestionIndex = next
	sess.CurrentQuestionID = q.ID
	o.sessions.Update(ctx, conn.ID(), sess)
	o.sendQuestion(ctx, conn, *q, next, total)
	return nil
}

// complete marks the interview finished and schedules its evaluation.
func (o *Orchestrator) complete(ctx context.Context, conn Conn, sess *session.Session) error {
	if _, err := o.records.UpdateInterviewStatus(ctx, sess.InterviewID, models.StatusCompleted); err != nil {
		return fail("Error completing interview", err)
	}
	if !o.sessions.MarkCompleted(ctx, conn.ID()) {
		sess.Status = session.StatusCompleted
		o.sessions.Update(ctx, conn.ID(), sess)
	}

	metrics.InterviewsCompleted.Inc()
	logger.Info("Interview completed",
		zap.String("connection_id", conn.ID()),
		zap.Int64("interview_id", sess.InterviewID),
	)

	o.emitCompleted(conn, sess.InterviewID)
	o.scheduleEvaluation(sess.InterviewID)
	return nil
}

func (o *Orchestrator) emitCompleted(conn Conn, interviewID int64) {
	o.emit(conn, InterviewCompletedEvent{
		Event:       newEvent(EventInterviewCompleted),
		InterviewID: interviewID,
		Message:     msgCompleted,
	})
}

func (o *Orchestrator) scheduleEvaluation(interviewID int64) {
	if o.jobs == nil || o.evaluator == nil {
		logger.Warn("No evaluator configured, skipping evaluation", zap.Int64("interview_id", interviewID))
		return
	}

	err := o.jobs.Submit("evaluate_interview", func(ctx context.Context) error {
		_, err := o.evaluator.EvaluateInterview(ctx, interviewID)
		return err
	})
	if err != nil {
		logger.Error("Failed to schedule evaluation",
			zap.Int64("interview_id", interviewID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) emit(conn Conn, ev any) {
	if err := conn.Send(ev); err != nil {
		logger.Warn("Failed to send event",
			zap.String("connection_id", conn.ID()),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) sendError(conn Conn, err error) {
	msg := msgGenericError
	var ce *clientError
	if errors.As(err, &ce) {
		msg = ce.msg
	}
	o.emit(conn, ErrorEvent{Event: newEvent(EventError), Message: msg})
}
