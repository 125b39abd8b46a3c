package interview

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/metrics"
	"github.com/tanviriss/MockMate/internal/objectstore"
	"github.com/tanviriss/MockMate/internal/session"
	"github.com/tanviriss/MockMate/internal/speech"
	"github.com/tanviriss/MockMate/internal/storage/models"
	"github.com/tanviriss/MockMate/internal/storage/sqlite"
	"github.com/tanviriss/MockMate/pkg/logger"
)

const (
	defaultAudioFormat = "webm"
	maxFormatLength    = 8
)

// normalizeFormat validates the client's container tag. It ends up in a
// file name and an object key, so only short alphanumeric tags pass.
func normalizeFormat(format string) (string, bool) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return defaultAudioFormat, true
	}
	if len(format) > maxFormatLength {
		return "", false
	}
	for _, r := range format {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "", false
		}
	}
	return format, true
}

// decodeAudio strips an optional data URL prefix and decodes the payload,
// refusing anything that would decode past the size limit.
func (o *Orchestrator) decodeAudio(encoded string) ([]byte, error) {
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > o.cfg.MaxAudioBytes+3 {
		return nil, o.tooLarge()
	}

	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fail("Invalid audio data. Please record again.", err)
	}
	if len(audio) < o.cfg.MinAudioBytes {
		return nil, fail("Audio file too small. Please record again.", nil)
	}
	if len(audio) > o.cfg.MaxAudioBytes {
		return nil, o.tooLarge()
	}
	return audio, nil
}

func (o *Orchestrator) tooLarge() error {
	return fail(fmt.Sprintf("Audio file too large. Maximum size is %d MB.", o.cfg.MaxAudioBytes/(1024*1024)), nil)
}

// SubmitAnswer transcribes recorded audio for the current question and
// keeps the result as a draft until the candidate confirms it.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, conn Conn, req SubmitAnswerRequest) error {
	sess, err := o.activeSession(ctx, conn)
	if err != nil {
		return err
	}
	if req.QuestionID == 0 || req.AudioData == "" {
		return fail("Missing question_id or audio_data", nil)
	}
	if req.QuestionID != sess.CurrentQuestionID {
		return fail(msgNotCurrent, nil)
	}
	format, ok := normalizeFormat(req.Format)
	if !ok {
		return fail("Unsupported audio format", nil)
	}

	audio, err := o.decodeAudio(req.AudioData)
	if err != nil {
		return err
	}

	audioURL := o.uploadAudio(ctx, sess.InterviewID, req.QuestionID, format, audio)

	transcription, err := o.transcribe(ctx, conn, audio, format)
	if err != nil {
		return err
	}

	if utf8.RuneCountInString(strings.TrimSpace(transcription.Text)) < o.cfg.MinTranscriptChars {
		return fail("We couldn't hear an answer in that recording. Please try again.", nil)
	}

	draft := session.AnswerDraft{
		QuestionID:  req.QuestionID,
		Transcript:  transcription.Text,
		AudioURL:    audioURL,
		Format:      format,
		Duration:    transcription.Duration,
		SubmittedAt: time.Now().UTC(),
	}
	if !o.sessions.AddAnswerDraft(ctx, conn.ID(), draft) {
		return fail(msgNoSession, nil)
	}

	o.emit(conn, TranscriptReadyEvent{
		Event:      newEvent(EventTranscriptReady),
		QuestionID: req.QuestionID,
		Transcript: transcription.Text,
		Duration:   transcription.Duration,
	})
	return nil
}

// transcribe writes audio to a temporary file that is removed before
// returning, whatever the outcome.
func (o *Orchestrator) transcribe(ctx context.Context, conn Conn, audio []byte, format string) (*speech.Transcription, error) {
	tmp, err := os.CreateTemp(o.cfg.TempDir, "answer-*."+format)
	if err != nil {
		return nil, fail("Error processing answer", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	_, err = tmp.Write(audio)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fail("Error processing answer", err)
	}

	o.emit(conn, TranscribingEvent{
		Event:   newEvent(EventTranscribing),
		Message: "Transcribing your answer...",
	})

	result, err := o.transcriber.Transcribe(ctx, path, o.cfg.Language)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, speech.ErrTimeout):
		return nil, fail("Transcription timed out. Please try again.", err)
	case errors.Is(err, speech.ErrRateLimited):
		return nil, fail("Transcription service is busy. Please wait a moment and try again.", err)
	case errors.Is(err, speech.ErrEmptyAudio):
		return nil, fail("Audio file too small. Please record again.", err)
	default:
		return nil, fail("Failed to transcribe audio. Please try again.", err)
	}
}

// uploadAudio stores the recording and returns its URL, or "" when the
// upload fails.
func (o *Orchestrator) uploadAudio(ctx context.Context, interviewID, questionID int64, format string, audio []byte) string {
	if o.objects == nil {
		return ""
	}

	url, err := o.objects.Put(ctx, audio, objectstore.AudioPath(interviewID, questionID, format), objectstore.ContentType(format))
	if err != nil {
		logger.Warn("Audio upload failed, continuing without a stored recording",
			zap.Int64("interview_id", interviewID),
			zap.Int64("question_id", questionID),
			zap.Error(err),
		)
		return ""
	}
	return url
}

// ConfirmAnswer stores the candidate's final transcript for the current
// question, then either asks a follow-up or moves on.
func (o *Orchestrator) ConfirmAnswer(ctx context.Context, conn Conn, req ConfirmAnswerRequest) error {
	sess, err := o.activeSession(ctx, conn)
	if err != nil {
		return err
	}
	if req.QuestionID == 0 || req.Transcript == nil {
		return fail("Missing question_id or transcript", nil)
	}
	if req.QuestionID != sess.CurrentQuestionID {
		return fail(msgNotCurrent, nil)
	}
	transcript := *req.Transcript
	if strings.TrimSpace(transcript) == "" {
		return fail("Transcript cannot be empty", nil)
	}

	draft, ok := sess.LatestDraft(req.QuestionID)
	if !ok {
		return fail("Answer not found in session", nil)
	}

	question, err := o.records.GetQuestionByIndex(ctx, sess.InterviewID, sess.CurrentQuestionIndex)
	if errors.Is(err, sqlite.ErrNotFound) || (err == nil && question.ID != req.QuestionID) {
		return fail("Question not found", err)
	}
	if err != nil {
		return fail("Error confirming answer", err)
	}

	if sess.IsAwaitingFollowup(req.QuestionID) {
		_, err := o.records.AppendFollowupAnswer(ctx, req.QuestionID, sess.PendingFollowup.Question, transcript, draft.AudioURL, draft.Duration)
		if err != nil {
			return fail("Error saving answer", err)
		}
		logger.Info("Follow-up answer saved",
			zap.String("connection_id", conn.ID()),
			zap.Int64("question_id", req.QuestionID),
		)
		sess.RemoveDrafts(req.QuestionID)
		return o.advance(ctx, conn, sess)
	}

	answer := &models.Answer{
		QuestionID:           req.QuestionID,
		Transcript:           transcript,
		AudioURL:             draft.AudioURL,
		AudioDurationSeconds: draft.Duration,
	}
	if err := o.records.SaveAnswer(ctx, answer); err != nil {
		return fail("Error saving answer", err)
	}
	sess.RemoveDrafts(req.QuestionID)

	if followup, ok := o.decideFollowup(ctx, sess, question, transcript); ok {
		sess.FollowupCounts[req.QuestionID]++
		sess.PendingFollowup = &session.PendingFollowup{
			ParentQuestionID: req.QuestionID,
			Question:         followup.Question,
			Reason:           followup.Reason,
		}
		o.sessions.Update(ctx, conn.ID(), sess)

		metrics.FollowupsAsked.Inc()
		o.sendFollowup(ctx, conn, req.QuestionID, followup.Question, followup.Reason)
		return nil
	}

	return o.advance(ctx, conn, sess)
}

type followupPrompt struct {
	Question string
	Reason   string
}

// decideFollowup reports whether a follow-up should be asked. Budget
// exhaustion and generator failures both mean no.
func (o *Orchestrator) decideFollowup(ctx context.Context, sess *session.Session, q *models.Question, transcript string) (followupPrompt, bool) {
	if o.followups == nil || sess.FollowupsUsed(q.ID) >= o.cfg.MaxFollowups {
		return followupPrompt{}, false
	}

	decision, err := o.followups.DecideFollowup(ctx, q.Text, transcript, q.Context)
	if err != nil {
		logger.Warn("Follow-up decision failed, moving on",
			zap.Int64("question_id", q.ID),
			zap.Error(err),
		)
		return followupPrompt{}, false
	}

	text := strings.TrimSpace(decision.Question)
	if !decision.Needed || text == "" {
		return followupPrompt{}, false
	}
	return followupPrompt{Question: text, Reason: decision.Reason}, true
}

// sendAudio delivers synthesized speech for text. Failure only produces a
// tts_unavailable notice.
func (o *Orchestrator) sendAudio(ctx context.Context, conn Conn, questionID int64, text string, followup bool) {
	if o.synthesizer == nil {
		o.emit(conn, TTSUnavailableEvent{
			Event:      newEvent(EventTTSUnavailable),
			QuestionID: questionID,
			IsFollowup: followup,
			Message:    msgTTSUnavailable,
		})
		return
	}

	audio, err := o.synthesizer.Synthesize(ctx, text, o.cfg.Voice)
	if err != nil {
		metrics.SpeechSynthesisFailures.Inc()
		logger.Warn("Speech synthesis failed",
			zap.Int64("question_id", questionID),
			zap.Bool("followup", followup),
			zap.Error(err),
		)
		o.emit(conn, TTSUnavailableEvent{
			Event:      newEvent(EventTTSUnavailable),
			QuestionID: questionID,
			IsFollowup: followup,
			Message:    msgTTSUnavailable,
		})
		return
	}

	o.emit(conn, QuestionAudioEvent{
		Event:      newEvent(EventQuestionAudio),
		QuestionID: questionID,
		AudioData:  base64.StdEncoding.EncodeToString(audio),
		Format:     speech.AudioFormat,
		IsFollowup: followup,
	})
}
