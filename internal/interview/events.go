package interview

import "encoding/json"

// Inbound event types.
const (
	EventStartInterview = "start_interview"
	EventSubmitAnswer   = "submit_answer"
	EventConfirmAnswer  = "confirm_answer"
	EventSkipQuestion   = "skip_question"
	EventEndInterview   = "end_interview"
)

// Outbound event types.
const (
	EventConnected          = "connected"
	EventInterviewStarted   = "interview_started"
	EventQuestion           = "question"
	EventQuestionAudio      = "question_audio"
	EventTTSUnavailable     = "tts_unavailable"
	EventTranscribing       = "transcribing"
	EventTranscriptReady    = "transcript_ready"
	EventFollowupQuestion   = "followup_question"
	EventInterviewCompleted = "interview_completed"
	EventError              = "error"
)

// Envelope is one client message: {"type": "...", "data": {...}}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type StartInterviewRequest struct {
	InterviewID int64  `json:"interview_id"`
	UserID      string `json:"user_id"`
}

type SubmitAnswerRequest struct {
	QuestionID int64  `json:"question_id"`
	AudioData  string `json:"audio_data"`
	Format     string `json:"format"`
}

type ConfirmAnswerRequest struct {
	QuestionID int64   `json:"question_id"`
	Transcript *string `json:"transcript"`
}

type SkipQuestionRequest struct {
	QuestionID int64 `json:"question_id"`
}

type Event struct {
	Type string `json:"type"`
}

func newEvent(t string) Event {
	return Event{Type: t}
}

type ConnectedEvent struct {
	Event
	SID string `json:"sid"`
}

type InterviewStartedEvent struct {
	Event
	InterviewID          int64 `json:"interview_id"`
	TotalQuestions       int   `json:"total_questions"`
	CurrentQuestionIndex int   `json:"current_question_index"`
	Resumed              bool  `json:"resumed,omitempty"`
}

type QuestionEvent struct {
	Event
	QuestionID     int64          `json:"question_id"`
	QuestionText   string         `json:"question_text"`
	QuestionNumber int            `json:"question_number"`
	TotalQuestions int            `json:"total_questions"`
	Context        map[string]any `json:"context"`
}

type QuestionAudioEvent struct {
	Event
	QuestionID int64  `json:"question_id"`
	AudioData  string `json:"audio_data"`
	Format     string `json:"format"`
	IsFollowup bool   `json:"is_followup"`
}

type TTSUnavailableEvent struct {
	Event
	QuestionID int64  `json:"question_id"`
	IsFollowup bool   `json:"is_followup"`
	Message    string `json:"message"`
}

type TranscribingEvent struct {
	Event
	Message string `json:"message"`
}

type TranscriptReadyEvent struct {
	Event
	QuestionID int64    `json:"question_id"`
	Transcript string   `json:"transcript"`
	Duration   *float64 `json:"duration"`
}

type FollowupQuestionEvent struct {
	Event
	QuestionID   int64  `json:"question_id"`
	FollowupText string `json:"followup_text"`
	Reason       string `json:"reason"`
	IsFollowup   bool   `json:"is_followup"`
}

type InterviewCompletedEvent struct {
	Event
	InterviewID int64  `json:"interview_id"`
	Message     string `json:"message"`
}

type ErrorEvent struct {
	Event
	Message string `json:"message"`
}
