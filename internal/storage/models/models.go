package models

import (
	"encoding/json"
	"time"
)

type InterviewType string

const (
	InterviewStandard        InterviewType = "standard"
	InterviewResumeOnly      InterviewType = "resume_only"
	InterviewCompanyTargeted InterviewType = "company_targeted"
)

type InterviewStatus string

const (
	StatusPending    InterviewStatus = "pending"
	StatusInProgress InterviewStatus = "in_progress"
	StatusCompleted  InterviewStatus = "completed"
)

// Rank orders statuses so transitions can be checked for monotonicity.
func (s InterviewStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

type Resume struct {
	ID         int64
	UserID     string
	FileURL    string
	ParsedData map[string]any
	CreatedAt  time.Time
}

type Interview struct {
	ID             int64
	UserID         string
	ResumeID       int64
	Type           InterviewType
	JobDescription *string
	JDAnalysis     map[string]any
	Status         InterviewStatus
	// OverallScore stays nil until background evaluation has run.
	OverallScore *float64
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

type Question struct {
	ID          int64
	InterviewID int64
	Text        string
	Context     map[string]any
	OrderIndex  int
}

type Answer struct {
	ID                   int64
	QuestionID           int64
	AudioURL             string
	FollowupAudioURL     string
	Transcript           string
	AudioDurationSeconds *float64
	Evaluation           json.RawMessage
	Score                *float64
	AnsweredAt           time.Time
}

// AnswerScore is one evaluated answer written by SaveEvaluation.
type AnswerScore struct {
	AnswerID   int64
	Evaluation json.RawMessage
	Score      float64
}
