package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// CurrentVersion is written into every stored session. Bump it when the
// stored shape changes and teach decode how to default the new fields.
const CurrentVersion = 2

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// AnswerDraft is a transcribed answer waiting for the candidate to confirm it.
type AnswerDraft struct {
	QuestionID  int64     `json:"question_id"`
	Transcript  string    `json:"transcript"`
	AudioURL    string    `json:"audio_url,omitempty"`
	Format      string    `json:"format"`
	Duration    *float64  `json:"duration,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type PendingFollowup struct {
	ParentQuestionID int64  `json:"parent_question_id"`
	Question         string `json:"followup_question"`
	Reason           string `json:"reason,omitempty"`
}

type Session struct {
	Version              int              `json:"version"`
	InterviewID          int64            `json:"interview_id"`
	UserID               string           `json:"user_id"`
	CurrentQuestionIndex int              `json:"current_question_index"`
	CurrentQuestionID    int64            `json:"current_question_id,omitempty"`
	StartTime            time.Time        `json:"start_time"`
	Status               Status           `json:"status"`
	Answers              []AnswerDraft    `json:"answers"`
	PendingFollowup      *PendingFollowup `json:"pending_followup,omitempty"`
	FollowupCounts       map[int64]int    `json:"followup_counts"`
}

func New(interviewID int64, userID string) *Session {
	return &Session{
		Version:        CurrentVersion,
		InterviewID:    interviewID,
		UserID:         userID,
		StartTime:      time.Now().UTC(),
		Status:         StatusActive,
		Answers:        []AnswerDraft{},
		FollowupCounts: map[int64]int{},
	}
}

// LatestDraft returns the most recent draft for questionID.
func (s *Session) LatestDraft(questionID int64) (AnswerDraft, bool) {
	for i := len(s.Answers) - 1; i >= 0; i-- {
		if s.Answers[i].QuestionID == questionID {
			return s.Answers[i], true
		}
	}
	return AnswerDraft{}, false
}

// RemoveDrafts drops every draft for questionID.
func (s *Session) RemoveDrafts(questionID int64) {
	kept := s.Answers[:0]
	for _, d := range s.Answers {
		if d.QuestionID != questionID {
			kept = append(kept, d)
		}
	}
	s.Answers = kept
}

func (s *Session) FollowupsUsed(questionID int64) int {
	return s.FollowupCounts[questionID]
}

// IsAwaitingFollowup reports whether questionID has an unanswered follow-up.
func (s *Session) IsAwaitingFollowup(questionID int64) bool {
	return s.PendingFollowup != nil && s.PendingFollowup.ParentQuestionID == questionID
}

func encode(s *Session) ([]byte, error) {
	s.Version = CurrentVersion
	return json.Marshal(s)
}

type versionProbe struct {
	Version *int `json:"version"`
}

// decode parses a stored session. Records without a version field are the
// first stored shape and are upgraded with defaults.
func decode(data []byte) (*Session, error) {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to read session version: %w", err)
	}

	version := 1
	if probe.Version != nil {
		version = *probe.Version
	}
	if version < 1 || version > CurrentVersion {
		return nil, fmt.Errorf("unsupported session version %d", version)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	if version == 1 {
		migrateV1(&s)
	}
	s.Version = CurrentVersion

	return &s, nil
}

func migrateV1(s *Session) {
	if s.Status == "" {
		s.Status = StatusActive
	}
	if s.Answers == nil {
		s.Answers = []AnswerDraft{}
	}
	if s.FollowupCounts == nil {
		s.FollowupCounts = map[int64]int{}
	}
}
