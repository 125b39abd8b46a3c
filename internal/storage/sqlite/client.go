package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/storage/models"
	"github.com/tanviriss/MockMate/pkg/logger"
)

var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resumes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		file_url TEXT,
		parsed_data TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_resumes_user ON resumes(user_id);

	CREATE TABLE IF NOT EXISTS interviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		resume_id INTEGER NOT NULL,
		interview_type TEXT NOT NULL DEFAULT 'standard',
		job_description TEXT,
		jd_analysis TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		overall_score REAL,
		created_at INTEGER NOT NULL,
		completed_at INTEGER,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (resume_id) REFERENCES resumes(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_interviews_user ON interviews(user_id);
	CREATE INDEX IF NOT EXISTS idx_interviews_status ON interviews(status);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interview_id INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		question_context TEXT,
		order_index INTEGER NOT NULL,
		FOREIGN KEY (interview_id) REFERENCES interviews(id) ON DELETE CASCADE,
		UNIQUE (interview_id, order_index)
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL UNIQUE,
		audio_url TEXT,
		followup_audio_url TEXT,
		transcript TEXT NOT NULL,
		audio_duration_seconds REAL,
		evaluation TEXT,
		score REAL,
		answered_at INTEGER NOT NULL,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Databases created before follow-up recordings were kept lack the column.
	has, err := c.hasColumn(ctx, "answers", "followup_audio_url")
	if err != nil {
		return fmt.Errorf("failed to inspect answers table: %w", err)
	}
	if !has {
		if _, err := c.db.ExecContext(ctx, `ALTER TABLE answers ADD COLUMN followup_audio_url TEXT`); err != nil {
			return fmt.Errorf("failed to add followup_audio_url: %w", err)
		}
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (c *Client) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email`

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	if _, err := c.db.ExecContext(ctx, query, user.ID, user.Email, user.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (c *Client) CreateResume(ctx context.Context, resume *models.Resume) error {
	parsed, err := marshalJSON(resume.ParsedData)
	if err != nil {
		return fmt.Errorf("failed to encode parsed resume: %w", err)
	}
	if resume.CreatedAt.IsZero() {
		resume.CreatedAt = time.Now()
	}

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO resumes (user_id, file_url, parsed_data, created_at) VALUES (?, ?, ?, ?)`,
		resume.UserID, resume.FileURL, parsed, resume.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create resume: %w", err)
	}

	resume.ID, err = res.LastInsertId()
	return err
}

func (c *Client) GetResume(ctx context.Context, id int64) (*models.Resume, error) {
	var (
		r         models.Resume
		fileURL   sql.NullString
		parsed    sql.NullString
		createdAt int64
	)

	err := c.db.QueryRowContext(ctx,
		`SELECT id, user_id, file_url, parsed_data, created_at FROM resumes WHERE id = ?`, id,
	).Scan(&r.ID, &r.UserID, &fileURL, &parsed, &createdAt)
	if err != nil {
		return nil, notFound(err, "failed to get resume")
	}

	r.FileURL = fileURL.String
	r.CreatedAt = time.Unix(createdAt, 0)
	if err := unmarshalJSON(parsed, &r.ParsedData); err != nil {
		return nil, fmt.Errorf("failed to decode parsed resume %d: %w", id, err)
	}

	return &r, nil
}

func (c *Client) CreateInterview(ctx context.Context, interview *models.Interview) error {
	analysis, err := marshalJSON(interview.JDAnalysis)
	if err != nil {
		return fmt.Errorf("failed to encode job description analysis: %w", err)
	}
	if interview.Type == "" {
		interview.Type = models.InterviewStandard
	}
	if interview.Status == "" {
		interview.Status = models.StatusPending
	}
	if interview.CreatedAt.IsZero() {
		interview.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO interviews (user_id, resume_id, interview_type, job_description, jd_analysis, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	res, err := c.db.ExecContext(ctx, query,
		interview.UserID,
		interview.ResumeID,
		string(interview.Type),
		interview.JobDescription,
		analysis,
		string(interview.Status),
		interview.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create interview: %w", err)
	}

	interview.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}

	logger.Debug("Interview created",
		zap.Int64("interview_id", interview.ID),
		zap.String("user_id", interview.UserID),
	)
	return nil
}

func (c *Client) GetInterview(ctx context.Context, id int64) (*models.Interview, error) {
	query := `
		SELECT id, user_id, resume_id, interview_type, job_description, jd_analysis, status,
			overall_score, created_at, completed_at
		FROM interviews WHERE id = ?
	`

	var (
		iv          models.Interview
		ivType      string
		status      string
		jobDesc     sql.NullString
		analysis    sql.NullString
		score       sql.NullFloat64
		createdAt   int64
		completedAt sql.NullInt64
	)

	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&iv.ID,
		&iv.UserID,
		&iv.ResumeID,
		&ivType,
		&jobDesc,
		&analysis,
		&status,
		&score,
		&createdAt,
		&completedAt,
	)
	if err != nil {
		return nil, notFound(err, "failed to get interview")
	}

	iv.Type = models.InterviewType(ivType)
	iv.Status = models.InterviewStatus(status)
	iv.CreatedAt = time.Unix(createdAt, 0)
	if jobDesc.Valid {
		iv.JobDescription = &jobDesc.String
	}
	if score.Valid {
		iv.OverallScore = &score.Float64
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		iv.CompletedAt = &t
	}
	if err := unmarshalJSON(analysis, &iv.JDAnalysis); err != nil {
		return nil, fmt.Errorf("failed to decode job description analysis: %w", err)
	}

	return &iv, nil
}

// UpdateInterviewStatus moves the interview forward to status. Transitions
// that would go backward or stay put are ignored; the returned bool reports
// whether the row changed.
func (c *Client) UpdateInterviewStatus(ctx context.Context, id int64, status models.InterviewStatus) (bool, error) {
	if status.Rank() < 0 {
		return false, fmt.Errorf("unknown interview status %q", status)
	}

	var completedAt any
	if status == models.StatusCompleted {
		completedAt = time.Now().Unix()
	}

	query := `
		UPDATE interviews
		SET status = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ?
			AND (CASE status WHEN 'pending' THEN 0 WHEN 'in_progress' THEN 1 WHEN 'completed' THEN 2 ELSE -1 END) < ?
	`

	res, err := c.db.ExecContext(ctx, query, string(status), completedAt, id, status.Rank())
	if err != nil {
		return false, fmt.Errorf("failed to update interview status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if n == 0 {
		if _, err := c.GetInterview(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}

	logger.Info("Interview status updated",
		zap.Int64("interview_id", id),
		zap.String("status", string(status)),
	)
	return true, nil
}

func (c *Client) DeleteInterview(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM interviews WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete interview: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateQuestions inserts questions in slice order with order indexes
// 0..n-1. It must be called once per interview.
func (c *Client) CreateQuestions(ctx context.Context, interviewID int64, questions []*models.Question) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO questions (interview_id, question_text, question_context, order_index) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare question insert: %w", err)
	}
	defer stmt.Close()

	for i, q := range questions {
		qctx, err := marshalJSON(q.Context)
		if err != nil {
			return fmt.Errorf("failed to encode question context: %w", err)
		}

		res, err := stmt.ExecContext(ctx, interviewID, q.Text, qctx, i)
		if err != nil {
			return fmt.Errorf("failed to insert question %d: %w", i, err)
		}

		q.ID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		q.InterviewID = interviewID
		q.OrderIndex = i
	}

	return tx.Commit()
}

const questionColumns = `id, interview_id, question_text, question_context, order_index`

func (c *Client) ListQuestions(ctx context.Context, interviewID int64) ([]models.Question, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE interview_id = ? ORDER BY order_index`, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}

	return questions, rows.Err()
}

func (c *Client) GetQuestion(ctx context.Context, id int64) (*models.Question, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if err != nil {
		return nil, notFound(err, "failed to get question")
	}
	return q, nil
}

func (c *Client) GetQuestionByIndex(ctx context.Context, interviewID int64, index int) (*models.Question, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE interview_id = ? AND order_index = ?`, interviewID, index)
	q, err := scanQuestion(row)
	if err != nil {
		return nil, notFound(err, "failed to get question by index")
	}
	return q, nil
}

func (c *Client) CountQuestions(ctx context.Context, interviewID int64) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE interview_id = ?`, interviewID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(s scanner) (*models.Question, error) {
	var (
		q    models.Question
		qctx sql.NullString
	)
	if err := s.Scan(&q.ID, &q.InterviewID, &q.Text, &qctx, &q.OrderIndex); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(qctx, &q.Context); err != nil {
		return nil, fmt.Errorf("failed to decode question context: %w", err)
	}
	return &q, nil
}

// SaveAnswer records the first confirmed answer to a question. A second
// call for the same question overwrites the transcript instead of adding a
// row.
func (c *Client) SaveAnswer(ctx context.Context, answer *models.Answer) error {
	if answer.AnsweredAt.IsZero() {
		answer.AnsweredAt = time.Now()
	}

	query := `
		INSERT INTO answers (question_id, audio_url, transcript, audio_duration_seconds, answered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(question_id) DO UPDATE SET
			audio_url = excluded.audio_url,
			transcript = excluded.transcript,
			audio_duration_seconds = excluded.audio_duration_seconds,
			answered_at = excluded.answered_at
		RETURNING id
	`

	err := c.db.QueryRowContext(ctx, query,
		answer.QuestionID,
		nullString(answer.AudioURL),
		answer.Transcript,
		answer.AudioDurationSeconds,
		answer.AnsweredAt.Unix(),
	).Scan(&answer.ID)
	if err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}

	logger.Debug("Answer saved",
		zap.Int64("answer_id", answer.ID),
		zap.Int64("question_id", answer.QuestionID),
	)
	return nil
}

// AppendFollowupAnswer adds a follow-up exchange to the answer of
// questionID, or creates the answer when none exists yet. The follow-up
// recording is kept in its own column next to the first one.
func (c *Client) AppendFollowupAnswer(ctx context.Context, questionID int64, followupQuestion, transcript, audioURL string, duration *float64) (*models.Answer, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	block := fmt.Sprintf("\n\n[Follow-up: %s]\n%s", followupQuestion, transcript)

	res, err := tx.ExecContext(ctx, `
		UPDATE answers
		SET transcript = transcript || ?,
			followup_audio_url = COALESCE(?, followup_audio_url),
			audio_duration_seconds = CASE
				WHEN ? IS NULL THEN audio_duration_seconds
				ELSE COALESCE(audio_duration_seconds, 0) + ?
			END
		WHERE question_id = ?
	`, block, nullString(audioURL), duration, duration, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to append follow-up answer: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if n == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO answers (question_id, followup_audio_url, transcript, audio_duration_seconds, answered_at) VALUES (?, ?, ?, ?, ?)`,
			questionID, nullString(audioURL), transcript, duration, time.Now().Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert follow-up answer: %w", err)
		}
	}

	answer, err := getAnswerByQuestion(ctx, tx, questionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit follow-up answer: %w", err)
	}

	return answer, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const answerColumns = `id, question_id, audio_url, followup_audio_url, transcript, audio_duration_seconds, evaluation, score, answered_at`

func (c *Client) GetAnswerByQuestion(ctx context.Context, questionID int64) (*models.Answer, error) {
	return getAnswerByQuestion(ctx, c.db, questionID)
}

func getAnswerByQuestion(ctx context.Context, q queryRower, questionID int64) (*models.Answer, error) {
	row := q.QueryRowContext(ctx, `SELECT `+answerColumns+` FROM answers WHERE question_id = ?`, questionID)
	a, err := scanAnswer(row)
	if err != nil {
		return nil, notFound(err, "failed to get answer")
	}
	return a, nil
}

// ListAnswers returns the answers of an interview in question order.
func (c *Client) ListAnswers(ctx context.Context, interviewID int64) ([]models.Answer, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT a.id, a.question_id, a.audio_url, a.followup_audio_url, a.transcript, a.audio_duration_seconds, a.evaluation, a.score, a.answered_at
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE q.interview_id = ?
		ORDER BY q.order_index
	`, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		answers = append(answers, *a)
	}

	return answers, rows.Err()
}

func scanAnswer(s scanner) (*models.Answer, error) {
	var (
		a          models.Answer
		audioURL   sql.NullString
		followup   sql.NullString
		duration   sql.NullFloat64
		evaluation sql.NullString
		score      sql.NullFloat64
		answeredAt int64
	)

	err := s.Scan(&a.ID, &a.QuestionID, &audioURL, &followup, &a.Transcript, &duration, &evaluation, &score, &answeredAt)
	if err != nil {
		return nil, err
	}

	a.AudioURL = audioURL.String
	a.FollowupAudioURL = followup.String
	a.AnsweredAt = time.Unix(answeredAt, 0)
	if duration.Valid {
		a.AudioDurationSeconds = &duration.Float64
	}
	if evaluation.Valid {
		a.Evaluation = json.RawMessage(evaluation.String)
	}
	if score.Valid {
		a.Score = &score.Float64
	}

	return &a, nil
}

// SaveEvaluation writes every answer evaluation and the interview aggregate
// in one transaction.
func (c *Client) SaveEvaluation(ctx context.Context, interviewID int64, scores []models.AnswerScore, overall float64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, s := range scores {
		res, err := tx.ExecContext(ctx,
			`UPDATE answers SET evaluation = ?, score = ? WHERE id = ?`,
			string(s.Evaluation), s.Score, s.AnswerID,
		)
		if err != nil {
			return fmt.Errorf("failed to save evaluation for answer %d: %w", s.AnswerID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("answer %d: %w", s.AnswerID, ErrNotFound)
		}
	}

	res, err := tx.ExecContext(ctx, `UPDATE interviews SET overall_score = ? WHERE id = ?`, overall, interviewID)
	if err != nil {
		return fmt.Errorf("failed to save overall score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("interview %d: %w", interviewID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit evaluation: %w", err)
	}

	logger.Info("Interview evaluation saved",
		zap.Int64("interview_id", interviewID),
		zap.Int("answers", len(scores)),
		zap.Float64("overall_score", overall),
	)
	return nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalJSON(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalJSON(s sql.NullString, dst *map[string]any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}
