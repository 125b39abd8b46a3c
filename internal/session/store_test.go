package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanviriss/MockMate/internal/cache/redis"
)

func newRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(redis.NewClientFromRedis(rdb), DefaultTTL), mr
}

func TestStore_CreateAndGet(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	created := store.Create(ctx, "conn-1", 42, "user-1")
	assert.Equal(t, 0, created.CurrentQuestionIndex)
	assert.Equal(t, StatusActive, created.Status)

	got, ok := store.Get(ctx, "conn-1")
	require.True(t, ok)
	assert.Equal(t, int64(42), got.InterviewID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Empty(t, got.Answers)
	assert.Nil(t, got.PendingFollowup)

	assert.True(t, mr.Exists("interview_session:conn-1"))
	assert.Equal(t, 2*time.Hour, mr.TTL("interview_session:conn-1"))
	assert.Zero(t, store.FallbackSize())
}

func TestStore_TTLExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	store.Create(ctx, "conn-1", 1, "user-1")
	mr.FastForward(2*time.Hour + time.Second)

	_, ok := store.Get(ctx, "conn-1")
	assert.False(t, ok)
}

func TestStore_UpdateRefreshesTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	sess := store.Create(ctx, "conn-1", 1, "user-1")
	mr.FastForward(time.Hour)

	sess.CurrentQuestionIndex = 2
	store.Update(ctx, "conn-1", sess)
	assert.Equal(t, 2*time.Hour, mr.TTL("interview_session:conn-1"))

	got, ok := store.Get(ctx, "conn-1")
	require.True(t, ok)
	assert.Equal(t, 2, got.CurrentQuestionIndex)
}

func TestStore_Delete(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	store.Create(ctx, "conn-1", 1, "user-1")
	store.Delete(ctx, "conn-1")

	_, ok := store.Get(ctx, "conn-1")
	assert.False(t, ok)
}

func TestStore_AddAnswerDraftAndMarkCompleted(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	assert.False(t, store.AddAnswerDraft(ctx, "missing", AnswerDraft{QuestionID: 1}))
	assert.False(t, store.MarkCompleted(ctx, "missing"))

	store.Create(ctx, "conn-1", 1, "user-1")
	require.True(t, store.AddAnswerDraft(ctx, "conn-1", AnswerDraft{QuestionID: 7, Transcript: "first"}))
	require.True(t, store.AddAnswerDraft(ctx, "conn-1", AnswerDraft{QuestionID: 7, Transcript: "second"}))
	require.True(t, store.MarkCompleted(ctx, "conn-1"))

	got, ok := store.Get(ctx, "conn-1")
	require.True(t, ok)
	require.Len(t, got.Answers, 2)
	assert.False(t, got.Answers[0].SubmittedAt.IsZero())
	assert.Equal(t, StatusCompleted, got.Status)

	latest, ok := got.LatestDraft(7)
	require.True(t, ok)
	assert.Equal(t, "second", latest.Transcript)

	got.RemoveDrafts(7)
	assert.Empty(t, got.Answers)
}

func TestStore_FallsBackWhenPrimaryFails(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	mr.SetError("connection refused")

	sess := store.Create(ctx, "conn-1", 9, "user-1")
	assert.Equal(t, 1, store.FallbackSize())

	got, ok := store.Get(ctx, "conn-1")
	require.True(t, ok)
	assert.Equal(t, int64(9), got.InterviewID)

	sess.CurrentQuestionIndex = 1
	store.Update(ctx, "conn-1", sess)
	got, ok = store.Get(ctx, "conn-1")
	require.True(t, ok)
	assert.Equal(t, 1, got.CurrentQuestionIndex)

	// Fallback copies are still found after the primary recovers.
	mr.SetError("")
	got, ok = store.Get(ctx, "conn-1")
	require.True(t, ok)
	assert.Equal(t, 1, got.CurrentQuestionIndex)

	// A successful primary write supersedes the fallback copy.
	store.Update(ctx, "conn-1", got)
	assert.Zero(t, store.FallbackSize())

	store.Delete(ctx, "conn-1")
	_, ok = store.Get(ctx, "conn-1")
	assert.False(t, ok)
}

func TestStore_NewerFallbackWinsAfterRecovery(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	sess := store.Create(ctx, "conn-1", 4, "user-1")

	mr.SetError("connection refused")
	sess.CurrentQuestionIndex = 2
	sess.FollowupCounts = map[int64]int{11: 1}
	sess.Status = StatusCompleted
	store.Update(ctx, "conn-1", sess)
	require.Equal(t, 1, store.FallbackSize())

	mr.SetError("")
	got, ok := store.Get(ctx, "conn-1")
	require.True(t, ok)
	assert.Equal(t, 2, got.CurrentQuestionIndex)
	assert.Equal(t, 1, got.FollowupsUsed(11))
	assert.Equal(t, StatusCompleted, got.Status)

	// The newer copy was written back, so redis alone now serves it.
	assert.Zero(t, store.FallbackSize())
	raw, err := mr.Get("interview_session:conn-1")
	require.NoError(t, err)
	stored, err := decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CurrentQuestionIndex)
}

func TestStore_DeleteDuringOutageStaysDeleted(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	store.Create(ctx, "conn-1", 4, "user-1")

	mr.SetError("connection refused")
	store.Delete(ctx, "conn-1")
	_, ok := store.Get(ctx, "conn-1")
	assert.False(t, ok)

	mr.SetError("")
	_, ok = store.Get(ctx, "conn-1")
	assert.False(t, ok)
	assert.False(t, mr.Exists("interview_session:conn-1"))
	assert.Zero(t, store.FallbackSize())
}

func TestStore_UpdateAfterDeleteTombstone(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	mr.SetError("connection refused")
	store.Create(ctx, "conn-1", 4, "user-1")
	store.Delete(ctx, "conn-1")
	store.Create(ctx, "conn-1", 5, "user-1")

	mr.SetError("")
	got, ok := store.Get(ctx, "conn-1")
	require.True(t, ok)
	assert.Equal(t, int64(5), got.InterviewID)
}

func TestStore_NilPrimaryUsesMemory(t *testing.T) {
	store := NewStore(nil, time.Minute)
	ctx := context.Background()

	store.Create(ctx, "conn-1", 3, "user-1")
	got, ok := store.Get(ctx, "conn-1")
	require.True(t, ok)
	assert.Equal(t, int64(3), got.InterviewID)
}

func TestStore_SweepFallback(t *testing.T) {
	store := NewStore(nil, time.Hour)
	ctx := context.Background()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	store.Create(ctx, "old", 1, "user-1")

	now = now.Add(50 * time.Minute)
	store.Create(ctx, "new", 2, "user-1")

	now = now.Add(20 * time.Minute)
	sweeper := NewSweeper(store, "@every 10m")
	assert.Equal(t, 1, sweeper.RunOnce())

	_, ok := store.Get(ctx, "old")
	assert.False(t, ok)
	_, ok = store.Get(ctx, "new")
	assert.True(t, ok)
}

func TestSweeper_RejectsBadSchedule(t *testing.T) {
	sweeper := NewSweeper(NewStore(nil, time.Hour), "not a schedule")
	assert.Error(t, sweeper.Start())
}

func TestDecode_MigratesVersionOne(t *testing.T) {
	v1 := `{
		"interview_id": 5,
		"user_id": "user-1",
		"current_question_index": 2,
		"start_time": "2025-01-01T10:00:00Z",
		"answers": null
	}`

	sess, err := decode([]byte(v1))
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, sess.Version)
	assert.Equal(t, 2, sess.CurrentQuestionIndex)
	assert.Equal(t, StatusActive, sess.Status)
	assert.NotNil(t, sess.Answers)
	assert.NotNil(t, sess.FollowupCounts)
	assert.Nil(t, sess.PendingFollowup)
}

func TestDecode_RejectsFutureVersion(t *testing.T) {
	_, err := decode([]byte(`{"version": 99, "interview_id": 1}`))
	assert.Error(t, err)
}

func TestStore_UnreadableSessionIsAbsent(t *testing.T) {
	store, mr := newRedisStore(t)

	require.NoError(t, mr.Set("interview_session:conn-1", `{"version": 99}`))
	_, ok := store.Get(context.Background(), "conn-1")
	assert.False(t, ok)
}

func TestSession_RoundTripKeepsFollowupState(t *testing.T) {
	sess := New(1, "user-1")
	sess.FollowupCounts[11] = 1
	sess.PendingFollowup = &PendingFollowup{ParentQuestionID: 11, Question: "Why?", Reason: "vague"}

	data, err := encode(sess)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, CurrentVersion, raw["version"])

	got, err := decode(data)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FollowupsUsed(11))
	assert.True(t, got.IsAwaitingFollowup(11))
	assert.False(t, got.IsAwaitingFollowup(12))
}
