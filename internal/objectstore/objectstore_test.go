package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanviriss/MockMate/pkg/config"
)

func TestAudioPath(t *testing.T) {
	p := AudioPath(12, 34, "MP3")
	assert.True(t, strings.HasPrefix(p, "interviews/12/questions/34/"), p)
	assert.True(t, strings.HasSuffix(p, ".mp3"), p)

	assert.True(t, strings.HasSuffix(AudioPath(1, 2, ""), ".webm"))
	assert.NotEqual(t, AudioPath(1, 2, "webm"), AudioPath(1, 2, "webm"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/webm", ContentType("webm"))
	assert.Equal(t, "audio/mpeg", ContentType("mp3"))
	assert.Equal(t, "application/octet-stream", ContentType("flac"))
}

func TestLocalStore_PutGet(t *testing.T) {
	store, err := NewLocalStore("")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	url, err := store.Put(ctx, []byte("audio-bytes"), "interviews/1/questions/2/a.webm", "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "badger://interviews/1/questions/2/a.webm", url)

	data, ct, err := store.Get(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio-bytes"), data)
	assert.Equal(t, "audio/webm", ct)

	_, _, err = store.Get(ctx, "badger://missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	url, err := store.Put(ctx, []byte("persisted"), "k.mp3", "audio/mpeg")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewLocalStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	data, _, err := reopened.Get(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), data)
}

func TestSupabaseStore_Put(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/storage/v1/object/interview-audio/interviews/1/questions/2/a.webm", r.URL.Path)
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "audio/webm", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body))
		_, _ = w.Write([]byte(`{"Key":"interview-audio/interviews/1/questions/2/a.webm"}`))
	}))
	defer server.Close()

	store := NewSupabaseStore(server.URL+"/", "service-key", "interview-audio")
	url, err := store.Put(context.Background(), []byte("payload"), "interviews/1/questions/2/a.webm", "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/storage/v1/object/public/interview-audio/interviews/1/questions/2/a.webm", url)
}

func TestSupabaseStore_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
	}))
	defer server.Close()

	store := NewSupabaseStore(server.URL, "bad", "interview-audio")
	_, err := store.Put(context.Background(), []byte("x"), "a.webm", "audio/webm")
	assert.Error(t, err)

	_, err = NewSupabaseStore("", "", "b").Put(context.Background(), []byte("x"), "a.webm", "audio/webm")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNew(t *testing.T) {
	s, err := New(config.StorageConfig{Driver: "none"})
	require.NoError(t, err)
	_, err = s.Put(context.Background(), []byte("x"), "p", "audio/webm")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = New(config.StorageConfig{Driver: "s3"})
	assert.Error(t, err)

	s, err = New(config.StorageConfig{Driver: "supabase", SupabaseURL: "http://x", SupabaseKey: "k", SupabaseBucket: "b"})
	require.NoError(t, err)
	assert.IsType(t, &SupabaseStore{}, s)
}
