package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/tanviriss/MockMate/pkg/config"
)

var (
	ErrNotFound    = errors.New("object not found")
	ErrUnavailable = errors.New("object storage not configured")
)

// Store persists binary objects and returns a URL that can be stored on a
// record.
type Store interface {
	Put(ctx context.Context, data []byte, pathHint, contentType string) (string, error)
	Close() error
}

// AudioPath builds the object key for one recorded answer.
func AudioPath(interviewID, questionID int64, format string) string {
	format = strings.TrimPrefix(strings.ToLower(format), ".")
	if format == "" {
		format = "webm"
	}
	return path.Join(
		"interviews", fmt.Sprint(interviewID),
		"questions", fmt.Sprint(questionID),
		uuid.NewString()+"."+format,
	)
}

// ContentType returns the MIME type for an audio format tag.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "mp3", "mpeg":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	case "m4a", "mp4":
		return "audio/mp4"
	case "webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}

// New opens the driver selected by cfg.Driver.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "local", "":
		return NewLocalStore(cfg.LocalPath)
	case "supabase":
		return NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket), nil
	case "none":
		return NoopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// NoopStore rejects every upload. Answers are still saved without an audio
// URL.
type NoopStore struct{}

func (NoopStore) Put(context.Context, []byte, string, string) (string, error) {
	return "", ErrUnavailable
}

func (NoopStore) Close() error { return nil }
