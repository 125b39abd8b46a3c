package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/pkg/logger"
)

// SupabaseStore uploads to a Supabase Storage bucket over its REST API.
type SupabaseStore struct {
	baseURL    string
	key        string
	bucket     string
	httpClient *http.Client
}

func NewSupabaseStore(baseURL, serviceKey, bucket string) *SupabaseStore {
	return &SupabaseStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     serviceKey,
		bucket:  bucket,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (s *SupabaseStore) Close() error { return nil }

// PublicURL is the URL clients use to fetch an uploaded object.
func (s *SupabaseStore) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, objectPath)
}

func (s *SupabaseStore) Put(ctx context.Context, data []byte, pathHint, contentType string) (string, error) {
	if s.baseURL == "" || s.key == "" {
		return "", ErrUnavailable
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, pathHint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logger.Warn("Supabase upload rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("path", pathHint),
			zap.String("body", string(body)),
		)
		return "", fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}

	return s.PublicURL(pathHint), nil
}
