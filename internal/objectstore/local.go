package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/pkg/logger"
)

const (
	localScheme    = "badger://"
	dataPrefix     = "obj:"
	metadataPrefix = "ct:"
)

// LocalStore keeps objects in an embedded badger database. Used in
// development and when no bucket is configured.
type LocalStore struct {
	db *badger.DB
}

// NewLocalStore opens (or creates) the database at dir. An empty dir keeps
// everything in memory.
func NewLocalStore(dir string) (*LocalStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	logger.Info("Local object store opened", zap.String("path", dir), zap.Bool("in_memory", dir == ""))
	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

func (s *LocalStore) Put(ctx context.Context, data []byte, pathHint, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if pathHint == "" {
		return "", fmt.Errorf("put: empty object path")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataPrefix+pathHint), data); err != nil {
			return err
		}
		return txn.Set([]byte(metadataPrefix+pathHint), []byte(contentType))
	})
	if err != nil {
		return "", fmt.Errorf("failed to store object: %w", err)
	}

	return localScheme + pathHint, nil
}

// Get reads back an object by the URL Put returned or by its bare path.
func (s *LocalStore) Get(ctx context.Context, url string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	key := strings.TrimPrefix(url, localScheme)

	var data []byte
	var contentType string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dataPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get([]byte(metadataPrefix + key))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err == nil {
			return item.Value(func(val []byte) error {
				contentType = string(val)
				return nil
			})
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object: %w", err)
	}

	return data, contentType, nil
}
