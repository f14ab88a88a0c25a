// Package linkstore persists the mapping from short public ids to object
// handles. Records are only ever created and read.
package linkstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

var (
	ErrNotFound  = errors.New("link not found")
	ErrDuplicate = errors.New("link id already exists")
)

// Store saves and resolves public link ids.
type Store interface {
	Save(ctx context.Context, id string, h remote.Handle) error
	Get(ctx context.Context, id string) (remote.Handle, error)
	Close() error
}

// NewID returns an 11 character URL-safe id built from 8 random bytes.
func NewID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating link id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Open picks a store from the DSN scheme:
//
//	""                       in-memory, links are lost on restart
//	sqlite://<path>, file:*  SQLite
//	postgres://, postgresql:// PostgreSQL
//
// A non-zero cacheSize puts an LRU cache in front of the store.
func Open(ctx context.Context, dsn string, cacheSize int) (Store, error) {
	logger := logging.GetLogger()
	var (
		store Store
		err   error
	)
	switch {
	case dsn == "":
		logger.Warn().Msg("database-url not set, links will not be permanent")
		store = NewMemoryStore()
	case strings.HasPrefix(dsn, "sqlite://"):
		store, err = NewSQLiteStore(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "file:"):
		store, err = NewSQLiteStore(ctx, dsn)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		store, err = NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database url scheme: %q", redact(dsn))
	}
	if err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		return store, nil
	}
	cached, err := NewCachedStore(store, cacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}
	return cached, nil
}

// redact drops everything after the scheme so credentials never reach logs.
func redact(dsn string) string {
	if scheme, _, ok := strings.Cut(dsn, "://"); ok {
		return scheme + "://..."
	}
	return "..."
}
