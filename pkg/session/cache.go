// Package session caches the per-connection, per-location sessions used to
// read object bytes.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/metrics"
	"github.com/zero5yt/StreamixBot2.0/pkg/pool"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

type key struct {
	connID int
	loc    remote.LocationID
}

func (k key) String() string {
	return fmt.Sprintf("%d/%s", k.connID, k.loc)
}

// Cache holds at most one live session per (connection, location) pair.
// Entries are never evicted.
type Cache struct {
	mu       sync.RWMutex
	sessions map[key]remote.Session
	group    singleflight.Group
}

func NewCache() *Cache {
	return &Cache{sessions: make(map[key]remote.Session)}
}

// Get returns the session for conn at loc, opening one with the connection's
// own credentials if none exists. Concurrent callers for the same key share
// a single handshake; each caller stops waiting when its own ctx is done.
func (c *Cache) Get(ctx context.Context, conn *pool.Conn, loc remote.LocationID) (remote.Session, error) {
	k := key{connID: conn.ID, loc: loc}
	c.mu.RLock()
	s, ok := c.sessions[k]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	// the handshake outlives any single request that triggered it
	openCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k.String(), func() (any, error) {
		// we need to check again in case another flight finished between
		// our read above and this call
		c.mu.RLock()
		s, ok := c.sessions[k]
		c.mu.RUnlock()
		if ok {
			return s, nil
		}

		logger := logging.ForConn(conn.ID, conn.Name)
		logger.Debug().Str("location", string(loc)).Msg("opening session")
		s, err := conn.Client.OpenSession(openCtx, loc)
		if err != nil {
			return nil, fmt.Errorf("opening session to %s on connection %d: %w", loc, conn.ID, err)
		}
		c.mu.Lock()
		c.sessions[k] = s
		c.mu.Unlock()
		metrics.RecordSessionCreated(conn.ID)
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(remote.Session), nil
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Close closes every cached session that holds resources.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for k, s := range c.sessions {
		if closer, ok := s.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing session %s: %w", k, err))
			}
		}
		delete(c.sessions, k)
	}
	return errors.Join(errs...)
}
