// Package stream turns a chunk plan into an ordered, lazily fetched sequence
// of byte slices.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zero5yt/StreamixBot2.0/pkg/chunk"
	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/metrics"
	"github.com/zero5yt/StreamixBot2.0/pkg/pool"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
	"github.com/zero5yt/StreamixBot2.0/pkg/session"
)

// SessionSource hands out sessions for a connection and location.
type SessionSource interface {
	Get(ctx context.Context, conn *pool.Conn, loc remote.LocationID) (remote.Session, error)
}

var _ SessionSource = &session.Cache{}

type Streamer struct {
	sessions SessionSource
}

func New(sessions SessionSource) *Streamer {
	return &Streamer{sessions: sessions}
}

// Open starts a stream of ref over conn following plan. The connection is
// marked busy until the stream ends or is closed; callers must Close it.
func (s *Streamer) Open(ctx context.Context, conn *pool.Conn, ref remote.MediaRef, plan chunk.Plan) (*Stream, error) {
	return s.OpenHeld(ctx, conn, conn.Acquire(), ref, plan)
}

// OpenHeld is Open for a connection the caller already acquired. The stream
// takes over release, including on error.
func (s *Streamer) OpenHeld(ctx context.Context, conn *pool.Conn, release func(), ref remote.MediaRef, plan chunk.Plan) (*Stream, error) {
	if conn.Closed() {
		release()
		return nil, pool.ErrConnectionClosed
	}
	sess, err := s.sessions.Get(ctx, conn, ref.Location)
	if err != nil {
		release()
		return nil, err
	}
	return &Stream{
		ctx:     ctx,
		conn:    conn,
		session: sess,
		ref:     ref,
		plan:    plan,
		part:    1,
		release: release,
	}, nil
}

// Stream is a finite, forward-only sequence of byte slices. It is not safe
// for concurrent use and cannot be restarted.
type Stream struct {
	ctx     context.Context
	conn    *pool.Conn
	session remote.Session
	ref     remote.MediaRef
	plan    chunk.Plan

	part    int
	done    bool
	err     error
	cur     []byte
	release func()
	once    sync.Once
}

var _ io.ReadCloser = &Stream{}

// Next fetches and returns the next trimmed chunk. It returns io.EOF once the
// plan is complete or the remote object ends early.
func (st *Stream) Next() ([]byte, error) {
	if st.done {
		return nil, st.err
	}
	if st.part > st.plan.Count {
		return nil, st.finish(io.EOF)
	}
	if err := st.ctx.Err(); err != nil {
		return nil, st.finish(err)
	}
	if st.conn.Closed() {
		return nil, st.finish(pool.ErrConnectionClosed)
	}

	offset := st.plan.Offset(st.part)
	start := time.Now()
	b, err := st.session.Fetch(st.ctx, st.ref, offset, st.plan.ChunkSize)
	metrics.RecordChunkFetch(st.conn.ID, time.Since(start), err)
	if err != nil {
		if ctxErr := st.ctx.Err(); ctxErr != nil {
			return nil, st.finish(ctxErr)
		}
		if !errors.Is(err, remote.ErrFetchFailed) {
			err = fmt.Errorf("%w: %w", remote.ErrFetchFailed, err)
		}
		return nil, st.finish(fmt.Errorf("part %d of %d at offset %d: %w", st.part, st.plan.Count, offset, err))
	}
	if len(b) == 0 {
		logger := logging.GetLogger()
		logger.Debug().
			Str("file_id", st.ref.FileID).
			Int("part", st.part).
			Int("parts", st.plan.Count).
			Msg("remote object ended before plan")
		return nil, st.finish(io.EOF)
	}

	b = st.plan.Trim(st.part, b)
	st.part++
	if st.part > st.plan.Count {
		// last part delivered; free the connection without waiting for
		// another call
		st.release()
	}
	return b, nil
}

// Read implements io.Reader over Next.
func (st *Stream) Read(p []byte) (int, error) {
	for len(st.cur) == 0 {
		b, err := st.Next()
		if err != nil {
			return 0, err
		}
		st.cur = b
	}
	n := copy(p, st.cur)
	st.cur = st.cur[n:]
	return n, nil
}

// Close stops the stream and releases the connection. It is safe to call
// more than once.
func (st *Stream) Close() error {
	st.once.Do(func() {
		if !st.done {
			st.done = true
			st.err = io.ErrClosedPipe
		}
		st.release()
	})
	return nil
}

func (st *Stream) finish(err error) error {
	st.done = true
	st.err = err
	st.release()
	return err
}
