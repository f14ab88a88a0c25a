package serve

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero5yt/StreamixBot2.0/pkg/pool"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

type stubClient struct {
	closed *atomic.Int32
}

func (stubClient) Lookup(context.Context, remote.Handle) (remote.MediaRef, error) {
	return remote.MediaRef{}, remote.ErrObjectNotFound
}

func (stubClient) OpenSession(context.Context, remote.LocationID) (remote.Session, error) {
	return nil, errors.New("no sessions")
}

func (c stubClient) Close() error {
	c.closed.Add(1)
	return nil
}

func TestStartConnectionsSkipsFailures(t *testing.T) {
	var closed atomic.Int32
	p := pool.New()
	cs, err := startConnections(context.Background(), p, 4, func(_ context.Context, id int) (remote.Client, error) {
		if id == 1 {
			return nil, errors.New("auth failed")
		}
		return stubClient{closed: &closed}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	ids := []int{}
	for _, c := range p.Conns() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int{0, 2, 3}, ids)

	require.NoError(t, cs.Close())
	assert.Equal(t, int32(3), closed.Load())
}

func TestStartConnectionsAllFail(t *testing.T) {
	p := pool.New()
	_, err := startConnections(context.Background(), p, 2, func(context.Context, int) (remote.Client, error) {
		return nil, errors.New("unreachable")
	})
	assert.ErrorContains(t, err, "unreachable")
	assert.Equal(t, 0, p.Len())
}

func TestStartConnectionsNeedsOne(t *testing.T) {
	_, err := startConnections(context.Background(), pool.New(), 0, nil)
	assert.Error(t, err)
}

func TestStartBackendUnknown(t *testing.T) {
	_, err := startBackend(context.Background(), pool.New(), "ftp", 1<<20)
	assert.ErrorContains(t, err, "unknown backend")
}
