package pool_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero5yt/StreamixBot2.0/pkg/pool"
)

func newPool(t *testing.T, ids ...int) *pool.Pool {
	t.Helper()
	p := pool.New()
	for _, id := range ids {
		_, err := p.Register(id, "", nil)
		require.NoError(t, err)
	}
	return p
}

func TestSelectLeastLoadedEmpty(t *testing.T) {
	p := pool.New()
	_, err := p.SelectLeastLoaded()
	assert.ErrorIs(t, err, pool.ErrNoConnections)
}

func TestSelectLeastLoadedTieBreaksOnLowestID(t *testing.T) {
	p := newPool(t, 3, 1, 2)
	c, err := p.SelectLeastLoaded()
	require.NoError(t, err)
	assert.Equal(t, 1, c.ID)
}

func TestSelectLeastLoadedIsIdempotent(t *testing.T) {
	p := newPool(t, 0, 1, 2)
	first, err := p.SelectLeastLoaded()
	require.NoError(t, err)
	second, err := p.SelectLeastLoaded()
	require.NoError(t, err)
	assert.Same(t, first, second)
	load, err := p.LoadOf(first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), load)
}

func TestSelectLeastLoadedPrefersIdle(t *testing.T) {
	p := newPool(t, 0, 1, 2)
	c0, _ := p.Get(0)
	c1, _ := p.Get(1)
	r0 := c0.Acquire()
	r1 := c1.Acquire()
	c, err := p.SelectLeastLoaded()
	require.NoError(t, err)
	assert.Equal(t, 2, c.ID)

	r0()
	c, err = p.SelectLeastLoaded()
	require.NoError(t, err)
	assert.Equal(t, 0, c.ID)
	r1()
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := newPool(t, 0)
	c, _ := p.Get(0)
	release := c.Acquire()
	assert.Equal(t, int64(1), c.Load())
	release()
	release()
	assert.Equal(t, int64(0), c.Load())
}

func TestConcurrentAcquireRelease(t *testing.T) {
	p := newPool(t, 0, 1)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.SelectLeastLoaded()
			if !assert.NoError(t, err) {
				return
			}
			release := c.Acquire()
			defer release()
		}()
	}
	wg.Wait()
	for _, c := range p.Conns() {
		assert.Equal(t, int64(0), c.Load())
	}
}

func TestRegisterDuplicate(t *testing.T) {
	p := newPool(t, 0)
	_, err := p.Register(0, "again", nil)
	assert.ErrorIs(t, err, pool.ErrDuplicateID)
}

func TestLoadOfUnknown(t *testing.T) {
	p := newPool(t, 0)
	_, err := p.LoadOf(7)
	assert.ErrorIs(t, err, pool.ErrUnknownConnection)
}

func TestClose(t *testing.T) {
	p := newPool(t, 0)
	c, _ := p.Get(0)
	p.Close()
	assert.True(t, c.Closed())
	_, err := p.SelectLeastLoaded()
	assert.ErrorIs(t, err, pool.ErrNoConnections)
}

func TestAcquireLeastLoadedSpreadsConcurrentCallers(t *testing.T) {
	p := newPool(t, 0, 1, 2, 3)

	var wg sync.WaitGroup
	releases := make(chan func(), 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, err := p.AcquireLeastLoaded()
			assert.NoError(t, err)
			releases <- release
		}()
	}
	wg.Wait()
	close(releases)

	for _, c := range p.Conns() {
		assert.Equal(t, int64(2), c.Load(), "connection %d", c.ID)
	}
	for release := range releases {
		release()
	}
	for _, c := range p.Conns() {
		assert.Equal(t, int64(0), c.Load())
	}
}

func TestAcquireLeastLoadedEmpty(t *testing.T) {
	_, _, err := pool.New().AcquireLeastLoaded()
	assert.ErrorIs(t, err, pool.ErrNoConnections)
}
