// Package pool tracks backend connections and the number of streams each one
// is currently serving.
package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zero5yt/StreamixBot2.0/pkg/metrics"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

var (
	ErrNoConnections     = errors.New("no backend connections available")
	ErrConnectionClosed  = errors.New("backend connection closed")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrDuplicateID       = errors.New("duplicate connection id")
)

// Conn is one registered backend connection.
type Conn struct {
	ID     int
	Name   string
	Client remote.Client

	load   atomic.Int64
	closed atomic.Bool
}

// Load returns the number of streams currently holding the connection.
func (c *Conn) Load() int64 {
	return c.load.Load()
}

// Closed reports whether the owning pool has been torn down.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Acquire marks the connection busy. The returned release marks it idle
// again; calling it more than once has no further effect.
func (c *Conn) Acquire() (release func()) {
	metrics.SetConnectionLoad(c.ID, c.load.Add(1))
	var once sync.Once
	return func() {
		once.Do(func() {
			metrics.SetConnectionLoad(c.ID, c.load.Add(-1))
		})
	}
}

// Pool is the set of backend connections available to serve streams.
type Pool struct {
	// selectMu serialises AcquireLeastLoaded so two callers never both see
	// the same idle counters
	selectMu sync.Mutex

	mu     sync.RWMutex
	conns  []*Conn // sorted by ID
	closed bool
}

func New() *Pool {
	return &Pool{}
}

func (p *Pool) Register(id int, name string, client remote.Client) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrConnectionClosed
	}
	for _, c := range p.conns {
		if c.ID == id {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, id)
		}
	}
	conn := &Conn{ID: id, Name: name, Client: client}
	p.conns = append(p.conns, conn)
	sort.Slice(p.conns, func(i, j int) bool { return p.conns[i].ID < p.conns[j].ID })
	metrics.SetConnectionLoad(id, 0)
	return conn, nil
}

// SelectLeastLoaded returns the connection with the lowest load, preferring
// the lowest ID on ties. It does not change any load.
func (p *Pool) SelectLeastLoaded() (*Conn, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || len(p.conns) == 0 {
		return nil, ErrNoConnections
	}
	best := p.conns[0]
	bestLoad := best.Load()
	for _, c := range p.conns[1:] {
		if l := c.Load(); l < bestLoad {
			best, bestLoad = c, l
		}
	}
	return best, nil
}

// AcquireLeastLoaded selects like SelectLeastLoaded and marks the chosen
// connection busy before any other caller can select. The caller owns
// release.
func (p *Pool) AcquireLeastLoaded() (conn *Conn, release func(), err error) {
	p.selectMu.Lock()
	defer p.selectMu.Unlock()
	conn, err = p.SelectLeastLoaded()
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.Acquire(), nil
}

func (p *Pool) LoadOf(id int) (int64, error) {
	c, err := p.Get(id)
	if err != nil {
		return 0, err
	}
	return c.Load(), nil
}

func (p *Pool) Get(id int) (*Conn, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.conns {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownConnection, id)
}

// Conns returns a snapshot of the registered connections ordered by ID.
func (p *Pool) Conns() []*Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Conn, len(p.conns))
	copy(out, p.conns)
	return out
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// Close tears the pool down. Streams still holding a connection fail on
// their next fetch.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, c := range p.conns {
		c.closed.Store(true)
	}
}
