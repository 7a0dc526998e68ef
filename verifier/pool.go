package verifier

import (
	"context"
	"sync"
	"sync/atomic"
)

// Pool hands out Clients one caller at a time. Each Client keeps its own
// browser session, so the pool bounds the number of concurrent lookups.
type Pool struct {
	all    []*Client
	idle   chan *Client
	done   chan struct{}
	inUse  atomic.Int64
	closed sync.Once
}

// NewPool builds size Clients with factory. Sessions start lazily.
func NewPool(size int, factory func() *Client) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		all:  make([]*Client, size),
		idle: make(chan *Client, size),
		done: make(chan struct{}),
	}
	for i := range p.all {
		c := factory()
		p.all[i] = c
		p.idle <- c
	}
	return p
}

// Size returns the number of Clients.
func (p *Pool) Size() int { return len(p.all) }

// InUse returns the number of outstanding leases.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Acquire waits for an idle Client.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case c := <-p.idle:
		p.inUse.Add(1)
		return &Lease{pool: p, client: c}, nil
	}
}

// Initialize starts every session up front.
func (p *Pool) Initialize(ctx context.Context) error {
	for _, c := range p.all {
		if err := c.Initialize(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for outstanding leases until ctx ends, then shuts every
// session down. Verifications still running on a lease at that point fail.
func (p *Pool) Close(ctx context.Context) {
	p.closed.Do(func() {
		close(p.done)
	wait:
		for range len(p.all) {
			select {
			case <-p.idle:
			case <-ctx.Done():
				break wait
			}
		}
		for _, c := range p.all {
			c.Shutdown()
		}
	})
}

// Lease is exclusive use of one Client until Release.
type Lease struct {
	pool     *Pool
	client   *Client
	released atomic.Bool
}

// Verify runs Client.Verify on the leased session.
func (l *Lease) Verify(ctx context.Context, identifier string) (Result, error) {
	if l.released.Load() {
		return Failure(KindError, MsgError), ErrLeaseReleased
	}
	return l.client.Verify(ctx, identifier)
}

// Release returns the Client to the pool. Extra calls do nothing.
func (l *Lease) Release() {
	if l.released.Swap(true) {
		return
	}
	l.pool.inUse.Add(-1)
	l.pool.idle <- l.client
}
