package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Defaults for ChannelOptions.
const (
	DefaultWorkers = 4
	DefaultTimeout = 30 * time.Second
)

// ChannelOptions tunes a Channel.
type ChannelOptions struct {
	Workers int
	// Timeout bounds every request, including time spent queued.
	Timeout time.Duration
}

type call struct {
	ctx   context.Context
	msg   Message
	reply chan Reply
}

// Channel is a request/response channel over a Router. A fixed pool of
// workers serves requests; each request has its own deadline and is
// cancelled with its caller or when the channel closes.
type Channel struct {
	router  *Router
	timeout time.Duration
	calls   chan call

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewChannel starts the workers. Close stops them.
func NewChannel(router *Router, opts ChannelOptions) *Channel {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		router:  router,
		timeout: opts.Timeout,
		calls:   make(chan call),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.wg.Add(opts.Workers)
	for range opts.Workers {
		go c.work()
	}
	return c
}

func (c *Channel) work() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case cl := <-c.calls:
			cl.reply <- c.router.Dispatch(cl.ctx, cl.msg)
		}
	}
}

// Send delivers msg and waits for its reply. It returns ErrTimeout when the
// deadline passes first, ErrClosed after Close, or the caller's context
// error on cancellation.
func (c *Channel) Send(ctx context.Context, msg Message) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	cl := call{ctx: ctx, msg: msg, reply: make(chan Reply, 1)}
	select {
	case c.calls <- cl:
	case <-ctx.Done():
		return Reply{}, c.abandoned(ctx, msg)
	}

	select {
	case r := <-cl.reply:
		return r, nil
	case <-ctx.Done():
		return Reply{}, c.abandoned(ctx, msg)
	}
}

func (c *Channel) abandoned(ctx context.Context, msg Message) error {
	switch {
	case c.ctx.Err() != nil:
		return ErrClosed
	case eris.Is(ctx.Err(), context.DeadlineExceeded):
		zap.L().Warn("bridge: request timed out", zap.String("action", msg.Action), zap.Duration("timeout", c.timeout))
		return eris.Wrap(ErrTimeout, msg.Action)
	default:
		return eris.Wrap(ctx.Err(), "bridge: request cancelled")
	}
}

// Close cancels in-flight requests and waits for the workers to exit.
func (c *Channel) Close() {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}
