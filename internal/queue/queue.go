package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/helpdesk/internal/domain"
)

var (
	// ErrClosed is returned for submissions after Close.
	ErrClosed = errors.New("queue: closed") //nolint:gochecknoglobals // sentinel error
	// ErrFull is returned when a channel already holds the maximum number of pending messages.
	ErrFull = errors.New("queue: channel backlog full") //nolint:gochecknoglobals // sentinel error
)

// Handler processes one inbound message and returns the final reply text.
type Handler func(ctx context.Context, msg domain.InboundMessage) (string, error)

// Result is the eventual outcome of a submitted message.
type Result struct {
	Text string
	Err  error
}

type entry struct {
	ctx  context.Context //nolint:containedctx // carried until the entry is dequeued
	msg  domain.InboundMessage
	done chan Result
}

type channelState struct {
	locked  bool
	pending []*entry
}

// Queue serializes message handling per channel. At most one Handler call is
// in flight for a given channel; messages that arrive meanwhile wait in FIFO
// order. Different channels never wait on each other.
type Queue struct {
	mu         sync.Mutex
	channels   map[string]*channelState
	handler    Handler
	maxPending int
	closed     bool
	wg         sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxPending bounds the per-channel backlog. Zero means unbounded.
func WithMaxPending(n int) Option {
	return func(q *Queue) { q.maxPending = n }
}

// New creates a Queue that dispatches to handler.
func New(handler Handler, opts ...Option) *Queue {
	q := &Queue{
		channels: make(map[string]*channelState),
		handler:  handler,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit hands msg to the channel's worker without blocking. If the channel
// is idle a worker starts immediately; otherwise msg is queued behind the
// messages already waiting. The returned channel yields exactly one Result.
func (q *Queue) Submit(ctx context.Context, msg domain.InboundMessage) <-chan Result {
	e := &entry{ctx: ctx, msg: msg, done: make(chan Result, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		e.done <- Result{Err: fmt.Errorf("queue.Queue.Submit(%q): %w", msg.ChannelID, ErrClosed)}
		return e.done
	}

	st, ok := q.channels[msg.ChannelID]
	if !ok {
		st = &channelState{}
		q.channels[msg.ChannelID] = st
	}

	if st.locked {
		if q.maxPending > 0 && len(st.pending) >= q.maxPending {
			q.mu.Unlock()
			e.done <- Result{Err: fmt.Errorf("queue.Queue.Submit(%q): %w", msg.ChannelID, ErrFull)}
			return e.done
		}
		st.pending = append(st.pending, e)
		depth := len(st.pending)
		q.mu.Unlock()

		log.Debug().Str("channel_id", msg.ChannelID).Int("pending", depth).Msg("queue: channel busy, message queued")
		return e.done
	}

	st.locked = true
	q.wg.Add(1)
	q.mu.Unlock()

	go q.work(msg.ChannelID, e)
	return e.done
}

// Do submits msg and waits for its result or for ctx to end. When ctx ends
// first the message still runs; only the wait is abandoned.
func (q *Queue) Do(ctx context.Context, msg domain.InboundMessage) (string, error) {
	select {
	case res := <-q.Submit(ctx, msg):
		return res.Text, res.Err
	case <-ctx.Done():
		return "", fmt.Errorf("queue.Queue.Do(%q): %w", msg.ChannelID, ctx.Err())
	}
}

// Busy reports whether a message is being processed for the channel.
func (q *Queue) Busy(channelID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	st, ok := q.channels[channelID]
	return ok && st.locked
}

// Pending returns the number of messages waiting behind the active one.
func (q *Queue) Pending(channelID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	st, ok := q.channels[channelID]
	if !ok {
		return 0
	}
	return len(st.pending)
}

// Close stops accepting submissions and waits for queued work to finish or
// for ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue.Queue.Close: %w", ctx.Err())
	}
}

// work is the per-channel worker. It runs first, then keeps draining the
// backlog until it is empty, at which point the channel is unlocked.
func (q *Queue) work(channelID string, e *entry) {
	defer q.wg.Done()

	for e != nil {
		e.done <- q.run(e)
		e = q.next(channelID)
	}
}

// next pops the oldest pending entry, or unlocks the channel when none is left.
func (q *Queue) next(channelID string) *entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := q.channels[channelID]
	if len(st.pending) == 0 {
		st.locked = false
		delete(q.channels, channelID)
		return nil
	}

	e := st.pending[0]
	st.pending[0] = nil
	st.pending = st.pending[1:]
	return e
}

func (q *Queue) run(e *entry) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("channel_id", e.msg.ChannelID).Interface("panic", r).Msg("queue: handler panicked")
			res = Result{Err: fmt.Errorf("queue: handler panicked: %v", r)}
		}
	}()

	if err := e.ctx.Err(); err != nil {
		return Result{Err: fmt.Errorf("queue: message dropped before start: %w", err)}
	}

	text, err := q.handler(e.ctx, e.msg)
	return Result{Text: text, Err: err}
}
