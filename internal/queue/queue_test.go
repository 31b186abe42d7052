package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/helpdesk/internal/domain"
	"github.com/gosuda/helpdesk/internal/queue"
)

func msg(channelID, text string) domain.InboundMessage {
	return domain.InboundMessage{ChannelID: channelID, Text: text}
}

func await(t *testing.T, ch <-chan queue.Result) queue.Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return queue.Result{}
	}
}

// --- recordingHandler ---

type recordingHandler struct {
	mu      sync.Mutex
	order   []string
	seen    map[string][]string // text -> texts processed before it
	started chan string
	gate    chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		seen:    make(map[string][]string),
		started: make(chan string, 16),
		gate:    make(chan struct{}),
	}
}

func (h *recordingHandler) handle(_ context.Context, m domain.InboundMessage) (string, error) {
	h.started <- m.Text
	if m.Text == "block" {
		<-h.gate
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[m.Text] = append([]string(nil), h.order...)
	h.order = append(h.order, m.Text)
	return "re: " + m.Text, nil
}

func TestQueue_FIFOPerChannel(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()
	q := queue.New(h.handle)
	ctx := t.Context()

	first := q.Submit(ctx, msg("C1", "block"))
	require.Equal(t, "block", <-h.started)

	a := q.Submit(ctx, msg("C1", "A"))
	b := q.Submit(ctx, msg("C1", "B"))
	assert.Equal(t, 2, q.Pending("C1"))
	assert.True(t, q.Busy("C1"))

	close(h.gate)

	assert.Equal(t, "re: block", await(t, first).Text)
	assert.Equal(t, "re: A", await(t, a).Text)
	assert.Equal(t, "re: B", await(t, b).Text)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []string{"block", "A", "B"}, h.order)
	assert.Equal(t, []string{"block", "A"}, h.seen["B"], "B must observe A's effects")

	require.Eventually(t, func() bool { return !q.Busy("C1") }, time.Second, 5*time.Millisecond)
	assert.Zero(t, q.Pending("C1"))
}

func TestQueue_CrossChannelIndependence(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()
	q := queue.New(h.handle)
	ctx := t.Context()

	blocked := q.Submit(ctx, msg("X", "block"))
	require.Equal(t, "block", <-h.started)

	res := await(t, q.Submit(ctx, msg("Y", "hello")))
	assert.Equal(t, "re: hello", res.Text)
	assert.True(t, q.Busy("X"), "X is still running while Y completed")

	close(h.gate)
	assert.Equal(t, "re: block", await(t, blocked).Text)
}

func TestQueue_AtMostOneActiveRun(t *testing.T) {
	t.Parallel()

	var (
		active    atomic.Int32
		maxActive atomic.Int32
		q         *queue.Queue
		busyMiss  atomic.Int32
	)

	q = queue.New(func(_ context.Context, m domain.InboundMessage) (string, error) {
		n := active.Add(1)
		for {
			cur := maxActive.Load()
			if n <= cur || maxActive.CompareAndSwap(cur, n) {
				break
			}
		}
		if !q.Busy(m.ChannelID) {
			busyMiss.Add(1)
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return m.Text, nil
	})

	ctx := t.Context()
	const n = 50

	var wg sync.WaitGroup
	results := make([]<-chan queue.Result, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = q.Submit(ctx, msg("C1", fmt.Sprint(i)))
		}()
	}
	wg.Wait()

	for _, ch := range results {
		res := await(t, ch)
		require.NoError(t, res.Err)
	}

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Zero(t, busyMiss.Load())
}

func TestQueue_LockReleasedOnFailure(t *testing.T) {
	t.Parallel()

	t.Run("handler error", func(t *testing.T) {
		t.Parallel()

		q := queue.New(func(_ context.Context, m domain.InboundMessage) (string, error) {
			if m.Text == "fail" {
				return "", errors.New("model unavailable")
			}
			return "ok", nil
		})
		ctx := t.Context()

		res := await(t, q.Submit(ctx, msg("C1", "fail")))
		require.EqualError(t, res.Err, "model unavailable")

		res = await(t, q.Submit(ctx, msg("C1", "next")))
		require.NoError(t, res.Err)
		assert.Equal(t, "ok", res.Text)
	})

	t.Run("handler panic", func(t *testing.T) {
		t.Parallel()

		gate := make(chan struct{})
		q := queue.New(func(_ context.Context, m domain.InboundMessage) (string, error) {
			if m.Text == "boom" {
				<-gate
				panic("nil map write")
			}
			return "ok", nil
		})
		ctx := t.Context()

		boom := q.Submit(ctx, msg("C1", "boom"))
		after := q.Submit(ctx, msg("C1", "after"))
		close(gate)

		res := await(t, boom)
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "panicked")

		res = await(t, after)
		require.NoError(t, res.Err)
		assert.Equal(t, "ok", res.Text)

		require.Eventually(t, func() bool { return !q.Busy("C1") }, time.Second, 5*time.Millisecond)
	})
}

func TestQueue_Backpressure(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()
	q := queue.New(h.handle, queue.WithMaxPending(1))
	ctx := t.Context()

	first := q.Submit(ctx, msg("C1", "block"))
	<-h.started

	second := q.Submit(ctx, msg("C1", "A"))
	third := q.Submit(ctx, msg("C1", "B"))

	res := await(t, third)
	require.ErrorIs(t, res.Err, queue.ErrFull)

	close(h.gate)
	require.NoError(t, await(t, first).Err)
	require.NoError(t, await(t, second).Err)
}

func TestQueue_Close(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()
	q := queue.New(h.handle)
	ctx := t.Context()

	running := q.Submit(ctx, msg("C1", "block"))
	<-h.started

	closeDone := make(chan error, 1)
	go func() { closeDone <- q.Close(context.Background()) }()

	require.Eventually(t, func() bool {
		res := <-q.Submit(ctx, msg("C2", "late"))
		return errors.Is(res.Err, queue.ErrClosed)
	}, time.Second, 5*time.Millisecond)

	close(h.gate)
	require.NoError(t, await(t, running).Err)
	require.NoError(t, <-closeDone)
}

func TestQueue_Do(t *testing.T) {
	t.Parallel()

	t.Run("returns handler result", func(t *testing.T) {
		t.Parallel()

		q := queue.New(func(_ context.Context, m domain.InboundMessage) (string, error) {
			return "echo " + m.Text, nil
		})

		text, err := q.Do(t.Context(), msg("C1", "hi"))
		require.NoError(t, err)
		assert.Equal(t, "echo hi", text)
	})

	t.Run("cancelled wait", func(t *testing.T) {
		t.Parallel()

		h := newRecordingHandler()
		q := queue.New(h.handle)
		defer close(h.gate)

		q.Submit(t.Context(), msg("C1", "block"))
		<-h.started

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()

		_, err := q.Do(ctx, msg("C1", "waiting"))
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("entry cancelled before start is dropped", func(t *testing.T) {
		t.Parallel()

		h := newRecordingHandler()
		q := queue.New(h.handle)

		first := q.Submit(t.Context(), msg("C1", "block"))
		<-h.started

		ctx, cancel := context.WithCancel(t.Context())
		dropped := q.Submit(ctx, msg("C1", "never"))
		cancel()
		close(h.gate)

		require.NoError(t, await(t, first).Err)
		res := await(t, dropped)
		require.ErrorIs(t, res.Err, context.Canceled)

		h.mu.Lock()
		defer h.mu.Unlock()
		assert.NotContains(t, h.order, "never")
	})
}
