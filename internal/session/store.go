package session

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/helpdesk/internal/domain"
)

// DefaultIdleTimeout is how long a channel may stay silent before its session
// is discarded.
const DefaultIdleTimeout = 30 * time.Minute

// EvictReason says why a session was discarded.
type EvictReason string

const (
	EvictIdle  EvictReason = "idle"
	EvictReset EvictReason = "reset"
)

// Session is the conversational state of one chat channel. A *Session handed
// out by the Store stays usable after eviction; writes to an evicted session
// are simply never observed again.
type Session struct {
	ChannelID string

	mu      sync.Mutex
	history []domain.Turn
	stats   domain.Stats

	// guarded by Store.mu
	timer  *time.Timer
	gen    uint64
	active int
}

// History returns a copy of the conversation history.
func (s *Session) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Append adds turns to the end of the history.
func (s *Session) Append(turns ...domain.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turns...)
}

// ReplaceHistory swaps the whole history, used when trimming a context window.
func (s *Session) ReplaceHistory(turns []domain.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = slices.Clone(turns)
}

// RecordCost adds the cost and token usage of one model call.
func (s *Session) RecordCost(usage domain.Usage, cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cost > 0 {
		s.stats.TotalCost += cost
	}
	if usage.InputTokens > 0 {
		s.stats.InputTokens += usage.InputTokens
	}
	if usage.OutputTokens > 0 {
		s.stats.OutputTokens += usage.OutputTokens
	}
}

// RecordMessage counts one processed inbound message.
func (s *Session) RecordMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.MessageCount++
}

// RecordTicket counts one ticket created on behalf of the channel.
func (s *Session) RecordTicket() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TicketsCreated++
}

// Stats returns a snapshot of the session's accounting.
func (s *Session) Stats() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) markActivity(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.LastActivityAt = now
}

// Store holds every live channel session and expires idle ones.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	now         func() time.Time
	onEvict     func(channelID string, reason EvictReason)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for stats timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithEvictHook registers a callback invoked after a session is discarded.
// The callback runs without the store lock held.
func WithEvictHook(fn func(channelID string, reason EvictReason)) Option {
	return func(s *Store) { s.onEvict = fn }
}

// NewStore creates an empty Store. A non-positive idleTimeout falls back to
// DefaultIdleTimeout.
func NewStore(idleTimeout time.Duration, opts ...Option) *Store {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	s := &Store{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdleTimeout returns the configured inactivity window.
func (s *Store) IdleTimeout() time.Duration {
	return s.idleTimeout
}

// GetOrCreate returns the channel's session, creating an empty one when none
// exists, and rearms its idle timer.
func (s *Store) GetOrCreate(channelID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(channelID)
	s.armLocked(sess)
	return sess
}

// Touch rearms the channel's idle timer. Unknown channels are created.
func (s *Store) Touch(channelID string) {
	s.GetOrCreate(channelID)
}

// RecordCost accumulates usage for the channel's current session. A session
// created here is subject to idle eviction like any other.
func (s *Store) RecordCost(channelID string, usage domain.Usage, cost float64) {
	s.mu.Lock()
	sess := s.getOrCreateLocked(channelID)
	s.mu.Unlock()

	sess.RecordCost(usage, cost)
}

// Acquire returns the channel's session marked as busy. An idle timer that
// fires while a session is busy rearms instead of evicting. Every Acquire must
// be paired with Release.
func (s *Store) Acquire(channelID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(channelID)
	sess.active++
	s.armLocked(sess)
	return sess
}

// Release clears the busy mark set by Acquire and rearms the idle timer, so
// the inactivity window starts when the run finishes. Releasing a session that
// was evicted in the meantime does not resurrect it.
func (s *Store) Release(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.active > 0 {
		sess.active--
	}
	if s.sessions[sess.ChannelID] == sess {
		s.armLocked(sess)
	}
}

// Evict discards the channel's history and stats and cancels its timer.
// Evicting an unknown channel is a no-op. It reports whether a session existed.
func (s *Store) Evict(channelID string) bool {
	return s.evict(channelID, EvictReset)
}

// Stats returns the accounting of a live session.
func (s *Store) Stats(channelID string) (domain.Stats, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[channelID]
	s.mu.Unlock()

	if !ok {
		return domain.Stats{}, false
	}
	return sess.Stats(), true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close cancels every idle timer and drops all sessions.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if sess.timer != nil {
			sess.timer.Stop()
		}
		delete(s.sessions, id)
	}
}

// getOrCreateLocked starts the idle timer of every session it creates.
func (s *Store) getOrCreateLocked(channelID string) *Session {
	sess, ok := s.sessions[channelID]
	if ok {
		return sess
	}

	now := s.now()
	sess = &Session{
		ChannelID: channelID,
		stats: domain.Stats{
			CreatedAt:      now,
			LastActivityAt: now,
		},
	}
	s.sessions[channelID] = sess
	s.startTimerLocked(sess)

	log.Debug().Str("channel_id", channelID).Msg("session: created")
	return sess
}

// armLocked (re)starts the idle timer. Each arming bumps the generation so a
// timer that already fired but lost the race for s.mu becomes a no-op.
func (s *Store) armLocked(sess *Session) {
	sess.markActivity(s.now())
	s.startTimerLocked(sess)
}

func (s *Store) startTimerLocked(sess *Session) {
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.gen++
	gen := sess.gen
	sess.timer = time.AfterFunc(s.idleTimeout, func() {
		s.expire(sess, gen)
	})
}

func (s *Store) expire(sess *Session, gen uint64) {
	s.mu.Lock()
	if s.sessions[sess.ChannelID] != sess || sess.gen != gen {
		s.mu.Unlock()
		return
	}
	if sess.active > 0 {
		s.startTimerLocked(sess)
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sess.ChannelID)
	sess.timer = nil
	s.mu.Unlock()

	log.Info().Str("channel_id", sess.ChannelID).Msg("session: evicted after inactivity")
	if s.onEvict != nil {
		s.onEvict(sess.ChannelID, EvictIdle)
	}
}

func (s *Store) evict(channelID string, reason EvictReason) bool {
	s.mu.Lock()
	sess, ok := s.sessions[channelID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	sess.gen++
	delete(s.sessions, channelID)
	s.mu.Unlock()

	log.Info().Str("channel_id", channelID).Str("reason", string(reason)).Msg("session: evicted")
	if s.onEvict != nil {
		s.onEvict(channelID, reason)
	}
	return true
}
