// Package history keeps a short, expiring conversation window per sender.
package history

import (
	"log/slog"
	"sync"
	"time"

	"realestate-bot/internal/domain"
	"realestate-bot/internal/schedule"
)

const (
	DefaultLimit = 20
	DefaultIdle  = 30 * time.Minute
)

type entry struct {
	messages []domain.ChatMessage
	timer    schedule.Timer
	seq      uint64
}

// Store holds at most limit messages per sender and forgets a sender after
// idle time without a new Append.
type Store struct {
	limit int
	idle  time.Duration
	sched schedule.Scheduler

	mu      sync.Mutex
	senders map[string]*entry
}

type Option func(*Store)

func WithLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

func WithIdle(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.idle = d
		}
	}
}

func WithScheduler(sch schedule.Scheduler) Option {
	return func(s *Store) {
		if sch != nil {
			s.sched = sch
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		limit:   DefaultLimit,
		idle:    DefaultIdle,
		sched:   schedule.Real(),
		senders: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records one message, evicting the oldest beyond the limit, and
// restarts the sender's idle timer.
func (s *Store) Append(senderKey, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.senders[senderKey]
	if !ok {
		e = &entry{}
		s.senders[senderKey] = e
	}
	e.messages = append(e.messages, domain.ChatMessage{Role: role, Content: content})
	if over := len(e.messages) - s.limit; over > 0 {
		// Copy so the evicted prefix does not pin the backing array.
		e.messages = append([]domain.ChatMessage(nil), e.messages[over:]...)
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.seq++
	seq := e.seq
	e.timer = s.sched.AfterFunc(s.idle, func() { s.expire(senderKey, e, seq) })
}

// Get returns a copy of the sender's messages, oldest first.
func (s *Store) Get(senderKey string) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.senders[senderKey]
	if !ok {
		return []domain.ChatMessage{}
	}
	out := make([]domain.ChatMessage, len(e.messages))
	copy(out, e.messages)
	return out
}

// Len returns the number of senders with live history.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.senders)
}

// Stop cancels every idle timer. History already recorded stays readable.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.senders {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
}

func (s *Store) expire(senderKey string, e *entry, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.senders[senderKey]
	if !ok || cur != e || e.seq != seq {
		return
	}
	delete(s.senders, senderKey)
	slog.Debug("history: expired", "sender", senderKey, "messages", len(e.messages))
}
