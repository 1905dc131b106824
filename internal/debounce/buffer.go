// Package debounce coalesces bursts of inbound messages from the same sender
// into a single turn.
package debounce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"realestate-bot/internal/domain"
	"realestate-bot/internal/schedule"
)

// DefaultWait is the quiet period after the last fragment before a turn flushes.
const DefaultWait = 15 * time.Second

// ErrClosed is returned by Add once the buffer has been closed.
var ErrClosed = errors.New("debounce: buffer closed")

// HandlerFunc receives each flushed turn. It runs outside the buffer lock.
type HandlerFunc func(domain.Turn)

// pendingTurn accumulates fragments until its deadline elapses. seq
// identifies the currently armed deadline; a callback holding an older seq
// is stale and must not flush.
type pendingTurn struct {
	messages    []string
	displayName string
	timer       schedule.Timer
	seq         uint64
}

// Buffer holds one pending turn per sender key.
type Buffer struct {
	wait   time.Duration
	sched  schedule.Scheduler
	handle HandlerFunc

	mu      sync.Mutex
	pending map[string]*pendingTurn
	closed  bool

	// active counts dispatched turns whose handler has not returned. It is
	// only incremented under mu, before the turn leaves the table.
	active sync.WaitGroup
}

type Option func(*Buffer)

// WithWait overrides DefaultWait. Non-positive values are ignored.
func WithWait(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.wait = d
		}
	}
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s schedule.Scheduler) Option {
	return func(b *Buffer) {
		if s != nil {
			b.sched = s
		}
	}
}

// New creates an empty Buffer that hands flushed turns to handle.
func New(handle HandlerFunc, opts ...Option) (*Buffer, error) {
	if handle == nil {
		return nil, errors.New("debounce: handler must not be nil")
	}
	b := &Buffer{
		wait:    DefaultWait,
		sched:   schedule.Real(),
		handle:  handle,
		pending: make(map[string]*pendingTurn),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Add appends text to the sender's pending turn, creating it if needed, and
// pushes the flush deadline to now+wait. displayName is only captured when
// the turn is created. It returns the number of fragments now buffered.
func (b *Buffer) Add(senderKey, displayName, text string) (int, error) {
	if strings.TrimSpace(senderKey) == "" {
		return 0, errors.New("debounce: sender key must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	pt, ok := b.pending[senderKey]
	if !ok {
		pt = &pendingTurn{displayName: displayName}
		b.pending[senderKey] = pt
	}
	pt.messages = append(pt.messages, text)

	if pt.timer != nil {
		pt.timer.Stop()
	}
	pt.seq++
	seq := pt.seq
	pt.timer = b.sched.AfterFunc(b.wait, func() { b.flush(senderKey, pt, seq) })

	if ok {
		slog.Debug("debounce: fragment appended", "sender", senderKey, "fragments", len(pt.messages), "wait", b.wait)
	} else {
		slog.Debug("debounce: turn opened", "sender", senderKey, "wait", b.wait)
	}
	return len(pt.messages), nil
}

// Pending returns the number of fragments buffered for senderKey.
func (b *Buffer) Pending(senderKey string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pt, ok := b.pending[senderKey]; ok {
		return len(pt.messages)
	}
	return 0
}

// Len returns the number of senders with an open turn.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close stops accepting fragments and hands every open turn to the handler
// immediately, each on its own goroutine. It does not wait for them; use
// Wait for that. It returns the number of turns flushed.
func (b *Buffer) Close() int {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	b.closed = true
	keys := make([]string, 0, len(b.pending))
	for k := range b.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	turns := make([]domain.Turn, 0, len(keys))
	for _, k := range keys {
		pt := b.pending[k]
		if pt.timer != nil {
			pt.timer.Stop()
		}
		delete(b.pending, k)
		turns = append(turns, toTurn(k, pt))
	}
	b.active.Add(len(turns))
	b.mu.Unlock()

	for _, t := range turns {
		go b.dispatch(t)
	}
	return len(turns)
}

// Wait blocks until every dispatched turn handler has returned or ctx is
// done. After Close no new dispatch can start, so a nil result means the
// buffer is fully drained.
func (b *Buffer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flush removes the turn only if it is still the one in the table and seq
// is still its armed deadline.
func (b *Buffer) flush(senderKey string, pt *pendingTurn, seq uint64) {
	b.mu.Lock()
	cur, ok := b.pending[senderKey]
	if !ok || cur != pt || pt.seq != seq {
		b.mu.Unlock()
		return
	}
	delete(b.pending, senderKey)
	turn := toTurn(senderKey, pt)
	b.active.Add(1)
	b.mu.Unlock()

	b.dispatch(turn)
}

func (b *Buffer) dispatch(turn domain.Turn) {
	defer b.active.Done()
	if strings.TrimSpace(turn.Message) == "" {
		slog.Debug("debounce: empty turn dropped", "sender", turn.SenderKey)
		return
	}
	slog.Info("debounce: flushing turn", "sender", turn.SenderKey, "name", turn.DisplayName, "fragments", turn.Fragments)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("debounce: turn handler panicked", "sender", turn.SenderKey, "err", fmt.Sprint(r))
		}
	}()
	b.handle(turn)
}

func toTurn(senderKey string, pt *pendingTurn) domain.Turn {
	return domain.Turn{
		SenderKey:   senderKey,
		DisplayName: pt.displayName,
		Message:     strings.Join(pt.messages, "\n"),
		Fragments:   len(pt.messages),
	}
}
