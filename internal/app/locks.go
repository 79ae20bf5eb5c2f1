package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/cache/redis"
	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/alanyoungcy/dumpsniper/internal/server/handler"
)

// RoundLocks claims each round in Redis before this process trades it, so
// engines sharing a broker never snipe the same round twice. Locks expire
// on their own shortly after the round ends.
type RoundLocks struct {
	locks  domain.LockManager
	grace  time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	held map[string]heldLock
}

type heldLock struct {
	unlock func()
	until  time.Time
}

// NewRoundLocks creates a RoundLocks on locks.
func NewRoundLocks(locks domain.LockManager, grace time.Duration, logger *slog.Logger) *RoundLocks {
	return &RoundLocks{
		locks:  locks,
		grace:  grace,
		now:    time.Now,
		logger: logger.With(slog.String("component", "round_locks")),
		held:   make(map[string]heldLock),
	}
}

// Claim takes the lock for r. Claiming a round this process already holds
// succeeds.
func (l *RoundLocks) Claim(ctx context.Context, r domain.Round) error {
	key := redis.RoundLockKey(r)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, h := range l.held {
		if now.After(h.until) {
			delete(l.held, k)
		}
	}
	if _, ok := l.held[key]; ok {
		return nil
	}

	ttl := r.End.Sub(now) + l.grace
	if ttl < l.grace {
		ttl = l.grace
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	unlock, err := l.locks.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	l.held[key] = heldLock{unlock: unlock, until: now.Add(ttl)}
	l.logger.Info("round claimed", slog.String("key", key), slog.Duration("ttl", ttl))
	return nil
}

// Close releases every lock still held.
func (l *RoundLocks) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, h := range l.held {
		h.unlock()
		delete(l.held, k)
	}
}

// lockedResolver claims every round it resolves. A round held elsewhere
// surfaces as a resolution error, so the engine moves on to the next slot.
type lockedResolver struct {
	next  domain.RoundResolver
	locks *RoundLocks
}

func (r lockedResolver) Resolve(ctx context.Context, start time.Time) (domain.Round, error) {
	rd, err := r.next.Resolve(ctx, start)
	if err != nil {
		return domain.Round{}, err
	}
	if err := r.locks.Claim(ctx, rd); err != nil {
		return domain.Round{}, fmt.Errorf("app: claim round %s: %w", rd.Slug, err)
	}
	return rd, nil
}

// guardedControl claims manually started rounds before handing them to
// the engine.
type guardedControl struct {
	handler.SniperControl
	locks *RoundLocks
}

func (g guardedControl) Start(ctx context.Context, r domain.Round) error {
	if err := g.locks.Claim(ctx, r); err != nil {
		return fmt.Errorf("app: claim round: %w", err)
	}
	return g.SniperControl.Start(ctx, r)
}
