package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/ports/repository"
)

var _ repository.Locker = (*Locker)(nil)

type lease struct {
	token   string
	expires time.Time
}

// Locker is an in-process keyed lock with lease expiry.
type Locker struct {
	mu      sync.Mutex
	leases  map[string]lease
	retries int
	wait    time.Duration
}

func NewLocker() *Locker {
	return &Locker{leases: make(map[string]lease), retries: 100, wait: 50 * time.Millisecond}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	for i := 0; i < l.retries; i++ {
		if l.acquire(key, token, ttl) {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.wait):
		}
	}
	return "", domain.ErrLocked
}

func (l *Locker) acquire(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return false
	}
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}
	return true
}

func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[key]; ok && cur.token == token {
		delete(l.leases, key)
	}
	return nil
}
