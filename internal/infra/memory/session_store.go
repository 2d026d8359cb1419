// Package memory holds single-process implementations of the session,
// webhook de-duplication and locking ports.
package memory

import (
	"context"
	"sync"
	"time"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/repository"
)

var _ repository.SessionStore = (*SessionStore)(nil)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.PaymentSession
	refs     map[string]string // external ref -> session id
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*model.PaymentSession),
		refs:     make(map[string]string),
	}
}

func (s *SessionStore) Get(ctx context.Context, id string) (*model.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *SessionStore) FindByRef(ctx context.Context, ref string) (*model.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.refs[ref]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *SessionStore) Put(ctx context.Context, sess *model.PaymentSession) error {
	if sess.IsZero() {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.sessions[sess.ID]; ok && old.ExternalRef != "" && old.ExternalRef != sess.ExternalRef {
		delete(s.refs, old.ExternalRef)
	}
	s.sessions[sess.ID] = sess.Clone()
	if sess.ExternalRef != "" {
		s.refs[sess.ExternalRef] = sess.ID
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(id)
	return nil
}

func (s *SessionStore) deleteLocked(id string) {
	if sess, ok := s.sessions[id]; ok {
		if sess.ExternalRef != "" {
			delete(s.refs, sess.ExternalRef)
		}
		delete(s.sessions, id)
	}
}

func (s *SessionStore) Sweep(ctx context.Context, now time.Time) ([]*model.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.PaymentSession
	for _, sess := range s.sessions {
		if sess.IsExpired(now) {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}

func (s *SessionStore) ListOpen(ctx context.Context) ([]*model.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.PaymentSession
	for _, sess := range s.sessions {
		if !sess.Status.Terminal() {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}

func (s *SessionStore) DeleteClosedBefore(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.Status.Terminal() && sess.ClosedAt != nil && sess.ClosedAt.Before(before) {
			s.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
