package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/repository"
)

var _ repository.SessionStore = (*SessionStore)(nil)

const (
	sessionKeyPrefix = "paysess:"
	sessionRefPrefix = "paysess:ref:"
	sessionIndexKey  = "paysess:index" // zset of ids scored by expires_at
)

// SessionStore keeps payment sessions in Redis so several bot instances
// share them and a restart does not lose pending payments.
type SessionStore struct {
	cli   *redis.Client
	grace time.Duration
}

// NewSessionStore keeps each session for grace past its expiry so the
// sweeper can still close it and cancel its payment link.
func NewSessionStore(c *Client, grace time.Duration) *SessionStore {
	if grace <= 0 {
		grace = 2 * time.Hour
	}
	return &SessionStore{cli: c.cli, grace: grace}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }
func refKey(ref string) string    { return sessionRefPrefix + ref }

func (s *SessionStore) Get(ctx context.Context, id string) (*model.PaymentSession, error) {
	raw, err := s.cli.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	var sess model.PaymentSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *SessionStore) FindByRef(ctx context.Context, ref string) (*model.PaymentSession, error) {
	id, err := s.cli.Get(ctx, refKey(ref)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *SessionStore) ttl(sess *model.PaymentSession) time.Duration {
	ttl := time.Until(sess.ExpiresAt) + s.grace
	if sess.ClosedAt != nil {
		if byClose := time.Until(*sess.ClosedAt) + s.grace; byClose > ttl {
			ttl = byClose
		}
	}
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

func (s *SessionStore) Put(ctx context.Context, sess *model.PaymentSession) error {
	if sess.IsZero() {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	old, err := s.Get(ctx, sess.ID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	ttl := s.ttl(sess)
	_, err = s.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if old != nil && old.ExternalRef != "" && old.ExternalRef != sess.ExternalRef {
			p.Del(ctx, refKey(old.ExternalRef))
		}
		p.Set(ctx, sessionKey(sess.ID), data, ttl)
		if sess.ExternalRef != "" {
			p.Set(ctx, refKey(sess.ExternalRef), sess.ID, ttl)
		}
		p.ZAdd(ctx, sessionIndexKey, &redis.Z{Score: float64(sess.ExpiresAt.Unix()), Member: sess.ID})
		return nil
	})
	return err
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	_, err = s.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if sess != nil && sess.ExternalRef != "" {
			p.Del(ctx, refKey(sess.ExternalRef))
		}
		p.Del(ctx, sessionKey(id))
		p.ZRem(ctx, sessionIndexKey, id)
		return nil
	})
	return err
}

// load resolves ids to sessions, dropping index entries whose keys expired.
func (s *SessionStore) load(ctx context.Context, ids []string) ([]*model.PaymentSession, error) {
	out := make([]*model.PaymentSession, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		_ = s.cli.ZRem(ctx, sessionIndexKey, stale...).Err()
	}
	return out, nil
}

func (s *SessionStore) Sweep(ctx context.Context, now time.Time) ([]*model.PaymentSession, error) {
	ids, err := s.cli.ZRangeByScore(ctx, sessionIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, err
	}
	all, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, sess := range all {
		if sess.IsExpired(now) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *SessionStore) all(ctx context.Context) ([]*model.PaymentSession, error) {
	ids, err := s.cli.ZRange(ctx, sessionIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids)
}

func (s *SessionStore) ListOpen(ctx context.Context) ([]*model.PaymentSession, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, sess := range all {
		if !sess.Status.Terminal() {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *SessionStore) DeleteClosedBefore(ctx context.Context, before time.Time) (int, error) {
	all, err := s.all(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range all {
		if sess.Status.Terminal() && sess.ClosedAt != nil && sess.ClosedAt.Before(before) {
			if err := s.Delete(ctx, sess.ID); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) Count(ctx context.Context) (int, error) {
	n, err := s.cli.ZCard(ctx, sessionIndexKey).Result()
	return int(n), err
}
