package repository

import (
	"context"
	"errors"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/cache"
)

// KVArtifactStore keeps artifacts as JSON documents in a cache.Service
// (memory, redis or layered).
type KVArtifactStore struct {
	c      cache.Service
	prefix string
	ttl    time.Duration
}

// NewKVArtifactStore stores under prefix:{SYMBOL}. A zero ttl never expires.
func NewKVArtifactStore(c cache.Service, prefix string, ttl time.Duration) *KVArtifactStore {
	if prefix == "" {
		prefix = "artifact"
	}
	return &KVArtifactStore{c: c, prefix: prefix, ttl: ttl}
}

func (s *KVArtifactStore) key(symbol string) string { return cache.GenerateKey(s.prefix, symbol) }

func (s *KVArtifactStore) Load(ctx context.Context, symbol string) (*models.ModelArtifact, error) {
	var a models.ModelArtifact
	if err := cache.GetJSON(ctx, s.c, s.key(symbol), &a); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.ErrArtifactNotFound
		}
		return nil, &models.PersistenceError{Op: "load", Symbol: symbol, Err: err}
	}
	return &a, nil
}

func (s *KVArtifactStore) Save(ctx context.Context, a *models.ModelArtifact) error {
	if err := cache.SetJSON(ctx, s.c, s.key(a.Symbol), a, s.ttl); err != nil {
		return &models.PersistenceError{Op: "save", Symbol: a.Symbol, Err: err}
	}
	return nil
}

func (s *KVArtifactStore) Delete(ctx context.Context, symbol string) error {
	if err := s.c.Delete(ctx, s.key(symbol)); err != nil {
		return &models.PersistenceError{Op: "delete", Symbol: symbol, Err: err}
	}
	return nil
}

func (s *KVArtifactStore) Health(ctx context.Context) error { return s.c.Ping(ctx) }

var _ domrepo.ArtifactStore = (*KVArtifactStore)(nil)
