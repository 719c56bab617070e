package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// DualStore writes every save to a short-lived local store and a durable
// store, and reads local-first with durable fallback. The local side mirrors
// browser-local storage; the durable side mirrors the one-year cookie.
type DualStore struct {
	local    Store
	durable  Store
	localTTL time.Duration
	logger   zerolog.Logger
}

// DualConfig holds configuration for the dual store.
type DualConfig struct {
	Local   Store
	Durable Store
	// LocalTTL bounds the local copy's lifetime (default: 12h).
	LocalTTL time.Duration
	Logger   zerolog.Logger
}

// NewDualStore creates a dual store over the two backends.
func NewDualStore(cfg DualConfig) *DualStore {
	localTTL := cfg.LocalTTL
	if localTTL == 0 {
		localTTL = 12 * time.Hour
	}
	return &DualStore{
		local:    cfg.Local,
		durable:  cfg.Durable,
		localTTL: localTTL,
		logger:   cfg.Logger,
	}
}

// Save writes value to both backends. The durable write is authoritative; a
// failed local write is only logged.
func (s *DualStore) Save(ctx context.Context, scope, key, value string, expiresAt time.Time) error {
	localExpiry := time.Now().Add(s.localTTL)
	if expiresAt.Before(localExpiry) {
		localExpiry = expiresAt
	}
	if err := s.local.Save(ctx, scope, key, value, localExpiry); err != nil {
		s.logger.Warn().Err(err).Str("scope", scope).Msg("local consent store write failed")
	}

	return s.durable.Save(ctx, scope, key, value, expiresAt)
}

// Load reads from the local store first, then the durable one. A durable
// hit is copied back into the local store.
func (s *DualStore) Load(ctx context.Context, scope, key string) (string, error) {
	if value, err := s.local.Load(ctx, scope, key); err == nil {
		return value, nil
	} else if !errors.Is(err, ErrNotFound) {
		s.logger.Warn().Err(err).Str("scope", scope).Msg("local consent store read failed")
	}

	value, err := s.durable.Load(ctx, scope, key)
	if err != nil {
		return "", err
	}

	if err := s.local.Save(ctx, scope, key, value, time.Now().Add(s.localTTL)); err != nil {
		s.logger.Warn().Err(err).Str("scope", scope).Msg("local consent store backfill failed")
	}
	return value, nil
}

// Delete removes the value from both backends.
func (s *DualStore) Delete(ctx context.Context, scope, key string) error {
	if err := s.local.Delete(ctx, scope, key); err != nil {
		s.logger.Warn().Err(err).Str("scope", scope).Msg("local consent store delete failed")
	}
	return s.durable.Delete(ctx, scope, key)
}

var _ Store = (*DualStore)(nil)
