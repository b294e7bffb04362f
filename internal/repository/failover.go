package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"wxsync/internal/database"
	"wxsync/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverTokenCache prefers the primary cache and silently degrades to the
// fallback when the primary errors out, probing it again after a minute.
type FailoverTokenCache struct {
	primary   domain.TokenCache
	fallback  domain.TokenCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverTokenCache(primary, fallback domain.TokenCache, logger *zerolog.Logger) *FailoverTokenCache {
	return &FailoverTokenCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverTokenCache) GetToken(ctx context.Context, operatorID, corpID string) (string, error) {
	if !r.isDown.Load() {
		token, err := r.primary.GetToken(ctx, operatorID, corpID)
		if err == nil || errors.Is(err, database.ErrNotFound) {
			return token, err
		}
		r.logger.Error().Err(err).Msg("Primary token cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		token, err := r.primary.GetToken(ctx, operatorID, corpID)
		if err == nil || errors.Is(err, database.ErrNotFound) {
			r.isDown.Store(false)
			return token, err
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetToken(ctx, operatorID, corpID)
}

func (r *FailoverTokenCache) SetToken(ctx context.Context, operatorID, corpID, token string, ttl time.Duration) error {
	if !r.isDown.Load() {
		err := r.primary.SetToken(ctx, operatorID, corpID, token, ttl)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary token cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.SetToken(ctx, operatorID, corpID, token, ttl)
}

func (r *FailoverTokenCache) DeleteToken(ctx context.Context, operatorID, corpID string) error {
	if !r.isDown.Load() {
		err := r.primary.DeleteToken(ctx, operatorID, corpID)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary token cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.DeleteToken(ctx, operatorID, corpID)
}
