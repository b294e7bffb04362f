package repository

import (
	"context"
	"sync"
	"time"

	"wxsync/internal/database"
)

type MemoryTokenCache struct {
	tokens sync.Map
}

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

func (r *MemoryTokenCache) GetToken(ctx context.Context, operatorID, corpID string) (string, error) {
	val, ok := r.tokens.Load(tokenKey(operatorID, corpID))
	if !ok {
		return "", database.ErrNotFound
	}
	entry := val.(*tokenEntry)
	if time.Now().After(entry.expiresAt) {
		r.tokens.Delete(tokenKey(operatorID, corpID))
		return "", database.ErrNotFound
	}
	return entry.token, nil
}

func (r *MemoryTokenCache) SetToken(ctx context.Context, operatorID, corpID, token string, ttl time.Duration) error {
	r.tokens.Store(tokenKey(operatorID, corpID), &tokenEntry{
		token:     token,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (r *MemoryTokenCache) DeleteToken(ctx context.Context, operatorID, corpID string) error {
	r.tokens.Delete(tokenKey(operatorID, corpID))
	return nil
}
