package service

import (
	"context"
	"errors"
	"time"

	"wxsync/internal/database"
	"wxsync/internal/domain"
	"wxsync/internal/models"

	"github.com/rs/zerolog"
)

// CredentialService resolves corp credentials from settings and keeps access
// tokens warm in the cache.
type CredentialService struct {
	settings   domain.SettingsStore
	tokenCache domain.TokenCache
	api        domain.ContactSource
	logger     *zerolog.Logger
}

func NewCredentialService(settings domain.SettingsStore, tokenCache domain.TokenCache, api domain.ContactSource, logger *zerolog.Logger) *CredentialService {
	return &CredentialService{
		settings:   settings,
		tokenCache: tokenCache,
		api:        api,
		logger:     logger,
	}
}

// GetCorpID returns the configured corp id for an operator.
func (s *CredentialService) GetCorpID(ctx context.Context, operatorID string) (string, error) {
	corpID, err := s.settings.GetSetting(ctx, operatorID, models.SettingCorpID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && corpID == "") {
		return "", ErrCorpNotConfigured
	}
	if err != nil {
		return "", err
	}
	return corpID, nil
}

// GetAccessToken returns a cached token, refreshing it from the API on a miss.
// Tokens are cached 10 seconds short of their reported lifetime.
func (s *CredentialService) GetAccessToken(ctx context.Context, operatorID string) (string, error) {
	corpID, err := s.GetCorpID(ctx, operatorID)
	if err != nil {
		return "", err
	}

	token, err := s.tokenCache.GetToken(ctx, operatorID, corpID)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		s.logger.Warn().Err(err).Str("operator_id", operatorID).Msg("token cache read failed, refreshing")
	}

	return s.refreshToken(ctx, operatorID, corpID)
}

func (s *CredentialService) refreshToken(ctx context.Context, operatorID, corpID string) (string, error) {
	secret, err := s.settings.GetSetting(ctx, operatorID, models.SettingCorpSecret)
	if errors.Is(err, database.ErrNotFound) || (err == nil && secret == "") {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", err
	}

	token, expiresIn, err := s.api.GetAccessToken(ctx, corpID, secret)
	if err != nil {
		return "", err
	}
	if expiresIn <= 0 {
		expiresIn = models.DefaultTokenTTL
	}

	ttl := time.Duration(expiresIn-models.TokenTTLBuffer) * time.Second
	if ttl < 10*time.Second {
		ttl = 10 * time.Second
	}
	if err := s.tokenCache.SetToken(ctx, operatorID, corpID, token, ttl); err != nil {
		s.logger.Warn().Err(err).Str("operator_id", operatorID).Msg("token cache write failed")
	}

	s.logger.Info().Str("operator_id", operatorID).Str("corp_id", corpID).Dur("ttl", ttl).Msg("access token refreshed")
	return token, nil
}

// RefreshAllTokens force-refreshes tokens for every operator with a corp
// configured. Run on a schedule so workers rarely see a cold cache.
func (s *CredentialService) RefreshAllTokens(ctx context.Context) error {
	operators, err := s.settings.GetOperatorsWithSetting(ctx, models.SettingCorpID)
	if err != nil {
		return err
	}

	for _, operatorID := range operators {
		corpID, err := s.GetCorpID(ctx, operatorID)
		if err != nil {
			continue
		}
		if _, err := s.refreshToken(ctx, operatorID, corpID); err != nil {
			s.logger.Error().Err(err).Str("operator_id", operatorID).Msg("scheduled token refresh failed")
		}
	}
	return nil
}
