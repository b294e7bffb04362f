package service

import (
	"context"

	"wxsync/internal/domain"

	"github.com/rs/zerolog"
)

// RosterService keeps the local staff roster aligned with the corp's follow
// user list.
type RosterService struct {
	roster      domain.RosterStore
	credentials *CredentialService
	api         domain.ContactSource
	logger      *zerolog.Logger
}

func NewRosterService(roster domain.RosterStore, credentials *CredentialService, api domain.ContactSource, logger *zerolog.Logger) *RosterService {
	return &RosterService{
		roster:      roster,
		credentials: credentials,
		api:         api,
		logger:      logger,
	}
}

// SyncRoster replaces the stored roster with the follow user list the API
// reports right now.
func (s *RosterService) SyncRoster(ctx context.Context, operatorID string) (int, error) {
	corpID, err := s.credentials.GetCorpID(ctx, operatorID)
	if err != nil {
		return 0, err
	}

	token, err := s.credentials.GetAccessToken(ctx, operatorID)
	if err != nil {
		return 0, err
	}

	staffIDs, err := s.api.ListFollowUsers(ctx, token)
	if err != nil {
		return 0, err
	}

	if err := s.roster.ReplaceStaffAccounts(ctx, operatorID, corpID, staffIDs); err != nil {
		return 0, err
	}

	s.logger.Info().Str("operator_id", operatorID).Int("staff_count", len(staffIDs)).Msg("staff roster synced")
	return len(staffIDs), nil
}
