package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// PermissionSupervise lets a user act on calls they were not invited to.
const PermissionSupervise = "permissions.chat.supervise"

type Authorizer interface {
	// CheckWhitelisted returns nil if userid is in whitelist or holds
	// permission, domain.ErrUnauthorized otherwise.
	CheckWhitelisted(ctx context.Context, userid domain.UserID, whitelist []domain.UserID, permission string) error
}

type ProfileLookup interface {
	GetProfiles(ctx context.Context, ids []domain.UserID) ([]domain.Profile, error)
}
