package auth

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// Whitelist implements port.Authorizer. Users pass when they are in the
// whitelist of the checked resource or were granted the permission.
type Whitelist struct {
	grants map[string]map[domain.UserID]struct{}
}

// NewWhitelist builds an authorizer from permission -> granted users.
func NewWhitelist(grants map[string][]domain.UserID) *Whitelist {
	w := &Whitelist{grants: make(map[string]map[domain.UserID]struct{}, len(grants))}
	for perm, users := range grants {
		set := make(map[domain.UserID]struct{}, len(users))
		for _, u := range users {
			set[u] = struct{}{}
		}
		w.grants[perm] = set
	}
	return w
}

func (w *Whitelist) CheckWhitelisted(_ context.Context, userid domain.UserID, whitelist []domain.UserID, permission string) error {
	if userid == "" {
		return domain.ErrUnauthorized
	}
	if domain.ContainsUser(whitelist, userid) {
		return nil
	}
	if _, ok := w.grants[permission][userid]; ok && permission != "" {
		return nil
	}
	return domain.ErrUnauthorized
}
