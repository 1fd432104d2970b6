package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// Directory implements port.ProfileLookup from a static set of profiles.
// Unknown users resolve to a profile holding only their id.
type Directory struct {
	mu       sync.RWMutex
	profiles map[domain.UserID]domain.Profile
}

func NewDirectory(profiles []domain.Profile) *Directory {
	d := &Directory{profiles: make(map[domain.UserID]domain.Profile, len(profiles))}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

func (d *Directory) Put(p domain.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}

func (d *Directory) GetProfiles(_ context.Context, ids []domain.UserID) ([]domain.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.Profile, 0, len(ids))
	for _, id := range ids {
		p, ok := d.profiles[id]
		if !ok {
			p = domain.Profile{ID: id}
		}
		out = append(out, p)
	}
	return out, nil
}
