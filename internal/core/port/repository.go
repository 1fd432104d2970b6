package port

import (
	"github.com/Wyydra/yacall/internal/core/domain"
)

// CallStore owns the table of ongoing calls. Every read returns a copy,
// every write goes through Update so that concurrent operations on the
// same call never observe a half-applied mutation.
type CallStore interface {
	Insert(call *domain.Call) error
	Get(id domain.CallID) (*domain.Call, error)
	// Update runs fn on a working copy of the call and stores the copy
	// only if fn succeeds, bumping its Revision. It returns the stored
	// copy.
	Update(id domain.CallID, fn func(call *domain.Call) error) (*domain.Call, error)
	Delete(id domain.CallID) bool
	List() []*domain.Call
}
