package domain

import (
	"strings"

	"github.com/google/uuid"
)

type UserID string

func (id UserID) String() string {
	return string(id)
}

type CallID string

// NewCallID returns two concatenated random uuids without dashes, long
// enough that ids are never guessed from one another.
func NewCallID() CallID {
	a := strings.ReplaceAll(uuid.NewString(), "-", "")
	b := strings.ReplaceAll(uuid.NewString(), "-", "")
	return CallID(a + b)
}

func (id CallID) String() string {
	return string(id)
}

// ContainsUser reports whether id is in set.
func ContainsUser(set []UserID, id UserID) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

// UnionUsers returns a new slice holding set followed by every id of add
// not yet present, preserving first-seen order.
func UnionUsers(set []UserID, add ...UserID) []UserID {
	out := make([]UserID, 0, len(set)+len(add))
	seen := make(map[UserID]struct{}, len(set)+len(add))
	for _, group := range [][]UserID{set, add} {
		for _, id := range group {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// WithoutUsers returns the members of set that are not in remove.
func WithoutUsers(set []UserID, remove ...UserID) []UserID {
	out := make([]UserID, 0, len(set))
	for _, id := range set {
		if !ContainsUser(remove, id) {
			out = append(out, id)
		}
	}
	return out
}
