package port

import (
	"context"
	"errors"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
)

var (
	ErrDeliveryTimeout = errors.New("delivery timed out")
	ErrDeliveryFailed  = errors.New("delivery failed")
)

// Remote methods invoked on call members.
const (
	MethodRing            = "ring"
	MethodUpdateMembers   = "updateCallMembers"
	MethodUpdateSDPs      = "updateSDPs"
	MethodAddIceCandidate = "addIceCandidate"
	MethodEnd             = "end"
)

type Notification struct {
	Method string
	// Key scopes aggregation, so that notifications for different calls
	// are never merged.
	Key string
	// Version orders payloads sharing a key. A merged batch keeps the
	// payload with the highest version.
	Version uint64
	Payload any
}

type Aggregation struct {
	// Window is how long notifications for the same target and key are
	// collected before sending. Later payloads replace earlier ones.
	Window time.Duration
	// SameData only merges notifications carrying identical payloads.
	SameData bool
}

type DeliveryOptions struct {
	Retries     int
	Timeout     time.Duration
	RetryDelay  time.Duration
	Aggregation Aggregation
	// PrecallWait delays the start of collection to absorb bursts.
	PrecallWait time.Duration
	// ExpectedReplies is the number of targets that must be reached for
	// the delivery to count as successful. Zero means all of them.
	ExpectedReplies  int
	Excluded         []domain.UserID
	NoErrorOnFailure bool
}

// EventDelivery reaches call members with notifications.
type EventDelivery interface {
	Deliver(ctx context.Context, targets []domain.UserID, opts DeliveryOptions, n Notification) error
	// FilterReachable keeps only the ids with at least one live session.
	FilterReachable(ids []domain.UserID) []domain.UserID
	// OnReachable registers fn to run whenever a client session of the
	// given users (re)connects.
	OnReachable(fn func(ids []domain.UserID)) (cancel func())
	// OnUnreachable registers fn to run when the last session of a user
	// goes away.
	OnUnreachable(fn func(id domain.UserID)) (cancel func())
}
