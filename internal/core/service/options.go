package service

import (
	"time"

	"github.com/Wyydra/yacall/internal/core/port"
)

type Timings struct {
	// LeaveGrace delays the end check that follows a leave, so that a
	// member reloading its client does not end the call.
	LeaveGrace time.Duration
	// DisconnectGrace delays the end check that follows the loss of the
	// last session of a real member.
	DisconnectGrace time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		LeaveGrace:      5 * time.Second,
		DisconnectGrace: 30 * time.Second,
	}
}

// Policies holds the delivery options of every notification the
// registry sends.
type Policies struct {
	Ring         port.DeliveryOptions
	Rering       port.DeliveryOptions
	IceCandidate port.DeliveryOptions
	SDPUpdate    port.DeliveryOptions
	Members      port.DeliveryOptions
	End          port.DeliveryOptions
}

func DefaultPolicies() Policies {
	return Policies{
		Ring: port.DeliveryOptions{
			Retries:     5,
			Timeout:     10 * time.Second,
			RetryDelay:  500 * time.Millisecond,
			Aggregation: port.Aggregation{Window: 2 * time.Second},
		},
		Rering: port.DeliveryOptions{
			Retries:         5,
			Timeout:         10 * time.Second,
			RetryDelay:      500 * time.Millisecond,
			Aggregation:     port.Aggregation{Window: 2 * time.Second, SameData: true},
			ExpectedReplies: 1,
		},
		IceCandidate: port.DeliveryOptions{
			Retries:         15,
			Timeout:         10 * time.Second,
			RetryDelay:      250 * time.Millisecond,
			ExpectedReplies: 1,
		},
		SDPUpdate: port.DeliveryOptions{
			Aggregation:     port.Aggregation{Window: 250 * time.Millisecond},
			ExpectedReplies: 1,
		},
		Members: port.DeliveryOptions{
			Aggregation: port.Aggregation{Window: 2 * time.Second},
			PrecallWait: 50 * time.Millisecond,
		},
		End: port.DeliveryOptions{
			Aggregation:      port.Aggregation{Window: time.Second},
			NoErrorOnFailure: true,
		},
	}
}

type Option func(*CallService)

func WithProfiles(p port.ProfileLookup) Option {
	return func(s *CallService) { s.profiles = p }
}

func WithEvents(p port.CallEventPublisher) Option {
	return func(s *CallService) { s.events = p }
}

func WithMetrics(m port.CallMetrics) Option {
	return func(s *CallService) { s.metrics = m }
}

func WithTimings(t Timings) Option {
	return func(s *CallService) { s.timings = t }
}

func WithPolicies(p Policies) Option {
	return func(s *CallService) { s.policies = p }
}
