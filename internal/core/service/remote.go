package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// background runs fn on its own goroutine unless the service is shutting
// down.
func (s *CallService) background(fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *CallService) notify(targets []domain.UserID, opts port.DeliveryOptions, n port.Notification) {
	if len(targets) == 0 {
		return
	}
	s.background(func(ctx context.Context) {
		err := s.delivery.Deliver(ctx, targets, opts, n)
		if err == nil {
			return
		}
		ev := log.Warn()
		if errors.Is(err, port.ErrDeliveryTimeout) || errors.Is(err, context.Canceled) {
			ev = log.Debug()
		}
		ev.Err(err).
			Str("method", n.Method).
			Str("key", n.Key).
			Strs("targets", userStrings(targets)).
			Msg("Notification not delivered")
	})
}

func (s *CallService) sendMembers(call *domain.Call, targets []domain.UserID) {
	opts := s.policies.Members
	if opts.ExpectedReplies == 0 && len(targets) > 1 {
		opts.ExpectedReplies = len(targets) - 1
	}
	s.notify(targets, opts, port.Notification{
		Method:  port.MethodUpdateMembers,
		Key:     call.ID.String(),
		Version: call.Revision,
		Payload: domain.MembersPayload{Call: call.ID, Members: call.Members.Clone()},
	})
}

func (s *CallService) sendSDPs(call *domain.Call, target domain.UserID, table domain.SDPTable, forced bool) {
	key := call.ID.String()
	if forced {
		// A forced update must reach the target with its flag set, so it
		// never merges with plain updates.
		key += "/forced"
	}
	s.notify([]domain.UserID{target}, s.policies.SDPUpdate, port.Notification{
		Method:  port.MethodUpdateSDPs,
		Key:     key,
		Version: call.Revision,
		Payload: domain.SDPsPayload{Call: call.ID, SDPs: table, Forced: forced},
	})
}

func (s *CallService) sendIceCandidate(call *domain.Call, from, target domain.UserID, candidate json.RawMessage) {
	s.notify([]domain.UserID{target}, s.policies.IceCandidate, port.Notification{
		Method:  port.MethodAddIceCandidate,
		Key:     call.ID.String(),
		Version: call.Revision,
		Payload: domain.IceCandidatePayload{
			Call:      call.ID,
			Member:    from,
			Candidate: candidate,
		},
	})
}

func (s *CallService) sendEnd(call *domain.Call, targets []domain.UserID) {
	s.notify(targets, s.policies.End, port.Notification{
		Method:  port.MethodEnd,
		Key:     call.ID.String(),
		Version: call.Revision,
		Payload: domain.EndPayload{Call: call.ID},
	})
}

func (s *CallService) publish(t domain.CallEventType, call *domain.Call, member domain.UserID, reason string) {
	if s.events == nil {
		return
	}
	ev := domain.CallEvent{
		Type:     t,
		CallID:   call.ID,
		Chat:     call.Chat,
		CallType: call.Type,
		Member:   member,
		Members:  call.Members.Clone(),
		Reason:   reason,
		At:       s.now().UTC(),
	}
	s.background(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.events.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).
				Str("call_id", call.ID.String()).
				Str("event", string(t)).
				Msg("Call event not published")
		}
	})
}

func userStrings(ids []domain.UserID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
