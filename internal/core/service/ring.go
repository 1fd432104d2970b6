package service

import (
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// ring notifies targets of an incoming call.
func (s *CallService) ring(call *domain.Call, targets []domain.UserID, opts port.DeliveryOptions) {
	if len(targets) == 0 {
		return
	}
	log.Debug().
		Str("call_id", call.ID.String()).
		Strs("targets", userStrings(targets)).
		Msg("Ringing")

	s.notify(targets, opts, port.Notification{
		Method: port.MethodRing,
		Key:    call.ID.String(),
		Payload: domain.RingPayload{
			Call:   call.ID,
			Caller: call.Caller,
			Chat:   call.Chat,
			Type:   call.Type,
		},
	})
}

// handleReachable rings again the calls that were ringing a user whose
// session dropped before they answered.
func (s *CallService) handleReachable(ids []domain.UserID) {
	for _, call := range s.store.List() {
		var targets []domain.UserID
		for _, id := range ids {
			if domain.ContainsUser(call.Members.Ringing(), id) {
				targets = append(targets, id)
			}
		}
		s.ring(call, targets, s.policies.Rering)
	}
}

// handleUnreachable schedules an end check for every call id was a real
// participant of.
func (s *CallService) handleUnreachable(id domain.UserID) {
	for _, call := range s.store.List() {
		if domain.ContainsUser(call.Members.RealMembers(), id) {
			s.scheduleEndCheck(call.ID, s.timings.DisconnectGrace)
		}
	}
}
