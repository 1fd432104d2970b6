package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// UpdateSDPData stores the SDP member sent for each peer of fragment into
// the room they share and tells member which field it wrote. Sending SDP
// data implies joining the call. Peers with a non-empty value are
// notified of the change; an empty value only probes the role.
func (s *CallService) UpdateSDPData(ctx context.Context, id domain.CallID, member domain.UserID, fragment domain.SDPFragment, forced bool) (domain.SDPUpdateResults, error) {
	if err := s.Connect(ctx, member, id); err != nil {
		return nil, err
	}

	var (
		results domain.SDPUpdateResults
		touched []domain.UserID
	)
	now := s.now().UnixMilli()
	updated, err := s.store.Update(id, func(c *domain.Call) error {
		results = domain.SDPUpdateResults{}
		touched = nil
		for i := range c.Rooms {
			room := &c.Rooms[i]
			if !room.Involves(member) {
				continue
			}
			peer := room.Other(member)
			sdp, ok := fragment[peer]
			if !ok {
				continue
			}
			kind, _ := room.Write(member, sdp, now)
			results[peer] = kind
			if sdp != "" {
				touched = append(touched, peer)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l := log.With().Str("call_id", id.String()).Str("member", member.String()).Logger()
	for peer := range fragment {
		if _, ok := results[peer]; !ok {
			l.Debug().Str("peer", peer.String()).Msg("Ignoring SDP for a peer without a room")
		}
	}
	if s.metrics != nil {
		for _, peer := range touched {
			s.metrics.SDPWritten(results[peer])
		}
	}

	s.propagateSDPUpdates(updated, member, touched, forced)
	return results, nil
}

// SendIceCandidate forwards candidate from member to target. Delivery is
// best effort; only lookup and authorization failures are returned.
func (s *CallService) SendIceCandidate(ctx context.Context, id domain.CallID, member, target domain.UserID, candidate json.RawMessage) error {
	call, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, member, call); err != nil {
		return err
	}
	if len(candidate) == 0 || string(candidate) == "null" {
		return fmt.Errorf("empty candidate: %w", domain.ErrInvalidArgument)
	}
	if !domain.ContainsUser(call.Members.Invited, target) {
		return fmt.Errorf("%s is not part of call %s: %w", target, id, domain.ErrInvalidArgument)
	}

	s.sendIceCandidate(call, member, target, candidate)
	return nil
}

// propagateSDPUpdates sends each target the rooms it is part of. A forced
// update only carries the room shared with the writer, so that the other
// peers of the target are not restarted.
func (s *CallService) propagateSDPUpdates(call *domain.Call, writer domain.UserID, targets []domain.UserID, forced bool) {
	for _, target := range targets {
		table := call.SDPTableFor(target)
		if forced {
			table = domain.SDPTable{writer: table[writer]}
		}
		s.sendSDPs(call, target, table, forced)
	}
}

// propagateMemberListChanges sends the full member lists to everyone
// still concerned by the call.
func (s *CallService) propagateMemberListChanges(call *domain.Call) {
	s.sendMembers(call, call.Members.Active())
}
