package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// CallService is the registry of ongoing calls. It owns membership and
// room state; notifications to members are sent in the background and
// never fail the operation that caused them.
type CallService struct {
	store    port.CallStore
	delivery port.EventDelivery
	auth     port.Authorizer
	profiles port.ProfileLookup
	events   port.CallEventPublisher
	metrics  port.CallMetrics
	timings  Timings
	policies Policies
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	timers    map[*time.Timer]struct{}
	listeners []func()
}

func NewCallService(store port.CallStore, delivery port.EventDelivery, auth port.Authorizer, opts ...Option) *CallService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &CallService{
		store:    store,
		delivery: delivery,
		auth:     auth,
		timings:  DefaultTimings(),
		policies: DefaultPolicies(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.listeners = append(s.listeners,
		delivery.OnReachable(s.handleReachable),
		delivery.OnUnreachable(s.handleUnreachable),
	)
	return s
}

// Shutdown stops pending end checks and waits for in-flight notifications
// until ctx expires.
func (s *CallService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	for _, cancel := range listeners {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	defer s.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateCall registers a new call, connects the caller and rings every
// other invited member.
func (s *CallService) CreateCall(ctx context.Context, caller domain.UserID, chat string, t domain.CallType, invited []domain.UserID) (domain.CallID, error) {
	if caller == "" {
		return "", fmt.Errorf("caller is required: %w", domain.ErrInvalidArgument)
	}

	call := domain.NewCall(caller, chat, domain.ParseCallType(string(t)), invited, s.now())
	if err := s.store.Insert(call); err != nil {
		return "", err
	}

	log.Info().
		Str("call_id", call.ID.String()).
		Str("caller", caller.String()).
		Str("type", string(call.Type)).
		Int("invited", len(call.Members.Invited)).
		Msg("Call created")

	if s.metrics != nil {
		s.metrics.CallStarted(call.Type)
	}
	s.publish(domain.EventCallCreated, call, caller, "")

	if err := s.Connect(ctx, caller, call.ID); err != nil {
		return "", err
	}

	current, err := s.store.Get(call.ID)
	if err != nil {
		return "", err
	}
	s.ring(current, current.Members.Ringing(), s.policies.Ring)

	return call.ID, nil
}

// Connect makes member a participant of the call and pairs it with every
// participant it has no room with yet. Connecting twice is a no-op.
func (s *CallService) Connect(ctx context.Context, member domain.UserID, id domain.CallID) error {
	call, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, member, call); err != nil {
		return err
	}

	joined := false
	updated, err := s.store.Update(id, func(c *domain.Call) error {
		if domain.ContainsUser(c.Members.Rejected, member) {
			return fmt.Errorf("%s left call %s: %w", member, id, domain.ErrInvalidState)
		}
		if domain.ContainsUser(c.Members.Acknowledged, member) {
			return nil
		}
		joined = true
		c.Rooms = append(c.Rooms, pairNewMember(c, member)...)
		c.Members.Acknowledged = domain.UnionUsers(c.Members.Acknowledged, member)
		return nil
	})
	if err != nil {
		return err
	}
	if !joined {
		return nil
	}

	log.Info().
		Str("call_id", id.String()).
		Str("member", member.String()).
		Int("rooms", len(updated.Rooms)).
		Msg("Member connected")

	if s.metrics != nil {
		s.metrics.MemberJoined()
	}
	s.publish(domain.EventMemberJoined, updated, member, "")
	s.propagateMemberListChanges(updated)
	return nil
}

// LeaveCall marks member as gone and checks whether the call should end
// once the leave grace period is over.
func (s *CallService) LeaveCall(ctx context.Context, member domain.UserID, id domain.CallID) error {
	call, err := s.store.Get(id)
	if err != nil {
		return nil
	}
	if err := s.authorize(ctx, member, call); err != nil {
		return err
	}

	left := false
	updated, err := s.store.Update(id, func(c *domain.Call) error {
		if domain.ContainsUser(c.Members.Rejected, member) {
			return nil
		}
		left = true
		c.Members.Rejected = domain.UnionUsers(c.Members.Rejected, member)
		return nil
	})
	if err != nil {
		// The call ended between the two reads.
		return nil
	}

	if left {
		log.Info().
			Str("call_id", id.String()).
			Str("member", member.String()).
			Msg("Member left")

		if s.metrics != nil {
			s.metrics.MemberLeft()
		}
		s.publish(domain.EventMemberLeft, updated, member, "")
		s.propagateMemberListChanges(updated)
	}

	s.scheduleEndCheck(id, s.timings.LeaveGrace)
	return nil
}

func (s *CallService) GetCallInfo(ctx context.Context, id domain.CallID, userid domain.UserID) (*domain.CallInfo, error) {
	call, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userid, call); err != nil {
		return nil, err
	}

	info := &domain.CallInfo{Call: *call, Profiles: []domain.Profile{}}
	if s.profiles == nil {
		return info, nil
	}

	ids := domain.UnionUsers(call.Members.Invited, call.Members.Acknowledged...)
	profiles, err := s.profiles.GetProfiles(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Str("call_id", id.String()).Msg("Profile lookup failed")
		return info, nil
	}
	info.Profiles = profiles
	return info, nil
}

// GetOngoingCallsFor returns the calls correspondent is invited to and has
// not left.
func (s *CallService) GetOngoingCallsFor(correspondent domain.UserID) []domain.CallID {
	ids := []domain.CallID{}
	for _, call := range s.store.List() {
		if domain.ContainsUser(call.Members.Active(), correspondent) {
			ids = append(ids, call.ID)
		}
	}
	return ids
}

// attemptCallEnd deletes the call when at most one real participant is
// left or none of them is reachable anymore.
func (s *CallService) attemptCallEnd(id domain.CallID) {
	call, err := s.store.Get(id)
	if err != nil {
		return
	}

	participants := call.Members.RealMembers()
	reachable := s.delivery.FilterReachable(participants)
	if len(participants) > 1 && len(reachable) > 0 {
		return
	}
	if !s.store.Delete(id) {
		return
	}

	lifetime := s.now().Sub(time.UnixMilli(call.Time.Created))
	log.Info().
		Str("call_id", id.String()).
		Int("real_members", len(participants)).
		Int("reachable", len(reachable)).
		Dur("lifetime", lifetime).
		Msg("Call ended")

	if s.metrics != nil {
		s.metrics.CallEnded(call.Type, lifetime)
	}
	reason := "alone"
	if len(participants) > 1 {
		reason = "unreachable"
	}
	s.publish(domain.EventCallEnded, call, "", reason)

	// Members still ringing are told as well so that their prompt goes away.
	targets := s.delivery.FilterReachable(domain.UnionUsers(participants, call.Members.Ringing()...))
	s.sendEnd(call, targets)
}

func (s *CallService) scheduleEndCheck(id domain.CallID, after time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(after, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		s.attemptCallEnd(id)
	})
	s.timers[t] = struct{}{}
}

func (s *CallService) authorize(ctx context.Context, userid domain.UserID, call *domain.Call) error {
	if err := s.auth.CheckWhitelisted(ctx, userid, call.Members.Invited, port.PermissionSupervise); err != nil {
		return fmt.Errorf("%s on call %s: %w", userid, call.ID, err)
	}
	return nil
}
