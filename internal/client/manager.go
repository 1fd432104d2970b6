package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

const sweepTimeout = 10 * time.Second

// Manager owns the handles of the calls the user takes part in and
// routes server notifications to them.
type Manager struct {
	api *API

	mu      sync.Mutex
	handles map[domain.CallID]*Handle

	onRing func(domain.RingPayload)
	onEnd  func(domain.CallID)
}

type ManagerOption func(*Manager)

// WithRingHandler sets the function run for every incoming call. It runs
// on the notification stream and must not block.
func WithRingHandler(fn func(domain.RingPayload)) ManagerOption {
	return func(m *Manager) {
		m.onRing = fn
	}
}

func WithEndHandler(fn func(domain.CallID)) ManagerOption {
	return func(m *Manager) {
		m.onEnd = fn
	}
}

func NewManager(api *API, opts ...ManagerOption) *Manager {
	m := &Manager{
		api:     api,
		handles: map[domain.CallID]*Handle{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Place creates a call and opens its handle.
func (m *Manager) Place(ctx context.Context, chat string, t domain.CallType, invited []domain.UserID) (*Handle, error) {
	id, err := m.api.CreateCall(ctx, chat, t, invited)
	if err != nil {
		return nil, err
	}
	return m.Open(ctx, id)
}

// Open returns the handle of call id, fetching the call if it is not
// tracked yet.
func (m *Manager) Open(ctx context.Context, id domain.CallID) (*Handle, error) {
	if h, ok := m.Handle(id); ok {
		return h, nil
	}

	info, err := m.api.GetCallInfo(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handles[id]; ok {
		return h, nil
	}
	h := newHandle(m.api, info, m.forget)
	m.handles[id] = h
	return h, nil
}

func (m *Manager) Handle(id domain.CallID) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	return h, ok
}

// Close ends every handle locally without leaving the calls.
func (m *Manager) Close() {
	for _, h := range m.snapshot() {
		h.close()
	}
}

// Reconnected is meant as the stream's connect hook.
func (m *Manager) Reconnected() {
	if len(m.snapshot()) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if err := m.SweepStale(ctx); err != nil {
			log.Warn().Err(err).Msg("Stale call sweep failed")
		}
	}()
}

// SweepStale closes handles of calls the server no longer lists for the
// user. Notifications missed while the stream was down would otherwise
// leave them open forever.
func (m *Manager) SweepStale(ctx context.Context) error {
	ongoing, err := m.api.OngoingCalls(ctx)
	if err != nil {
		return err
	}
	live := make(map[domain.CallID]bool, len(ongoing))
	for _, id := range ongoing {
		live[id] = true
	}

	for _, h := range m.snapshot() {
		if live[h.ID()] {
			continue
		}
		log.Info().Str("call_id", h.ID().String()).Msg("Dropping stale call")
		m.ended(h)
	}
	return nil
}

// HandleNotification dispatches one server frame.
func (m *Manager) HandleNotification(n Notification) {
	logger := log.With().Str("method", n.Method).Logger()

	switch n.Method {
	case port.MethodRing:
		var p domain.RingPayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			logger.Warn().Err(err).Msg("Bad payload")
			return
		}
		if m.onRing != nil {
			m.onRing(p)
		}

	case port.MethodUpdateMembers:
		var p domain.MembersPayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			logger.Warn().Err(err).Msg("Bad payload")
			return
		}
		if h, ok := m.Handle(p.Call); ok {
			h.applyMembers(p.Members)
		}

	case port.MethodUpdateSDPs:
		var p domain.SDPsPayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			logger.Warn().Err(err).Msg("Bad payload")
			return
		}
		if h, ok := m.Handle(p.Call); ok {
			h.applySDPs(p.SDPs, p.Forced)
		}

	case port.MethodAddIceCandidate:
		var p domain.IceCandidatePayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			logger.Warn().Err(err).Msg("Bad payload")
			return
		}
		if h, ok := m.Handle(p.Call); ok {
			h.addCandidate(p.Member, p.Candidate)
		}

	case port.MethodEnd:
		var p domain.EndPayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			logger.Warn().Err(err).Msg("Bad payload")
			return
		}
		if h, ok := m.Handle(p.Call); ok {
			m.ended(h)
		} else if m.onEnd != nil {
			m.onEnd(p.Call)
		}

	default:
		logger.Debug().Msg("Ignoring unknown notification")
	}
}

// IsGone reports whether err means the call no longer exists and must be
// dropped locally.
func IsGone(err error) bool {
	return errors.Is(err, domain.ErrCallNotFound)
}

func (m *Manager) ended(h *Handle) {
	h.close()
	if m.onEnd != nil {
		m.onEnd(h.ID())
	}
}

func (m *Manager) forget(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles[h.ID()] == h {
		delete(m.handles, h.ID())
	}
}

func (m *Manager) snapshot() []*Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h)
	}
	return out
}
