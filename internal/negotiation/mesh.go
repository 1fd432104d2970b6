package negotiation

import (
	"context"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// Call is a Signaling that also exposes the member list.
type Call interface {
	Signaling
	Members() domain.Members
	MembersChanged() <-chan struct{}
}

// Mesh runs one Loop per participant of a call.
type Mesh struct {
	call    Call
	factory Factory
	opts    []LoopOption

	mu    sync.Mutex
	loops map[domain.UserID]context.CancelFunc
}

func NewMesh(call Call, factory Factory, opts ...LoopOption) *Mesh {
	return &Mesh{
		call:    call,
		factory: factory,
		opts:    opts,
		loops:   map[domain.UserID]context.CancelFunc{},
	}
}

// Run follows the member list until ctx is done or the call ends, and
// waits for every loop to stop.
func (m *Mesh) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		changed := m.call.MembersChanged()
		m.sync(ctx, &wg)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.call.Done():
			return nil
		case <-changed:
		}
	}
}

// Peers lists the members a loop currently runs for.
func (m *Mesh) Peers() []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.UserID, 0, len(m.loops))
	for id := range m.loops {
		out = append(out, id)
	}
	return out
}

func (m *Mesh) sync(ctx context.Context, wg *sync.WaitGroup) {
	self := m.call.Self()
	want := domain.WithoutUsers(m.call.Members().RealMembers(), self)

	m.mu.Lock()
	defer m.mu.Unlock()

	for peer, stop := range m.loops {
		if !domain.ContainsUser(want, peer) {
			stop()
			delete(m.loops, peer)
		}
	}

	for _, peer := range want {
		if _, ok := m.loops[peer]; ok {
			continue
		}
		loopCtx, stop := context.WithCancel(ctx)
		m.loops[peer] = stop
		loop := NewLoop(m.call, peer, m.factory, m.opts...)

		wg.Add(1)
		go func(peer domain.UserID) {
			defer wg.Done()
			if err := loop.Run(loopCtx); err != nil && loopCtx.Err() == nil {
				log.Warn().Err(err).Str("peer", peer.String()).Msg("Negotiation stopped")
			}
		}(peer)
	}
}
