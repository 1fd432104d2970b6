package ws

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/metrics"
	"github.com/rs/zerolog/log"
)

// hubOp is a session change; done is closed once the session table
// reflects it.
type hubOp struct {
	s    Session
	done chan struct{}
}

// Hub tracks the live sessions of every user and tells listeners when a
// user becomes reachable or unreachable. Listeners run on the hub loop
// and must not block.
type Hub struct {
	mu       sync.RWMutex
	sessions map[domain.UserID]map[Session]struct{}

	register   chan hubOp
	unregister chan hubOp
	quit       chan struct{}
	stopOnce   sync.Once

	lmu       sync.Mutex
	nextID    int
	onReach   map[int]func([]domain.UserID)
	onUnreach map[int]func(domain.UserID)

	metrics *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		sessions:   make(map[domain.UserID]map[Session]struct{}),
		register:   make(chan hubOp),
		unregister: make(chan hubOp),
		quit:       make(chan struct{}),
		onReach:    make(map[int]func([]domain.UserID)),
		onUnreach:  make(map[int]func(domain.UserID)),
		metrics:    m,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for _, set := range h.sessions {
				for s := range set {
					s.Close()
				}
			}
			h.sessions = make(map[domain.UserID]map[Session]struct{})
			h.mu.Unlock()
			return

		case op := <-h.register:
			s := op.s
			h.mu.Lock()
			set, ok := h.sessions[s.UserID()]
			if !ok {
				set = make(map[Session]struct{})
				h.sessions[s.UserID()] = set
			}
			set[s] = struct{}{}
			h.mu.Unlock()
			close(op.done)

			h.metrics.SessionOpened()
			log.Info().Str("session_id", s.ID()).Str("user_id", s.UserID().String()).Msg("Session registered")
			h.fireReachable([]domain.UserID{s.UserID()})

		case op := <-h.unregister:
			s := op.s
			h.mu.Lock()
			set, ok := h.sessions[s.UserID()]
			if ok {
				_, ok = set[s]
				delete(set, s)
			}
			gone := ok && len(set) == 0
			if gone {
				delete(h.sessions, s.UserID())
			}
			h.mu.Unlock()
			close(op.done)

			if !ok {
				continue
			}
			s.Close()
			h.metrics.SessionClosed()
			log.Info().Str("session_id", s.ID()).Str("user_id", s.UserID().String()).Msg("Session unregistered")
			if gone {
				h.fireUnreachable(s.UserID())
			}
		}
	}
}

// Register adds s and returns once it is reachable.
func (h *Hub) Register(s Session) {
	op := hubOp{s: s, done: make(chan struct{})}
	select {
	case h.register <- op:
		<-op.done
	case <-h.quit:
		s.Close()
	}
}

func (h *Hub) Unregister(s Session) {
	op := hubOp{s: s, done: make(chan struct{})}
	select {
	case h.unregister <- op:
		<-op.done
	case <-h.quit:
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}

// SessionsOf returns the live sessions of id.
func (h *Hub) SessionsOf(id domain.UserID) []Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Session, 0, len(h.sessions[id]))
	for s := range h.sessions[id] {
		out = append(out, s)
	}
	return out
}

func (h *Hub) FilterReachable(ids []domain.UserID) []domain.UserID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []domain.UserID
	for _, id := range ids {
		if len(h.sessions[id]) > 0 {
			out = append(out, id)
		}
	}
	return out
}

func (h *Hub) OnReachable(fn func(ids []domain.UserID)) func() {
	h.lmu.Lock()
	defer h.lmu.Unlock()

	id := h.nextID
	h.nextID++
	h.onReach[id] = fn
	return func() {
		h.lmu.Lock()
		delete(h.onReach, id)
		h.lmu.Unlock()
	}
}

func (h *Hub) OnUnreachable(fn func(id domain.UserID)) func() {
	h.lmu.Lock()
	defer h.lmu.Unlock()

	id := h.nextID
	h.nextID++
	h.onUnreach[id] = fn
	return func() {
		h.lmu.Lock()
		delete(h.onUnreach, id)
		h.lmu.Unlock()
	}
}

func (h *Hub) fireReachable(ids []domain.UserID) {
	h.lmu.Lock()
	fns := make([]func([]domain.UserID), 0, len(h.onReach))
	for _, fn := range h.onReach {
		fns = append(fns, fn)
	}
	h.lmu.Unlock()

	for _, fn := range fns {
		fn(ids)
	}
}

func (h *Hub) fireUnreachable(id domain.UserID) {
	h.lmu.Lock()
	fns := make([]func(domain.UserID), 0, len(h.onUnreach))
	for _, fn := range h.onUnreach {
		fns = append(fns, fn)
	}
	h.lmu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}
