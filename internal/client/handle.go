package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

const candidateBuffer = 128

// Handle is the local view of one call, kept current by the manager from
// server notifications.
type Handle struct {
	api     *API
	self    domain.UserID
	onClose func(*Handle)

	mu      sync.Mutex
	call    domain.Call
	sdps    domain.SDPTable
	forced  map[domain.UserID]bool
	watches map[domain.UserID]*peerWatch
	pending map[domain.UserID][]json.RawMessage
	members chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

type peerWatch struct {
	changes    chan struct{}
	candidates chan json.RawMessage
}

func newHandle(api *API, info *domain.CallInfo, onClose func(*Handle)) *Handle {
	h := &Handle{
		api:     api,
		self:    api.User(),
		onClose: onClose,
		call:    *info.Call.Clone(),
		sdps:    info.Call.SDPTableFor(api.User()),
		forced:  map[domain.UserID]bool{},
		watches: map[domain.UserID]*peerWatch{},
		pending: map[domain.UserID][]json.RawMessage{},
		members: make(chan struct{}),
		done:    make(chan struct{}),
	}
	return h
}

func (h *Handle) ID() domain.CallID {
	return h.call.ID
}

func (h *Handle) Self() domain.UserID {
	return h.self
}

func (h *Handle) CallType() domain.CallType {
	return h.call.Type
}

func (h *Handle) Caller() domain.UserID {
	return h.call.Caller
}

// Members returns a copy of the latest member snapshot.
func (h *Handle) Members() domain.Members {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.call.Members.Clone()
}

// MembersChanged returns a channel closed at the next member change.
func (h *Handle) MembersChanged() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.members
}

// PeerLeft reports whether peer rejected or left the call.
func (h *Handle) PeerLeft(peer domain.UserID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return domain.ContainsUser(h.call.Members.Rejected, peer)
}

// SDP returns the current room state shared with peer.
func (h *Handle) SDP(peer domain.UserID) (domain.SDPView, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	view, ok := h.sdps[peer]
	return view, ok
}

// TakeForced reports and clears a pending forced update from peer.
func (h *Handle) TakeForced(peer domain.UserID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	forced := h.forced[peer]
	delete(h.forced, peer)
	return forced
}

// Watch subscribes to SDP changes and ICE candidates coming from peer.
// Candidates received before the first watch are replayed. Only one
// watch per peer is live; a new one replaces the previous.
func (h *Handle) Watch(peer domain.UserID) (<-chan struct{}, <-chan json.RawMessage, func()) {
	w := &peerWatch{
		changes:    make(chan struct{}, 1),
		candidates: make(chan json.RawMessage, candidateBuffer),
	}

	h.mu.Lock()
	h.watches[peer] = w
	for _, c := range h.pending[peer] {
		w.push(c)
	}
	delete(h.pending, peer)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.watches[peer] == w {
			delete(h.watches, peer)
		}
	}
	return w.changes, w.candidates, cancel
}

// Done is closed when the call ended or was left.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Connect(ctx context.Context) error {
	return h.api.Connect(ctx, h.call.ID)
}

// Exit leaves the call and closes the handle.
func (h *Handle) Exit(ctx context.Context) error {
	defer h.close()
	return h.api.LeaveCall(ctx, h.call.ID)
}

// UpdateSDPData pushes the local description for peer and returns which
// field it was written to. An empty sdp only probes the role.
func (h *Handle) UpdateSDPData(ctx context.Context, peer domain.UserID, sdp string, forced bool) (domain.SDPKind, error) {
	results, err := h.api.UpdateSDPData(ctx, h.call.ID, domain.SDPFragment{peer: sdp}, forced)
	if err != nil {
		return "", err
	}
	kind, ok := results[peer]
	if !ok {
		return "", fmt.Errorf("no room with %s: %w", peer, domain.ErrInvalidState)
	}

	h.mu.Lock()
	view := h.sdps[peer]
	view.IsSuperior = kind == domain.SDPOffer
	// The server stamp of a write is unknown here; a zero time lets the
	// next server snapshot win.
	if sdp != "" {
		if kind == domain.SDPOffer {
			view.Offer, view.OfferTime = sdp, 0
		} else {
			view.Answer, view.AnswerTime = sdp, 0
		}
	}
	h.sdps[peer] = view
	h.mu.Unlock()
	return kind, nil
}

func (h *Handle) SendIceCandidate(ctx context.Context, peer domain.UserID, candidate json.RawMessage) error {
	return h.api.SendIceCandidate(ctx, h.call.ID, peer, candidate)
}

// applyMembers merges a membership snapshot. Every set only grows during
// a call, so a union tolerates reordered broadcasts.
func (h *Handle) applyMembers(m domain.Members) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur := h.call.Members
	next := domain.Members{
		Invited:      domain.UnionUsers(cur.Invited, m.Invited...),
		Acknowledged: domain.UnionUsers(cur.Acknowledged, m.Acknowledged...),
		Rejected:     domain.UnionUsers(cur.Rejected, m.Rejected...),
	}
	if len(next.Invited) == len(cur.Invited) &&
		len(next.Acknowledged) == len(cur.Acknowledged) &&
		len(next.Rejected) == len(cur.Rejected) {
		return
	}
	h.call.Members = next

	for peer, w := range h.watches {
		if domain.ContainsUser(next.Rejected, peer) {
			w.signal()
		}
	}
	close(h.members)
	h.members = make(chan struct{})
}

// applySDPs merges a table, keeping for each field the value with the
// newest timestamp.
func (h *Handle) applySDPs(table domain.SDPTable, forced bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for peer, in := range table {
		cur, known := h.sdps[peer]
		next := mergeView(cur, in)
		if known && next == cur && !forced {
			continue
		}
		h.sdps[peer] = next
		if forced {
			h.forced[peer] = true
		}
		if w, ok := h.watches[peer]; ok {
			w.signal()
		}
	}
}

func mergeView(cur, in domain.SDPView) domain.SDPView {
	out := cur
	out.IsSuperior = in.IsSuperior
	if in.OfferTime > cur.OfferTime {
		out.Offer, out.OfferTime = in.Offer, in.OfferTime
	}
	if in.AnswerTime > cur.AnswerTime {
		out.Answer, out.AnswerTime = in.Answer, in.AnswerTime
	}
	return out
}

func (h *Handle) addCandidate(from domain.UserID, candidate json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if w, ok := h.watches[from]; ok {
		w.push(candidate)
		return
	}
	if len(h.pending[from]) >= candidateBuffer {
		log.Warn().Str("call_id", h.call.ID.String()).Str("peer", from.String()).Msg("Dropping ICE candidate, queue full")
		return
	}
	h.pending[from] = append(h.pending[from], candidate)
}

func (h *Handle) close() {
	h.closeOnce.Do(func() {
		close(h.done)
		if h.onClose != nil {
			h.onClose(h)
		}
	})
}

func (w *peerWatch) signal() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

func (w *peerWatch) push(c json.RawMessage) {
	select {
	case w.candidates <- c:
	default:
		log.Warn().Msg("Dropping ICE candidate, watcher is not draining")
	}
}
