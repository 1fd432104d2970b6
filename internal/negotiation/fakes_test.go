package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/pion/webrtc/v4"
)

func fastTimings() Timings {
	return Timings{
		OfferDelay:    200 * time.Millisecond,
		OfferInterval: 100 * time.Millisecond,
		DebounceWait:  5 * time.Millisecond,
		DebounceMax:   20 * time.Millisecond,
		CandidatePoll: 5 * time.Millisecond,
		RestartDelay:  10 * time.Millisecond,
	}
}

// fakePeer follows the offer/answer state machine of a peer connection
// and reports connected once a negotiation completed.
type fakePeer struct {
	mu         sync.Mutex
	offers     int
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	signaling  webrtc.SignalingState
	conn       webrtc.PeerConnectionState
	candidates []webrtc.ICECandidateInit
	onICE      func(*webrtc.ICECandidate)
	onState    func(webrtc.PeerConnectionState)
	closed     bool
}

func newFakePeer() *fakePeer {
	return &fakePeer{signaling: webrtc.SignalingStateStable, conn: webrtc.PeerConnectionStateNew}
}

func (p *fakePeer) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%p-%d", p, p.offers)}, nil
}

func (p *fakePeer) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signaling != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-to-" + p.remote.SDP}, nil
}

func (p *fakePeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		if p.signaling != webrtc.SignalingStateStable && p.signaling != webrtc.SignalingStateHaveLocalOffer {
			p.mu.Unlock()
			return errors.New("bad state for local offer")
		}
		p.signaling = webrtc.SignalingStateHaveLocalOffer
	case webrtc.SDPTypeAnswer:
		if p.signaling != webrtc.SignalingStateHaveRemoteOffer {
			p.mu.Unlock()
			return errors.New("bad state for local answer")
		}
		p.signaling = webrtc.SignalingStateStable
	}
	p.local = &desc
	onICE := p.onICE
	p.mu.Unlock()

	if onICE != nil {
		go onICE(&webrtc.ICECandidate{
			Foundation: "1",
			Priority:   1,
			Address:    "127.0.0.1",
			Protocol:   webrtc.ICEProtocolUDP,
			Port:       5000,
			Typ:        webrtc.ICECandidateTypeHost,
			Component:  1,
		})
	}
	p.maybeConnect()
	return nil
}

func (p *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		if p.signaling != webrtc.SignalingStateStable && p.signaling != webrtc.SignalingStateHaveRemoteOffer {
			p.mu.Unlock()
			return errors.New("bad state for remote offer")
		}
		p.signaling = webrtc.SignalingStateHaveRemoteOffer
	case webrtc.SDPTypeAnswer:
		if p.signaling != webrtc.SignalingStateHaveLocalOffer {
			p.mu.Unlock()
			return errors.New("bad state for remote answer")
		}
		p.signaling = webrtc.SignalingStateStable
	}
	p.remote = &desc
	p.mu.Unlock()
	p.maybeConnect()
	return nil
}

func (p *fakePeer) maybeConnect() {
	p.mu.Lock()
	if p.signaling != webrtc.SignalingStateStable || p.local == nil || p.remote == nil || p.conn != webrtc.PeerConnectionStateNew {
		p.mu.Unlock()
		return
	}
	p.conn = webrtc.PeerConnectionStateConnected
	onState := p.onState
	p.mu.Unlock()
	if onState != nil {
		go onState(webrtc.PeerConnectionStateConnected)
	}
}

func (p *fakePeer) fail() {
	p.mu.Lock()
	p.conn = webrtc.PeerConnectionStateFailed
	onState := p.onState
	p.mu.Unlock()
	if onState != nil {
		onState(webrtc.PeerConnectionStateFailed)
	}
}

func (p *fakePeer) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("no remote description")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *fakePeer) SignalingState() webrtc.SignalingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaling
}

func (p *fakePeer) OnICECandidate(f func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = f
}

func (p *fakePeer) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = f
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.conn = webrtc.PeerConnectionStateClosed
	return nil
}

func (p *fakePeer) remoteSDP() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return ""
	}
	return p.remote.SDP
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) candidateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.candidates)
}

// peers is a Factory of fake peers that remembers what it created.
type peers struct {
	mu      sync.Mutex
	created []*fakePeer
}

func (f *peers) factory() (PeerConnection, error) {
	p := newFakePeer()
	f.mu.Lock()
	f.created = append(f.created, p)
	f.mu.Unlock()
	return p, nil
}

func (f *peers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *peers) at(i int) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[i]
}

func (f *peers) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

type push struct {
	sdp    string
	forced bool
}

// exchange relays SDP and candidates between the two members of one room
// the way the server does.
type exchange struct {
	mu    sync.Mutex
	room  domain.Room
	clock int64
	ends  map[domain.UserID]*endpoint
	left  map[domain.UserID]bool
	done  chan struct{}
}

type endpoint struct {
	ex         *exchange
	self       domain.UserID
	changes    chan struct{}
	candidates chan json.RawMessage
	forced     bool
	pushes     []push
}

func newExchange(superior, junior domain.UserID) *exchange {
	ex := &exchange{
		room: domain.Room{Superior: superior, Junior: junior},
		ends: map[domain.UserID]*endpoint{},
		left: map[domain.UserID]bool{},
		done: make(chan struct{}),
	}
	for _, id := range []domain.UserID{superior, junior} {
		ex.ends[id] = &endpoint{
			ex:         ex,
			self:       id,
			changes:    make(chan struct{}, 1),
			candidates: make(chan json.RawMessage, 64),
		}
	}
	return ex
}

func (ex *exchange) end(id domain.UserID) *endpoint {
	return ex.ends[id]
}

func (ex *exchange) leave(id domain.UserID) {
	ex.mu.Lock()
	ex.left[id] = true
	ex.mu.Unlock()
	for _, e := range ex.ends {
		e.signal()
	}
}

// writeAnswer stores an answer stamped relative to the current offer.
func (ex *exchange) writeAnswer(sdp string, offset int64) {
	ex.mu.Lock()
	ex.room.Answer = sdp
	ex.room.AnswerTime = ex.room.OfferTime + offset
	sup := ex.ends[ex.room.Superior]
	ex.mu.Unlock()
	sup.signal()
}

func (e *endpoint) signal() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

func (e *endpoint) Self() domain.UserID {
	return e.self
}

func (e *endpoint) UpdateSDPData(ctx context.Context, peer domain.UserID, sdp string, forced bool) (domain.SDPKind, error) {
	e.ex.mu.Lock()
	e.ex.clock++
	kind, ok := e.ex.room.Write(e.self, sdp, e.ex.clock)
	if !ok {
		e.ex.mu.Unlock()
		return "", domain.ErrInvalidState
	}
	other := e.ex.ends[peer]
	if sdp != "" {
		e.pushes = append(e.pushes, push{sdp: sdp, forced: forced})
		if forced {
			other.forced = true
		}
	}
	e.ex.mu.Unlock()

	if sdp != "" {
		other.signal()
	}
	return kind, nil
}

func (e *endpoint) SendIceCandidate(ctx context.Context, peer domain.UserID, candidate json.RawMessage) error {
	select {
	case e.ex.ends[peer].candidates <- candidate:
	default:
	}
	return nil
}

func (e *endpoint) SDP(peer domain.UserID) (domain.SDPView, bool) {
	e.ex.mu.Lock()
	defer e.ex.mu.Unlock()
	r := e.ex.room
	return domain.SDPView{
		Offer:      r.Offer,
		Answer:     r.Answer,
		OfferTime:  r.OfferTime,
		AnswerTime: r.AnswerTime,
		IsSuperior: r.Superior == e.self,
	}, true
}

func (e *endpoint) TakeForced(peer domain.UserID) bool {
	e.ex.mu.Lock()
	defer e.ex.mu.Unlock()
	forced := e.forced
	e.forced = false
	return forced
}

func (e *endpoint) PeerLeft(peer domain.UserID) bool {
	e.ex.mu.Lock()
	defer e.ex.mu.Unlock()
	return e.ex.left[peer]
}

func (e *endpoint) Watch(peer domain.UserID) (<-chan struct{}, <-chan json.RawMessage, func()) {
	return e.changes, e.candidates, func() {}
}

func (e *endpoint) Done() <-chan struct{} {
	return e.ex.done
}

func (e *endpoint) pushed() []push {
	e.ex.mu.Lock()
	defer e.ex.mu.Unlock()
	return append([]push{}, e.pushes...)
}

// statuses collects status reports per peer.
type statuses struct {
	mu   sync.Mutex
	seen map[domain.UserID][]Status
}

func (s *statuses) report(peer domain.UserID, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = map[domain.UserID][]Status{}
	}
	s.seen[peer] = append(s.seen[peer], st)
}

func (s *statuses) count(peer domain.UserID, st Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.seen[peer] {
		if v == st {
			n++
		}
	}
	return n
}

type runner struct {
	cancel context.CancelFunc
	done   chan error
}

func run(t *testing.T, l *Loop) *runner {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-r.done
	})
	return r
}

func (r *runner) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		r.done <- err
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not stop")
		return nil
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
