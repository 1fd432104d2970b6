package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Signaling is the call-side surface a Loop negotiates through.
type Signaling interface {
	Self() domain.UserID
	UpdateSDPData(ctx context.Context, peer domain.UserID, sdp string, forced bool) (domain.SDPKind, error)
	SendIceCandidate(ctx context.Context, peer domain.UserID, candidate json.RawMessage) error
	SDP(peer domain.UserID) (domain.SDPView, bool)
	TakeForced(peer domain.UserID) bool
	PeerLeft(peer domain.UserID) bool
	Watch(peer domain.UserID) (changes <-chan struct{}, candidates <-chan json.RawMessage, cancel func())
	Done() <-chan struct{}
}

type Status string

const (
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusFailed     Status = "failed"
)

type Timings struct {
	OfferDelay    time.Duration
	OfferInterval time.Duration
	DebounceWait  time.Duration
	DebounceMax   time.Duration
	CandidatePoll time.Duration
	RestartDelay  time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		OfferDelay:    2 * time.Second,
		OfferInterval: 5 * time.Second,
		DebounceWait:  250 * time.Millisecond,
		DebounceMax:   1500 * time.Millisecond,
		CandidatePoll: 100 * time.Millisecond,
		RestartDelay:  time.Second,
	}
}

var (
	errCallEnded      = errors.New("call ended")
	errConnectionLost = errors.New("connection lost")
	errPeerRestarted  = errors.New("peer restarted negotiation")
)

// Loop negotiates and keeps alive the peer connection with one
// correspondent. The offering side is fixed by the server: the member
// that joined later offers.
type Loop struct {
	sig      Signaling
	peer     domain.UserID
	factory  Factory
	timings  Timings
	onStatus func(domain.UserID, Status)
	logger   zerolog.Logger
}

type LoopOption func(*Loop)

func WithTimings(t Timings) LoopOption {
	return func(l *Loop) { l.timings = t }
}

// WithStatus sets the function told about connection status changes.
func WithStatus(fn func(peer domain.UserID, s Status)) LoopOption {
	return func(l *Loop) { l.onStatus = fn }
}

func NewLoop(sig Signaling, peer domain.UserID, factory Factory, opts ...LoopOption) *Loop {
	l := &Loop{
		sig:     sig,
		peer:    peer,
		factory: factory,
		timings: DefaultTimings(),
		logger:  log.With().Str("self", sig.Self().String()).Str("peer", peer.String()).Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run negotiates until ctx is done, the call ends or the peer leaves.
// A lost connection is rebuilt from scratch after a short delay.
func (l *Loop) Run(ctx context.Context) error {
	restarted := false
	for {
		err := l.session(ctx, restarted)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, errCallEnded):
			return nil
		case l.sig.PeerLeft(l.peer):
			l.logger.Debug().Msg("Peer left, stopping negotiation")
			return nil
		}

		delay := l.timings.RestartDelay
		if errors.Is(err, errPeerRestarted) {
			delay = 0
		}
		l.logger.Info().Err(err).Dur("retry_in", delay).Msg("Restarting negotiation")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		case <-l.sig.Done():
			return nil
		}
		restarted = true
	}
}

func (l *Loop) status(s Status) {
	if l.onStatus != nil {
		l.onStatus(l.peer, s)
	}
}

// session is one peer connection lifetime.
type session struct {
	*Loop
	pc PeerConnection

	main bool
	// forceNext marks the next pushed offer as forced, so that the peer
	// drops a connection it still believes alive.
	forceNext bool

	localOffer    string
	offerApplied  int64
	answerApplied int64

	queue []webrtc.ICECandidateInit
}

func (l *Loop) session(ctx context.Context, restarted bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes, candidates, unwatch := l.sig.Watch(l.peer)
	defer unwatch()

	kind, err := l.sig.UpdateSDPData(ctx, l.peer, "", false)
	if err != nil {
		if errors.Is(err, domain.ErrCallNotFound) {
			return errCallEnded
		}
		return fmt.Errorf("probe role: %w", err)
	}

	pc, err := l.factory()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	defer pc.Close()

	s := &session{Loop: l, pc: pc, main: kind == domain.SDPOffer, forceNext: restarted}
	l.logger.Debug().Bool("main", s.main).Msg("Negotiation started")
	l.status(StatusConnecting)

	states := make(chan webrtc.PeerConnectionState, 16)
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		select {
		case states <- st:
		default:
		}
	})

	local := make(chan json.RawMessage, 64)
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		select {
		case local <- data:
		default:
			l.logger.Warn().Msg("Dropping local ICE candidate")
		}
	})
	go s.sendCandidates(ctx, local)

	deb := newDebouncer(l.timings.DebounceWait, l.timings.DebounceMax)
	defer deb.stop()

	offerTimer := time.NewTimer(l.timings.OfferDelay)
	defer offerTimer.Stop()
	poll := time.NewTicker(l.timings.CandidatePoll)
	defer poll.Stop()

	if s.main {
		if err := s.offerIfNeeded(ctx); err != nil {
			return err
		}
	} else {
		offerTimer.Stop()
		deb.trigger()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-l.sig.Done():
			return errCallEnded

		case <-changes:
			if l.sig.PeerLeft(l.peer) {
				return errConnectionLost
			}
			if s.main {
				l.sig.TakeForced(l.peer)
				if err := s.applyAnswer(); err != nil {
					l.logger.Warn().Err(err).Msg("Cannot apply answer")
				}
				continue
			}
			if l.sig.TakeForced(l.peer) && s.offerApplied > 0 {
				return errPeerRestarted
			}
			deb.trigger()

		case <-deb.C():
			deb.fired()
			if err := s.answerIfNeeded(ctx); err != nil {
				if errors.Is(err, domain.ErrCallNotFound) {
					return errCallEnded
				}
				l.logger.Warn().Err(err).Msg("Cannot answer")
			}

		case <-offerTimer.C:
			if err := s.offerIfNeeded(ctx); err != nil {
				return err
			}
			offerTimer.Reset(l.timings.OfferInterval)

		case c := <-candidates:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal(c, &init); err != nil {
				l.logger.Warn().Err(err).Msg("Bad remote ICE candidate")
				continue
			}
			s.queue = append(s.queue, init)
			s.flushCandidates()

		case <-poll.C:
			s.flushCandidates()

		case st := <-states:
			switch st {
			case webrtc.PeerConnectionStateConnected:
				l.status(StatusConnected)
			case webrtc.PeerConnectionStateFailed,
				webrtc.PeerConnectionStateDisconnected,
				webrtc.PeerConnectionStateClosed:
				l.status(StatusFailed)
				return fmt.Errorf("%w: %s", errConnectionLost, st)
			}
		}
	}
}

// offerIfNeeded creates and pushes a new offer unless the connection is
// already up or an answer is being applied.
func (s *session) offerIfNeeded(ctx context.Context) error {
	switch s.pc.ConnectionState() {
	case webrtc.PeerConnectionStateConnecting, webrtc.PeerConnectionStateConnected:
		return nil
	}
	switch s.pc.SignalingState() {
	case webrtc.SignalingStateStable, webrtc.SignalingStateHaveLocalOffer:
	default:
		return nil
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}

	forced := s.forceNext
	if _, err := s.sig.UpdateSDPData(ctx, s.peer, offer.SDP, forced); err != nil {
		if errors.Is(err, domain.ErrCallNotFound) {
			return errCallEnded
		}
		s.logger.Warn().Err(err).Msg("Cannot push offer")
		return nil
	}
	s.forceNext = false
	s.localOffer = offer.SDP
	s.logger.Debug().Bool("forced", forced).Msg("Offer pushed")
	return nil
}

// applyAnswer applies the peer's answer to our latest offer, once.
func (s *session) applyAnswer() error {
	view, ok := s.sig.SDP(s.peer)
	if !ok || view.Answer == "" || s.localOffer == "" || view.Offer != s.localOffer {
		return nil
	}
	if view.AnswerTime <= view.OfferTime || view.AnswerTime <= s.answerApplied {
		return nil
	}
	if s.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		return nil
	}

	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: view.Answer}); err != nil {
		return err
	}
	s.answerApplied = view.AnswerTime
	s.logger.Debug().Int64("answer_time", view.AnswerTime).Msg("Answer applied")
	s.flushCandidates()
	return nil
}

// answerIfNeeded answers an offer newer than the last one answered.
func (s *session) answerIfNeeded(ctx context.Context) error {
	view, ok := s.sig.SDP(s.peer)
	if !ok || view.Offer == "" || view.OfferTime <= s.offerApplied {
		return nil
	}

	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: view.Offer}); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	s.offerApplied = view.OfferTime
	s.flushCandidates()

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	if _, err := s.sig.UpdateSDPData(ctx, s.peer, answer.SDP, false); err != nil {
		return err
	}
	s.logger.Debug().Int64("offer_time", view.OfferTime).Msg("Answer pushed")
	return nil
}

// flushCandidates applies queued remote candidates once a remote
// description is set.
func (s *session) flushCandidates() {
	if len(s.queue) == 0 || s.pc.RemoteDescription() == nil {
		return
	}
	for _, c := range s.queue {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.logger.Debug().Err(err).Msg("Cannot add ICE candidate")
		}
	}
	s.queue = s.queue[:0]
}

func (s *session) sendCandidates(ctx context.Context, local <-chan json.RawMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-local:
			if err := s.sig.SendIceCandidate(ctx, s.peer, c); err != nil && ctx.Err() == nil {
				s.logger.Debug().Err(err).Msg("Cannot send ICE candidate")
			}
		}
	}
}
