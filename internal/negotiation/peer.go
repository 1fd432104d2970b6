package negotiation

import (
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the part of *webrtc.PeerConnection a Loop drives.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	ConnectionState() webrtc.PeerConnectionState
	SignalingState() webrtc.SignalingState
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// Factory creates the peer connection of one negotiation session.
type Factory func() (PeerConnection, error)

type ICEConfig struct {
	STUN     []string
	TURN     []string
	TURNUser string
	TURNPass string
	// IncludeLoopback gathers loopback candidates, for peers on the same
	// host.
	IncludeLoopback bool
}

func (c ICEConfig) servers() []webrtc.ICEServer {
	var out []webrtc.ICEServer
	if len(c.STUN) > 0 {
		out = append(out, webrtc.ICEServer{URLs: c.STUN})
	}
	if len(c.TURN) > 0 {
		out = append(out, webrtc.ICEServer{
			URLs:       c.TURN,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return out
}

// NewPionFactory returns a Factory of pion peer connections that receive
// audio, and video for video calls. Every connection also carries a
// pre-negotiated data channel so that ICE runs even when no media flows.
func NewPionFactory(cfg ICEConfig, t domain.CallType) (Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	se := webrtc.SettingEngine{}
	if cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))

	kinds := []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio}
	if t == domain.CallTypeVideo {
		kinds = append(kinds, webrtc.RTPCodecTypeVideo)
	}

	return func() (PeerConnection, error) {
		pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.servers()})
		if err != nil {
			return nil, err
		}

		for _, kind := range kinds {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}

		negotiated := true
		var id uint16
		if _, err := pc.CreateDataChannel("call", &webrtc.DataChannelInit{
			Negotiated: &negotiated,
			ID:         &id,
		}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		return pc, nil
	}, nil
}
