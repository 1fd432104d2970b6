package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/yacall/internal/client"
	"github.com/Wyydra/yacall/internal/config"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/negotiation"
)

var _ negotiation.Call = (*client.Handle)(nil)

// participant is a connected user: API client, notification stream and
// the calls it is in.
type participant struct {
	cfg     *config.Client
	api     *client.API
	manager *client.Manager
}

// connect opens the notification stream and waits for it to be up. The
// stream stops with ctx.
func connect(ctx context.Context, cfg *config.Client, opts ...client.ManagerOption) (*participant, error) {
	api := client.NewAPI(cfg.Server, domain.UserID(cfg.User), nil)
	p := &participant{cfg: cfg, api: api, manager: client.NewManager(api, opts...)}

	up := make(chan struct{}, 1)
	stream := client.NewStream(cfg.WebSocketURL(), api.User(), p.manager.HandleNotification, func() {
		p.manager.Reconnected()
		select {
		case up <- struct{}{}:
		default:
		}
	})
	go stream.Run(ctx)

	select {
	case <-up:
		return p, nil
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("cannot reach %s", cfg.WebSocketURL())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// attend joins the call of h and negotiates with every participant until
// the call ends or ctx is done, in which case the call is left.
func (p *participant) attend(ctx context.Context, h *client.Handle) error {
	if err := h.Connect(ctx); err != nil {
		return fmt.Errorf("join call: %w", err)
	}

	factory, err := negotiation.NewPionFactory(negotiation.ICEConfig{
		STUN:     p.cfg.STUNServers(),
		TURN:     p.cfg.TURNServers(),
		TURNUser: p.cfg.TURNUser,
		TURNPass: p.cfg.TURNPass,
	}, h.CallType())
	if err != nil {
		return err
	}

	fmt.Printf("In %s call %s\n", h.CallType(), h.ID())
	mesh := negotiation.NewMesh(h, factory, negotiation.WithStatus(func(peer domain.UserID, s negotiation.Status) {
		fmt.Printf("  %-20s %s\n", peer, s)
	}))

	err = mesh.Run(ctx)
	select {
	case <-h.Done():
		fmt.Println("Call ended")
		return nil
	default:
	}

	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if lerr := h.Exit(leaveCtx); lerr != nil && !client.IsGone(lerr) {
		return lerr
	}
	fmt.Println("Left call")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
