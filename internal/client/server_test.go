package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/auth"
	"github.com/Wyydra/yacall/internal/adapter/driven/call/memory"
	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	httpapi "github.com/Wyydra/yacall/internal/adapter/driving/http"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/service"
)

// fastPolicies keeps the production shape with short windows.
func fastPolicies() service.Policies {
	p := service.DefaultPolicies()
	for _, o := range []*port.DeliveryOptions{&p.Ring, &p.Rering, &p.IceCandidate, &p.SDPUpdate, &p.Members, &p.End} {
		if o.Aggregation.Window > 0 {
			o.Aggregation.Window = 20 * time.Millisecond
		}
		if o.PrecallWait > 0 {
			o.PrecallWait = 5 * time.Millisecond
		}
		if o.RetryDelay > 0 {
			o.RetryDelay = 20 * time.Millisecond
		}
	}
	return p
}

type testServer struct {
	*httptest.Server
	hub *ws.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	hub := ws.NewHub(nil)
	go hub.Run()
	delivery := ws.NewDelivery(hub, nil)

	svc := service.NewCallService(
		memory.NewCallStore(),
		delivery,
		auth.NewWhitelist(nil),
		service.WithPolicies(fastPolicies()),
		service.WithTimings(service.Timings{LeaveGrace: 50 * time.Millisecond, DisconnectGrace: time.Hour}),
	)

	srv := httptest.NewServer(httpapi.NewHandler(svc, hub, nil).NewRouter())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
		delivery.Close()
		hub.Stop()
	})
	return &testServer{Server: srv, hub: hub}
}

func (s *testServer) api(user domain.UserID) *API {
	return NewAPI(s.URL, user, s.Client())
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

// connectStream runs a notification stream for m's user until the test
// ends and waits for the first connection.
func (s *testServer) connectStream(t *testing.T, m *Manager) {
	t.Helper()
	connected := make(chan struct{}, 1)
	stream := NewStream(s.wsURL(), m.api.User(), m.HandleNotification, func() {
		m.Reconnected()
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	stream.MinBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = stream.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not connect")
	}
	eventually(t, func() bool {
		return len(s.hub.SessionsOf(m.api.User())) > 0
	})
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
