package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/call/memory"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

type delivered struct {
	targets []domain.UserID
	opts    port.DeliveryOptions
	n       port.Notification
}

type fakeDelivery struct {
	mu        sync.Mutex
	reachable map[domain.UserID]bool
	sent      []delivered
	err       error
	onReach   []func([]domain.UserID)
	onUnreach []func(domain.UserID)
}

func newFakeDelivery(reachable ...domain.UserID) *fakeDelivery {
	d := &fakeDelivery{reachable: make(map[domain.UserID]bool)}
	for _, id := range reachable {
		d.reachable[id] = true
	}
	return d
}

func (d *fakeDelivery) Deliver(_ context.Context, targets []domain.UserID, opts port.DeliveryOptions, n port.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, delivered{targets: append([]domain.UserID{}, targets...), opts: opts, n: n})
	return d.err
}

func (d *fakeDelivery) FilterReachable(ids []domain.UserID) []domain.UserID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.UserID
	for _, id := range ids {
		if d.reachable[id] {
			out = append(out, id)
		}
	}
	return out
}

func (d *fakeDelivery) OnReachable(fn func([]domain.UserID)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onReach = append(d.onReach, fn)
	return func() {}
}

func (d *fakeDelivery) OnUnreachable(fn func(domain.UserID)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUnreach = append(d.onUnreach, fn)
	return func() {}
}

// online marks ids reachable without firing listeners.
func (d *fakeDelivery) online(ids ...domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.reachable[id] = true
	}
}

// connect simulates sessions of ids coming online.
func (d *fakeDelivery) connect(ids ...domain.UserID) {
	d.mu.Lock()
	for _, id := range ids {
		d.reachable[id] = true
	}
	listeners := append([]func([]domain.UserID){}, d.onReach...)
	d.mu.Unlock()
	for _, fn := range listeners {
		fn(ids)
	}
}

// disconnect simulates the last session of id going away.
func (d *fakeDelivery) disconnect(id domain.UserID) {
	d.mu.Lock()
	delete(d.reachable, id)
	listeners := append([]func(domain.UserID){}, d.onUnreach...)
	d.mu.Unlock()
	for _, fn := range listeners {
		fn(id)
	}
}

func (d *fakeDelivery) byMethod(method string) []delivered {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []delivered
	for _, s := range d.sent {
		if s.n.Method == method {
			out = append(out, s)
		}
	}
	return out
}

func (d *fakeDelivery) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = nil
}

type whitelistAuth struct{}

func (whitelistAuth) CheckWhitelisted(_ context.Context, userid domain.UserID, whitelist []domain.UserID, _ string) error {
	if domain.ContainsUser(whitelist, userid) {
		return nil
	}
	return domain.ErrUnauthorized
}

type fakeProfiles struct {
	err error
}

func (p fakeProfiles) GetProfiles(_ context.Context, ids []domain.UserID) ([]domain.Profile, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([]domain.Profile, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Profile{ID: id, Label: "user " + id.String()})
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.CallEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.CallEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []domain.CallEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.CallEventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

var errBoom = errors.New("boom")

type fixture struct {
	svc      *CallService
	store    *memory.CallStore
	delivery *fakeDelivery
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewCallStore()
	delivery := newFakeDelivery()
	svc := NewCallService(store, delivery, whitelistAuth{}, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return &fixture{svc: svc, store: store, delivery: delivery}
}

// flush waits for every notification sent so far.
func (f *fixture) flush() {
	f.svc.wg.Wait()
}

func (f *fixture) call(t *testing.T, id domain.CallID) *domain.Call {
	t.Helper()
	call, err := f.store.Get(id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return call
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func users(ids ...string) []domain.UserID {
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out
}
