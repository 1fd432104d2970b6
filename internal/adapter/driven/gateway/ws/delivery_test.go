package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

func newDelivery(t *testing.T) (*Hub, *Delivery) {
	t.Helper()
	hub := startHub(t)
	d := NewDelivery(hub, nil)
	t.Cleanup(d.Close)
	return hub, d
}

type ringPayload struct {
	Call string `json:"call"`
}

func TestDeliver_WritesFrame(t *testing.T) {
	hub, d := newDelivery(t)
	s := &fakeSession{id: "s1", user: "u1"}
	hub.Register(s)

	err := d.Deliver(context.Background(), []domain.UserID{"u1"}, port.DeliveryOptions{}, port.Notification{
		Method:  port.MethodRing,
		Key:     "c1",
		Payload: ringPayload{Call: "c1"},
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	frames := s.received(t)
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if frames[0].Type != "notify" || frames[0].Method != port.MethodRing {
		t.Errorf("frame = %+v", frames[0])
	}
	var p ringPayload
	if err := json.Unmarshal(frames[0].Payload, &p); err != nil || p.Call != "c1" {
		t.Errorf("payload = %s (%v)", frames[0].Payload, err)
	}
}

func TestDeliver_ReachesEverySession(t *testing.T) {
	hub, d := newDelivery(t)
	tab1 := &fakeSession{id: "s1", user: "u1"}
	tab2 := &fakeSession{id: "s2", user: "u1"}
	hub.Register(tab1)
	hub.Register(tab2)

	if err := d.Deliver(context.Background(), []domain.UserID{"u1"}, port.DeliveryOptions{}, port.Notification{Method: port.MethodEnd}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(tab1.received(t)) != 1 || len(tab2.received(t)) != 1 {
		t.Errorf("frames = %d and %d, want 1 each", len(tab1.received(t)), len(tab2.received(t)))
	}
}

func TestDeliver_Failures(t *testing.T) {
	tests := []struct {
		name    string
		stuck   bool
		targets []domain.UserID
		opts    port.DeliveryOptions
		want    error
	}{
		{
			name:    "unreachable target",
			targets: []domain.UserID{"nobody"},
			opts:    port.DeliveryOptions{Retries: 2, RetryDelay: time.Millisecond},
			want:    port.ErrDeliveryFailed,
		},
		{
			name:    "stuck session",
			stuck:   true,
			targets: []domain.UserID{"u1"},
			opts:    port.DeliveryOptions{Retries: 2, Timeout: 10 * time.Millisecond},
			want:    port.ErrDeliveryTimeout,
		},
		{
			name:    "failure ignored",
			targets: []domain.UserID{"nobody"},
			opts:    port.DeliveryOptions{NoErrorOnFailure: true},
		},
		{
			name:    "enough replies",
			targets: []domain.UserID{"u1", "nobody"},
			opts:    port.DeliveryOptions{ExpectedReplies: 1},
		},
		{
			name:    "excluded target",
			targets: []domain.UserID{"u1", "nobody"},
			opts:    port.DeliveryOptions{Excluded: []domain.UserID{"nobody"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, d := newDelivery(t)
			hub.Register(&fakeSession{id: "s1", user: "u1", stuck: tt.stuck})

			err := d.Deliver(context.Background(), tt.targets, tt.opts, port.Notification{Method: port.MethodUpdateSDPs})
			if tt.want == nil && err != nil {
				t.Errorf("Deliver err = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Deliver err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDeliver_RetriesUntilReachable(t *testing.T) {
	hub, d := newDelivery(t)
	s := &fakeSession{id: "s1", user: "u1"}
	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Register(s)
	}()

	opts := port.DeliveryOptions{Retries: 10, RetryDelay: 20 * time.Millisecond}
	if err := d.Deliver(context.Background(), []domain.UserID{"u1"}, opts, port.Notification{Method: port.MethodRing}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if n := len(s.received(t)); n != 1 {
		t.Errorf("frames = %d, want 1", n)
	}
}

func deliverConcurrently(t *testing.T, d *Delivery, opts port.DeliveryOptions, payloads ...string) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, len(payloads))
	for _, p := range payloads {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			errs <- d.Deliver(context.Background(), []domain.UserID{"u1"}, opts, port.Notification{
				Method:  port.MethodUpdateMembers,
				Key:     "c1",
				Payload: ringPayload{Call: p},
			})
		}(p)
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Deliver: %v", err)
		}
	}
}

func TestDeliver_AggregatesWithinWindow(t *testing.T) {
	hub, d := newDelivery(t)
	s := &fakeSession{id: "s1", user: "u1"}
	hub.Register(s)

	opts := port.DeliveryOptions{Aggregation: port.Aggregation{Window: 150 * time.Millisecond}}
	deliverConcurrently(t, d, opts, "first", "second")

	frames := s.received(t)
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	var p ringPayload
	_ = json.Unmarshal(frames[0].Payload, &p)
	if p.Call != "second" {
		t.Errorf("payload = %q, want the latest one", p.Call)
	}
}

func TestDeliver_AggregationKeepsHighestVersion(t *testing.T) {
	hub, d := newDelivery(t)
	s := &fakeSession{id: "s1", user: "u1"}
	hub.Register(s)

	opts := port.DeliveryOptions{Aggregation: port.Aggregation{Window: 150 * time.Millisecond}}
	var wg sync.WaitGroup
	for _, v := range []uint64{3, 1, 2} {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			err := d.Deliver(context.Background(), []domain.UserID{"u1"}, opts, port.Notification{
				Method:  port.MethodUpdateMembers,
				Key:     "c1",
				Version: v,
				Payload: ringPayload{Call: fmt.Sprintf("v%d", v)},
			})
			if err != nil {
				t.Errorf("Deliver v%d: %v", v, err)
			}
		}(v)
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	frames := s.received(t)
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	var p ringPayload
	_ = json.Unmarshal(frames[0].Payload, &p)
	if p.Call != "v3" {
		t.Errorf("payload = %q, want v3", p.Call)
	}
}

func TestDeliver_SameDataKeepsDistinctPayloads(t *testing.T) {
	hub, d := newDelivery(t)
	s := &fakeSession{id: "s1", user: "u1"}
	hub.Register(s)

	opts := port.DeliveryOptions{Aggregation: port.Aggregation{Window: 150 * time.Millisecond, SameData: true}}
	deliverConcurrently(t, d, opts, "a", "b", "a")

	if n := len(s.received(t)); n != 2 {
		t.Errorf("frames = %d, want 2", n)
	}
}

func TestDeliver_CallerContext(t *testing.T) {
	_, d := newDelivery(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	opts := port.DeliveryOptions{Aggregation: port.Aggregation{Window: time.Second}}
	err := d.Deliver(ctx, []domain.UserID{"u1"}, opts, port.Notification{Method: port.MethodRing})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Deliver err = %v, want deadline exceeded", err)
	}
}
