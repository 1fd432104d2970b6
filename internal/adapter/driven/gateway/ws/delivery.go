package ws

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/metrics"
	"github.com/rs/zerolog/log"
)

const defaultTimeout = 10 * time.Second

var errNoSession = errors.New("no live session")

// Frame is the envelope of every notification written to a session.
type Frame struct {
	Type    string          `json:"type"`
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload"`
}

// Delivery implements port.EventDelivery on top of a Hub. Notifications
// for the same target, method and key that arrive within the aggregation
// window are merged: the payload with the highest version wins and every
// caller gets the outcome of the single send.
type Delivery struct {
	hub     *Hub
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*batch
}

type batch struct {
	target  domain.UserID
	method  string
	frame   []byte
	version uint64
	opts    port.DeliveryOptions
	waiters []chan error
}

func NewDelivery(hub *Hub, m *metrics.Metrics) *Delivery {
	ctx, cancel := context.WithCancel(context.Background())
	return &Delivery{
		hub:     hub,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*batch),
	}
}

// Close aborts every pending and in-flight send.
func (d *Delivery) Close() {
	d.cancel()
}

func (d *Delivery) FilterReachable(ids []domain.UserID) []domain.UserID {
	return d.hub.FilterReachable(ids)
}

func (d *Delivery) OnReachable(fn func(ids []domain.UserID)) func() {
	return d.hub.OnReachable(fn)
}

func (d *Delivery) OnUnreachable(fn func(id domain.UserID)) func() {
	return d.hub.OnUnreachable(fn)
}

// Deliver sends n to every target and waits for the outcome. It succeeds
// when at least opts.ExpectedReplies targets (all of them when zero) got
// the notification.
func (d *Delivery) Deliver(ctx context.Context, targets []domain.UserID, opts port.DeliveryOptions, n port.Notification) error {
	targets = domain.WithoutUsers(domain.UnionUsers(nil, targets...), opts.Excluded...)
	if len(targets) == 0 {
		return nil
	}

	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", n.Method, err)
	}
	frame, err := json.Marshal(Frame{Type: "notify", Method: n.Method, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", n.Method, err)
	}

	waiters := make([]chan error, len(targets))
	for i, target := range targets {
		waiters[i] = d.enqueue(target, opts, n, frame)
	}

	var reached, timedOut int
	for _, ch := range waiters {
		select {
		case err := <-ch:
			switch {
			case err == nil:
				reached++
			case errors.Is(err, context.DeadlineExceeded):
				timedOut++
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	expected := opts.ExpectedReplies
	if expected <= 0 || expected > len(targets) {
		expected = len(targets)
	}
	if reached >= expected || opts.NoErrorOnFailure {
		return nil
	}
	if timedOut > 0 {
		return fmt.Errorf("%s reached %d of %d targets: %w", n.Method, reached, expected, port.ErrDeliveryTimeout)
	}
	return fmt.Errorf("%s reached %d of %d targets: %w", n.Method, reached, expected, port.ErrDeliveryFailed)
}

// enqueue joins a collecting batch for target or starts a new one. The
// returned channel receives the outcome of the send.
func (d *Delivery) enqueue(target domain.UserID, opts port.DeliveryOptions, n port.Notification, frame []byte) chan error {
	done := make(chan error, 1)

	wait := opts.PrecallWait + opts.Aggregation.Window
	if wait <= 0 {
		b := &batch{target: target, method: n.Method, frame: frame, opts: opts, waiters: []chan error{done}}
		go d.flush(b)
		return done
	}

	key := target.String() + "\x00" + n.Method + "\x00" + n.Key
	if opts.Aggregation.SameData {
		sum := sha256.Sum256(frame)
		key += "\x00" + hex.EncodeToString(sum[:])
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.pending[key]; ok {
		// Callers race to enqueue; an older snapshot must not replace a
		// newer one.
		if n.Version >= b.version {
			b.frame, b.version = frame, n.Version
		}
		b.waiters = append(b.waiters, done)
		return done
	}

	b := &batch{target: target, method: n.Method, frame: frame, version: n.Version, opts: opts, waiters: []chan error{done}}
	d.pending[key] = b
	time.AfterFunc(wait, func() {
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
		d.flush(b)
	})
	return done
}

// flush sends a closed batch and reports the outcome to its waiters.
func (d *Delivery) flush(b *batch) {
	d.mu.Lock()
	frame := b.frame
	waiters := b.waiters
	d.mu.Unlock()

	attempts, err := d.send(b.target, frame, b.opts)

	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "failed"
	}
	d.metrics.Delivery(b.method, outcome, attempts)
	if err != nil {
		log.Debug().Err(err).
			Str("method", b.method).
			Str("target", b.target.String()).
			Int("attempts", attempts).
			Msg("Notification attempt failed")
	}

	for _, ch := range waiters {
		ch <- err
	}
}

// send tries up to opts.Retries times to queue frame on at least one
// session of target.
func (d *Delivery) send(target domain.UserID, frame []byte, opts port.DeliveryOptions) (int, error) {
	tries := opts.Retries
	if tries < 1 {
		tries = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var err error
	for attempt := 1; attempt <= tries; attempt++ {
		if attempt > 1 && opts.RetryDelay > 0 {
			select {
			case <-time.After(opts.RetryDelay):
			case <-d.ctx.Done():
				return attempt - 1, d.ctx.Err()
			}
		}

		err = d.attempt(target, frame, timeout)
		if err == nil {
			return attempt, nil
		}
		if d.ctx.Err() != nil {
			return attempt, d.ctx.Err()
		}
	}
	return tries, err
}

func (d *Delivery) attempt(target domain.UserID, frame []byte, timeout time.Duration) error {
	sessions := d.hub.SessionsOf(target)
	if len(sessions) == 0 {
		return errNoSession
	}

	ctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()

	errs := make(chan error, len(sessions))
	for _, s := range sessions {
		go func(s Session) {
			errs <- s.Send(ctx, frame)
		}(s)
	}

	var last error
	accepted := false
	for range sessions {
		if err := <-errs; err != nil {
			last = err
		} else {
			accepted = true
		}
	}
	if accepted {
		return nil
	}
	return last
}
