package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type fakeSession struct {
	id   string
	user domain.UserID
	// stuck sessions never accept a frame.
	stuck bool

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (s *fakeSession) ID() string            { return s.id }
func (s *fakeSession) UserID() domain.UserID { return s.user }

func (s *fakeSession) Send(ctx context.Context, frame []byte) error {
	if s.stuck {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) received(t *testing.T) []Frame {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.frames))
	for i, raw := range s.frames {
		if err := json.Unmarshal(raw, &out[i]); err != nil {
			t.Fatalf("decode frame %q: %v", raw, err)
		}
	}
	return out
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}
