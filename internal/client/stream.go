package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Notification is a frame pushed by the server.
type Notification = ws.Frame

// Stream keeps a websocket to the notification endpoint open,
// reconnecting with exponential backoff.
type Stream struct {
	url    string
	user   domain.UserID
	dialer *websocket.Dialer

	onNotification func(Notification)
	onConnect      func()

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// NewStream creates a stream for user. onConnect runs after every
// successful (re)connection, before any notification of that connection
// is dispatched.
func NewStream(url string, user domain.UserID, onNotification func(Notification), onConnect func()) *Stream {
	return &Stream{
		url:            url,
		user:           user,
		dialer:         websocket.DefaultDialer,
		onNotification: onNotification,
		onConnect:      onConnect,
		MinBackoff:     500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// Run blocks until ctx is done.
func (s *Stream) Run(ctx context.Context) error {
	backoff := s.MinBackoff
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = s.MinBackoff
		}
		log.Warn().Err(err).Dur("retry_in", backoff).Msg("Notification stream lost")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff *= 2; backoff > s.MaxBackoff {
			backoff = s.MaxBackoff
		}
	}
}

// session runs one connection until it fails.
func (s *Stream) session(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("X-User-ID", s.user.String())

	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	log.Debug().Str("url", s.url).Msg("Notification stream connected")
	if s.onConnect != nil {
		s.onConnect()
	}

	for {
		var n Notification
		if err := conn.ReadJSON(&n); err != nil {
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				log.Warn().Err(err).Msg("Dropping malformed frame")
				continue
			}
			return true, err
		}
		if s.onNotification != nil {
			s.onNotification(n)
		}
	}
}
