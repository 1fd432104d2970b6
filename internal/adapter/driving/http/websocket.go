package http

import (
	"net/http"

	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks belong to the authenticating proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS opens a notification session for the caller, identified like
// the API routes or by the user_id query parameter for browsers that
// cannot set headers on websocket requests.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	uid := r.Header.Get("X-User-ID")
	if uid == "" {
		uid = r.URL.Query().Get("user_id")
	}
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing user id"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := ws.NewClient(h.Hub, domain.UserID(uid), conn)
	log.Debug().Str("session_id", client.ID()).Str("user_id", uid).Msg("New session")
	client.Serve()
}
