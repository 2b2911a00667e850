package handler

import (
	"net/http"
	"strings"

	"github.com/Gustaveizabayo/iSooKO-sub001/internal/middleware"
	ws "github.com/Gustaveizabayo/iSooKO-sub001/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session lifecycle notices to connected devices.
type WSHandler struct {
	hub      *ws.Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *ws.Hub, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionEvents godoc
// WS /ws/v1/sessions/events?token=
// Holds a connection open for the caller's session and pushes a
// session_revoked notice when it is revoked, then closes.
func (h *WSHandler) SessionEvents(c *gin.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// Attach before upgrading so a revocation racing the handshake is not lost.
	events, detach := h.hub.Attach(sess.ID)
	defer detach()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", sess.UserID).
		Str("session_id", sess.ID).
		Logger()

	if err := ws.WriteTyped(conn, ws.ConnectedResponse{
		Event:     ws.EventConnected,
		SessionID: sess.ID,
		Context:   string(sess.Context),
	}); err != nil {
		return
	}
	wsLog.Info().Msg("Device connected")

	// Only this goroutine writes to conn; the reader hands actions over.
	actions := make(chan ws.Action)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}
			select {
			case actions <- msg.Action:
			case <-c.Request.Context().Done():
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			_ = ws.WriteTyped(conn, ws.RevokedResponse{
				Event:     ws.EventSessionRevoked,
				Kind:      string(ev.Kind),
				SessionID: ev.Session.ID,
				At:        ev.At,
			})
			ws.CloseWith(conn, websocket.ClosePolicyViolation, "session revoked")
			wsLog.Info().Str("kind", string(ev.Kind)).Msg("Device notified of revocation")
			return

		case action := <-actions:
			switch action {
			case ws.ActionPing:
				_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			default:
				wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
				_ = ws.WriteError(conn, "unknown action: "+string(action))
			}

		case <-readerDone:
			return
		}
	}
}
