// internal/stream/ws.go
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ScavieFae/autonomous-world-model/service/internal/match"
)

const writeTimeout = 5 * time.Second

// Handler upgrades viewers to websockets and relays hub messages to them.
// Viewers only receive; anything they send is discarded.
type Handler struct {
	Hub *Hub
	// Tokens, when set, requires a valid viewer token in the "token" query
	// parameter or an Authorization bearer header.
	Tokens *Tokens
	// Sync, when set, supplies the catch-up event sent before live frames.
	Sync func() (match.MatchEvent, bool)

	Log *logrus.Entry
}

func bearer(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func (h *Handler) logger() *logrus.Entry {
	if h.Log != nil {
		return h.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	viewer := "anonymous"
	if h.Tokens != nil {
		v, err := h.Tokens.Verify(bearer(r))
		if err != nil {
			http.Error(w, "invalid viewer token", http.StatusUnauthorized)
			return
		}
		viewer = v
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger().WithError(err).Warnf("Websocket upgrade failed for %s", r.RemoteAddr)
		return
	}
	defer conn.CloseNow()

	sub := h.Hub.Subscribe(viewer)
	defer h.Hub.Unsubscribe(sub)

	ctx := conn.CloseRead(r.Context())

	if h.Sync != nil {
		if ev, ok := h.Sync(); ok {
			msg, err := json.Marshal(ev)
			if err == nil && write(ctx, conn, msg) != nil {
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "viewer fell behind")
				return
			}
			if err := write(ctx, conn, msg); err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}
