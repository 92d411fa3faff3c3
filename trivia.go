/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Buzzbox trivia
//
// Players gather in a room identified by a short code. Each round a question
// is shown to everyone, but the four possible answers are not. The first
// player to buzz gets the answers, privately, and a few seconds to pick one.
// Everyone then sees the result and the scoreboard before the next question.
//
// Features:
// - One websocket per browser tab at /ws; rooms are addressed by code in
//   each message, so a connection can create, join, leave and watch rooms
// - Room codes are 6 characters without look-alike glyphs (no 0/O, 1/I)
// - Only the buzz winner ever receives the answer options before the result
// - Question, answer and next-round timers drive the game when nobody acts
// - A disconnect counts as leaving; an emptied room is closed at once
// - Finished rooms linger for late viewers, idle rooms are reaped
// - Per-room QR code at /rooms/:code/qr, backed by go-qrcode
// - Inbound messages are rate limited per connection

package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

const (
	clientBuffer   = 32
	maxMessageSize = 4096
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	qrSize         = 320
)

func newUpgrader(cfg *Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.originAllowed(r.Header.Get("Origin"))
		},
	}
}

func serveWS(cfg *Config, logger *slog.Logger, reg *Registry, upgrader *websocket.Upgrader) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", "client", realIP(r), "error", err)
			return
		}

		client := newClient(clientBuffer)
		session := newSession(client, reg, rate.NewLimiter(rate.Limit(cfg.rateLimit), cfg.rateBurst), logger)

		logger.Debug("client connected", "conn", client.id, "client", realIP(r))

		go client.writePump(conn)
		client.readPump(r, conn, session)

		logger.Debug("client disconnected", "conn", client.id, "client", realIP(r))
	}
}

func (c *Client) readPump(r *http.Request, conn *websocket.Conn, s *Session) {
	defer func() {
		s.Disconnect()
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.deliver(errorMessage(validationf("Malformed message.")))
			continue
		}

		s.Handle(r.Context(), msg)
	}
}

func (c *Client) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// joinURL is the link a QR code points at: the front-end with the room code
// pre-filled.
func joinURL(cfg *Config, r *http.Request, code string) string {
	base := cfg.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host + cfg.prefix
	}

	return strings.TrimSuffix(base, "/") + "/?room=" + url.QueryEscape(code)
}

func lookupRoom(reg *Registry, w http.ResponseWriter, ps httprouter.Params) *Room {
	room, err := reg.Get(ps.ByName("code"))
	switch {
	case errors.Is(err, ErrValidation):
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return nil
	case err != nil:
		http.Error(w, "room not found", http.StatusNotFound)
		return nil
	}
	return room
}

func serveQR(cfg *Config, reg *Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := lookupRoom(reg, w, ps)
		if room == nil {
			return
		}

		png, err := qrcode.Encode(joinURL(cfg, r, room.Code()), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)
		corsHeaders(cfg, w, r)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

func serveRoomSummary(cfg *Config, reg *Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := lookupRoom(reg, w, ps)
		if room == nil {
			return
		}

		if err := writeJSON(cfg, w, r, http.StatusOK, room.Summary()); err != nil {
			errs <- err
		}
	}
}

// registerTriviaGame sets up routes so that:
//   - /ws               → websocket carrying every game message
//   - /rooms/:code      → JSON summary of a room (never its answers)
//   - /rooms/:code/qr   → PNG QR code linking to the room
func registerTriviaGame(cfg *Config, logger *slog.Logger, reg *Registry, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/ws", serveWS(cfg, logger, reg, newUpgrader(cfg)))

	mux.GET(cfg.prefix+"/rooms/:code", serveRoomSummary(cfg, reg, errs))

	mux.GET(cfg.prefix+"/rooms/:code/qr", serveQR(cfg, reg, errs))
}
