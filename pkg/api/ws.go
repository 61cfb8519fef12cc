// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/resinstat/pkg/printer"
)

const wsWriteTimeout = 10 * time.Second

// PushMessage is one websocket frame sent to dashboards
type PushMessage struct {
	Type string        `json:"type"`
	Data StatusPayload `json:"data"`
}

// clientMessage is a websocket frame sent by dashboards
type clientMessage struct {
	Type      string `json:"type"`
	PrinterIP string `json:"printerIP"`
}

// handleWS streams status snapshots until either side goes away
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	sub := s.printer.Subscribe()
	log := s.logger.With().Str("subscriber", sub.ID).Logger()
	log.Debug().Str("remote", r.RemoteAddr).Msg("Push client connected")

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer sub.Close()
		s.readClient(conn, sub)
	}()

	s.writeClient(conn, sub)
	conn.Close()
	<-readerDone

	log.Debug().Msg("Push client disconnected")
}

// writeClient is the only writer on conn
func (s *Server) writeClient(conn *websocket.Conn, sub *printer.Subscription) {
	for st := range sub.C() {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(PushMessage{Type: "status", Data: s.status(st)}); err != nil {
			sub.Close()
			return
		}
	}

	// Engine shut down
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
}

// readClient handles client requests until the connection fails
func (s *Server) readClient(conn *websocket.Conn, sub *printer.Subscription) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("Ignoring malformed push client message")
			continue
		}

		switch msg.Type {
		case "connect":
			if msg.PrinterIP == "" {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
			err := s.printer.Connect(ctx, msg.PrinterIP)
			cancel()
			if err != nil {
				s.logger.Warn().Err(err).Str("subscriber", sub.ID).Msg("Connect from push client failed")
			}
		default:
			s.logger.Debug().Str("type", msg.Type).Msg("Ignoring push client message")
		}
	}
}
