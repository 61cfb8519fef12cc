// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

// Conn is one established device link
type Conn interface {
	// ReadFrame blocks until the next text frame arrives
	ReadFrame() ([]byte, error)
	// WriteFrame sends one frame. Safe for concurrent use.
	WriteFrame([]byte) error
	Close() error
}

// Dialer opens device links
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// WebSocketDialer dials the printer's SDCP websocket
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SkipTLSVerify    bool
}

// DeviceURL expands a printer address into its websocket URL. A bare host
// gets the default SDCP port and path; ws:// and wss:// URLs pass through.
func DeviceURL(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrNoAddress
	}

	if strings.Contains(address, "://") {
		u, err := url.Parse(address)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		switch u.Scheme {
		case "ws", "wss":
		default:
			return "", fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
		}
		return u.String(), nil
	}

	host := address
	if _, _, err := net.SplitHostPort(address); err != nil {
		host = net.JoinHostPort(address, strconv.Itoa(sdcp.DefaultPort))
	}
	u := url.URL{Scheme: "ws", Host: host, Path: sdcp.DefaultPath}
	return u.String(), nil
}

// Dial connects to the printer at address
func (d *WebSocketDialer) Dial(ctx context.Context, address string) (Conn, error) {
	wsURL, err := DeviceURL(address)
	if err != nil {
		return nil, err
	}

	handshake := d.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshake}
	if strings.HasPrefix(wsURL, "wss://") {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: d.SkipTLSVerify}
	}

	ctx, cancel := context.WithTimeout(ctx, handshake+5*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsConn{conn: conn, writeTimeout: writeTimeout}, nil
}

// wsConn adapts a gorilla connection. Gorilla allows one concurrent writer,
// so writes are serialized here.
type wsConn struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func (w *wsConn) ReadFrame() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) WriteFrame(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}
