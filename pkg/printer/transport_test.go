// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

func TestDeviceURL(t *testing.T) {
	tests := []struct {
		address string
		want    string
		wantErr bool
	}{
		{address: "192.168.1.50", want: "ws://192.168.1.50:3030/websocket"},
		{address: " printer.lan ", want: "ws://printer.lan:3030/websocket"},
		{address: "192.168.1.50:8080", want: "ws://192.168.1.50:8080/websocket"},
		{address: "ws://10.0.0.2:3030/websocket", want: "ws://10.0.0.2:3030/websocket"},
		{address: "wss://printer.example/ws", want: "wss://printer.example/ws"},
		{address: "http://10.0.0.2", wantErr: true},
		{address: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, err := DeviceURL(tt.address)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakePrinter serves the SDCP websocket: it reports an exposing job on
// every status request and accepts every other command
func fakePrinter(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != sdcp.DefaultPath {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req sdcp.Request
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}

			if req.Data.Cmd == sdcp.CmdStatus {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"Topic":"sdcp/status/mbX","MainboardID":"mbX","Status":{
					"CurrentStatus":[1],"PrintInfo":{"Status":3,"CurrentLayer":25,"TotalLayer":100,"CurrentTicks":500,"TotalTicks":2000},
					"TempOfUVLED":45}}`))
			}
			reply := fmt.Sprintf(`{"Topic":"sdcp/response/mbX","Data":{"Cmd":%d,"Data":{"Ack":0},"RequestID":%q,"MainboardID":"mbX"}}`,
				req.Data.Cmd, req.Data.RequestID)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
}

func TestWebSocket_EndToEnd(t *testing.T) {
	srv := fakePrinter(t)
	defer srv.Close()

	e := New(Config{SweepInterval: 10 * time.Millisecond})
	defer e.Close()

	address := "ws" + strings.TrimPrefix(srv.URL, "http") + sdcp.DefaultPath
	require.NoError(t, e.Connect(context.Background(), address))

	st := waitFor(t, e, func(s State) bool { return s.Status == sdcp.StateExposing })
	assert.Equal(t, 25.0, st.Progress)
	assert.Equal(t, int64(1500), st.TimeRemaining)
	assert.True(t, st.UVLightOn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))

	snap := e.Snapshot()
	assert.Equal(t, sdcp.StateIdle, snap.Status)
	assert.Equal(t, 0, snap.CurrentLayer)
	assert.Equal(t, "mbX", e.MainboardID())

	e.Disconnect()
	assert.Equal(t, Disconnected, e.Link().State)
}

func TestWebSocket_ConnectRefused(t *testing.T) {
	srv := fakePrinter(t)
	address := srv.Listener.Addr().String()
	srv.Close()

	e := New(Config{Dialer: &WebSocketDialer{HandshakeTimeout: time.Second}})
	defer e.Close()

	err := e.Connect(context.Background(), address)
	assert.ErrorIs(t, err, ErrConnection)
}
