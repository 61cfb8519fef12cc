// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

// fakeDevice is the printer side of an in-memory link
type fakeDevice struct {
	in     chan []byte // device -> engine
	out    chan []byte // engine -> device
	closed chan struct{}
	once   sync.Once
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (d *fakeDevice) ReadFrame() ([]byte, error) {
	select {
	case data := <-d.in:
		return data, nil
	case <-d.closed:
		return nil, io.EOF
	}
}

func (d *fakeDevice) WriteFrame(data []byte) error {
	select {
	case <-d.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case d.out <- data:
		return nil
	default:
		return errors.New("fake device outbox full")
	}
}

func (d *fakeDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

// push delivers a raw frame to the engine
func (d *fakeDevice) push(t *testing.T, frame string) {
	t.Helper()
	select {
	case d.in <- []byte(frame):
	case <-time.After(time.Second):
		t.Fatal("engine not reading frames")
	}
}

// expect reads requests until one with cmd arrives
func (d *fakeDevice) expect(t *testing.T, cmd int) sdcp.Request {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-d.out:
			var req sdcp.Request
			require.NoError(t, json.Unmarshal(data, &req))
			if req.Data.Cmd == cmd {
				return req
			}
		case <-deadline:
			t.Fatalf("no %s request sent", sdcp.CommandName(cmd))
		}
	}
}

// respond sends a result frame for req
func (d *fakeDevice) respond(t *testing.T, req sdcp.Request, result, errorCode int) {
	t.Helper()
	d.push(t, fmt.Sprintf(
		`{"Topic":"sdcp/response/%s","Data":{"Cmd":%d,"Result":%d,"ErrorCode":%d,"RequestID":%q}}`,
		req.Data.MainboardID, req.Data.Cmd, result, errorCode, req.Data.RequestID))
}

// fakeDialer hands out fakeDevices, or fails while err is set
type fakeDialer struct {
	mu      sync.Mutex
	err     error
	dials   int
	devices chan *fakeDevice
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{devices: make(chan *fakeDevice, 8)}
}

func (f *fakeDialer) Dial(ctx context.Context, address string) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.err != nil {
		return nil, f.err
	}
	d := newFakeDevice()
	f.devices <- d
	return d, nil
}

func (f *fakeDialer) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeDialer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeDialer) next(t *testing.T) *fakeDevice {
	t.Helper()
	select {
	case d := <-f.devices:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not dial")
		return nil
	}
}

// newTestEngine returns a connected engine and its device
func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *fakeDialer, *fakeDevice) {
	t.Helper()
	dialer := newFakeDialer()
	cfg := Config{
		Dialer:              dialer,
		CommandTimeout:      time.Second,
		SweepInterval:       10 * time.Millisecond,
		FollowUpDelay:       200 * time.Millisecond,
		BroadcastInterval:   time.Hour,
		MinBroadcastSpacing: -1,
	}
	cfg.Reconnect.Base = 10 * time.Millisecond
	cfg.Reconnect.Max = 50 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	e := New(cfg)
	t.Cleanup(func() { e.Close() })

	require.NoError(t, e.Connect(context.Background(), "printer.local"))
	device := dialer.next(t)
	device.respond(t, device.expect(t, sdcp.CmdStatus), 0, 0)
	device.respond(t, device.expect(t, sdcp.CmdAttributes), 0, 0)
	require.Eventually(t, func() bool { return e.Pending() == 0 }, time.Second, 5*time.Millisecond)
	return e, dialer, device
}

const exposingFrame = `{"Topic":"sdcp/status/update","MainboardID":"mb1","Status":{
	"CurrentStatus":[1],
	"PrintInfo":{"Status":3,"CurrentLayer":25,"TotalLayer":100,"CurrentTicks":500,"TotalTicks":2000},
	"TempOfUVLED":45}}`
