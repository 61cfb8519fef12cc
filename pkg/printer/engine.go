// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package printer keeps a canonical view of one SDCP printer in sync with
// the device and republishes it to any number of consumers.
//
// An Engine owns the device link and everything that follows from it:
// frames are decoded and merged into a Store in arrival order, command
// results are matched to the commands that caused them, and the merged
// state is fanned out to subscribers at a bounded cadence.
package printer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/resinstat/pkg/retry"
	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

// Config configures an Engine. Zero durations take the defaults below.
type Config struct {
	// Address is used by Connect when called without one
	Address string
	// MainboardID addresses requests until the printer announces its own
	MainboardID string

	CommandTimeout      time.Duration // 5s
	FollowUpDelay       time.Duration // 300ms
	PollInterval        time.Duration // 0 disables periodic refresh
	SweepInterval       time.Duration // 250ms
	BroadcastInterval   time.Duration // 1s
	MinBroadcastSpacing time.Duration // 100ms

	// Reconnect governs the device link. MaxAttempts 0 retries forever.
	Reconnect retry.Policy

	Dialer     Dialer
	Logger     zerolog.Logger
	Registerer prometheus.Registerer
	Now        func() time.Time

	// OnFrame, when set, observes every decoded frame before it is applied
	OnFrame func(sdcp.Frame)
}

func (c *Config) setDefaults() {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 5 * time.Second
	}
	if c.FollowUpDelay <= 0 {
		c.FollowUpDelay = 300 * time.Millisecond
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 250 * time.Millisecond
	}
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = time.Second
	}
	if c.MinBroadcastSpacing < 0 {
		c.MinBroadcastSpacing = 0
	} else if c.MinBroadcastSpacing == 0 {
		c.MinBroadcastSpacing = 100 * time.Millisecond
	}
	if c.Reconnect.Base <= 0 {
		c.Reconnect.Base = retry.Default.Base
	}
	if c.Reconnect.Max <= 0 {
		c.Reconnect.Max = retry.Default.Max
	}
	if c.Dialer == nil {
		c.Dialer = &WebSocketDialer{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Engine is the printer state synchronization engine
type Engine struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *Metrics

	store *Store
	corr  *correlator
	sup   *supervisor
	hub   *hub

	boardMu   sync.RWMutex
	mainboard string

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closedMu  sync.RWMutex
	closed    bool
}

// New creates an engine and starts its background loops. It does not
// connect; call Connect.
func New(cfg Config) *Engine {
	cfg.setDefaults()

	e := &Engine{
		cfg:       cfg,
		logger:    cfg.Logger,
		metrics:   NewMetrics(cfg.Registerer),
		store:     NewStore(cfg.Now),
		mainboard: cfg.MainboardID,
	}

	e.sup = &supervisor{
		dialer:    cfg.Dialer,
		policy:    cfg.Reconnect,
		logger:    e.logger.With().Str("component", "supervisor").Logger(),
		metrics:   e.metrics,
		handle:    e.handleFrame,
		onConnect: e.onConnect,
	}

	e.corr = newCorrelator(e.store, e.sup.Write)
	e.corr.ids = sdcp.NewRequestIDs(cfg.Now)
	e.corr.clientID = uuid.NewString()
	e.corr.board = e.MainboardID
	e.corr.now = cfg.Now
	e.corr.logger = e.logger.With().Str("component", "correlator").Logger()
	e.corr.metrics = e.metrics
	e.corr.timeout = cfg.CommandTimeout
	e.corr.followUpDelay = cfg.FollowUpDelay
	e.corr.pollInterval = cfg.PollInterval
	e.corr.sweepInterval = cfg.SweepInterval
	e.sup.onDrop = func(err error) { e.corr.FailAll(err) }

	e.hub = newHub(e.store.Snapshot, cfg.BroadcastInterval, cfg.MinBroadcastSpacing)
	e.hub.logger = e.logger.With().Str("component", "hub").Logger()
	e.hub.metrics = e.metrics
	e.store.OnChange(e.hub.Notify)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.corr.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.hub.Run(ctx)
	}()

	return e
}

// Close tears the engine down: the link is closed, pending commands fail,
// subscriptions are closed and every background goroutine has exited by
// the time it returns.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closedMu.Lock()
		e.closed = true
		e.closedMu.Unlock()

		e.sup.Close()
		e.cancel()
		e.wg.Wait()
		e.corr.FailAll(ErrClosed)
	})
	return nil
}

func (e *Engine) isClosed() bool {
	e.closedMu.RLock()
	defer e.closedMu.RUnlock()
	return e.closed
}

// Connect opens the device link. An empty address uses Config.Address.
func (e *Engine) Connect(ctx context.Context, address string) error {
	if e.isClosed() {
		return ErrClosed
	}
	address = strings.TrimSpace(address)
	if address == "" {
		address = e.cfg.Address
	}
	if address == "" {
		return ErrNoAddress
	}
	return e.sup.Connect(ctx, address)
}

// Disconnect closes the device link. Pending commands fail with
// ErrDeviceUnavailable.
func (e *Engine) Disconnect() {
	e.sup.Disconnect()
}

// Snapshot returns the current canonical state
func (e *Engine) Snapshot() State {
	return e.store.Snapshot()
}

// Link returns the device link state
func (e *Engine) Link() LinkInfo {
	return e.sup.Info()
}

// Connected reports whether the device link is up
func (e *Engine) Connected() bool {
	return e.sup.Connected()
}

// Subscribe registers a push consumer
func (e *Engine) Subscribe() *Subscription {
	return e.hub.Subscribe()
}

// Pending returns the number of commands awaiting a result
func (e *Engine) Pending() int {
	return e.corr.Pending()
}

// MainboardID returns the identifier requests are addressed to
func (e *Engine) MainboardID() string {
	e.boardMu.RLock()
	defer e.boardMu.RUnlock()
	return e.mainboard
}

// Send issues an arbitrary command and waits for its outcome
func (e *Engine) Send(ctx context.Context, cmd int, payload any) error {
	if e.isClosed() {
		return ErrClosed
	}
	if !e.sup.Connected() {
		return ErrDeviceUnavailable
	}
	return e.corr.Send(ctx, cmd, payload)
}

// Pause pauses the current job
func (e *Engine) Pause(ctx context.Context) error {
	return e.Send(ctx, sdcp.CmdPausePrint, nil)
}

// Resume resumes a paused job
func (e *Engine) Resume(ctx context.Context) error {
	return e.Send(ctx, sdcp.CmdResume, nil)
}

// Stop aborts the current job
func (e *Engine) Stop(ctx context.Context) error {
	return e.Send(ctx, sdcp.CmdStopPrint, nil)
}

// StartPrint starts printing a file already stored on the printer
func (e *Engine) StartPrint(ctx context.Context, filename string) error {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return errors.New("printer: filename required")
	}
	return e.Send(ctx, sdcp.CmdStartPrint, sdcp.StartPrintPayload{Filename: filename})
}

// RefreshStatus asks the printer for a status frame
func (e *Engine) RefreshStatus(ctx context.Context) error {
	return e.Send(ctx, sdcp.CmdStatus, nil)
}

func (e *Engine) onConnect() {
	e.corr.refresh()
	if _, err := e.corr.dispatch(sdcp.CmdAttributes, nil); err != nil {
		e.logger.Debug().Err(err).Msg("Attributes request failed")
	}
}

// handleFrame is the single dispatch point for inbound frames. It runs on
// the receive loop, so merges happen in arrival order.
func (e *Engine) handleFrame(raw []byte) {
	f := sdcp.Decode(raw)
	f.Received = e.cfg.Now()
	e.metrics.frame(f.Kind)

	if e.cfg.OnFrame != nil {
		e.cfg.OnFrame(f)
	}

	if f.MainboardID != "" && f.Kind != sdcp.KindMalformed {
		e.learnMainboard(f.MainboardID)
	}

	switch f.Kind {
	case sdcp.KindStatus:
		e.store.Merge(f.Status)
	case sdcp.KindAttributes:
		e.store.MergeAttributes(f.Attributes, f.MainboardID)
	case sdcp.KindResult:
		e.corr.HandleResult(f.Result)
	case sdcp.KindNotice:
		e.logger.Debug().Str("topic", f.Topic).Msg("Ignoring frame")
	default:
		e.logger.Warn().Err(f.Err).Str("topic", f.Topic).Int("bytes", len(f.Raw)).Msg("Dropping malformed frame")
	}
}

func (e *Engine) learnMainboard(id string) {
	e.boardMu.Lock()
	defer e.boardMu.Unlock()
	if e.mainboard != id {
		e.logger.Debug().Str("mainboard_id", id).Msg("Learned mainboard ID")
		e.mainboard = id
	}
}
