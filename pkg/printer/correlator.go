// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

// pendingCommand is an outbound command awaiting its result
type pendingCommand struct {
	id       string
	cmd      int
	sent     time.Time
	deadline time.Time
	done     chan error // capacity 1, written once by whoever removes the entry

	optimistic bool
	prev       State
	version    uint64
}

// correlator matches command results to pending commands and owns the
// scheduled follow-up refreshes
type correlator struct {
	store    *Store
	write    func([]byte) error
	ids      *sdcp.RequestIDs
	clientID string
	board    func() string
	now      func() time.Time
	logger   zerolog.Logger
	metrics  *Metrics

	timeout       time.Duration
	followUpDelay time.Duration
	pollInterval  time.Duration
	sweepInterval time.Duration

	mu        sync.Mutex
	pending   map[string]*pendingCommand
	followUps []time.Time
	nextPoll  time.Time

	wake chan struct{}
}

func newCorrelator(store *Store, write func([]byte) error) *correlator {
	return &correlator{
		store:   store,
		write:   write,
		pending: make(map[string]*pendingCommand),
		wake:    make(chan struct{}, 1),
	}
}

// Send issues cmd and blocks until its outcome: nil on success,
// *RejectedError, ErrCommandTimeout, ErrDeviceUnavailable or ctx.Err().
func (c *correlator) Send(ctx context.Context, cmd int, payload any) error {
	p, err := c.dispatch(cmd, payload)
	if err != nil {
		return err
	}

	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		if c.take(p.id) != nil {
			c.revert(p)
			return ctx.Err()
		}
		return <-p.done
	}
}

// dispatch registers a pending command, applies its optimistic transition
// and writes the request. The returned command is already resolved if
// the write failed after another path claimed it.
func (c *correlator) dispatch(cmd int, payload any) (*pendingCommand, error) {
	now := c.now()
	req := sdcp.NewRequest(c.clientID, c.board(), c.ids.Next(), cmd, payload, now)
	data, err := req.Encode()
	if err != nil {
		return nil, err
	}

	p := &pendingCommand{
		id:       req.Data.RequestID,
		cmd:      cmd,
		sent:     now,
		deadline: now.Add(c.timeout),
		done:     make(chan error, 1),
	}

	if t, ok := transitionFor(cmd); ok {
		p.prev, p.version = c.store.Apply(t)
		p.optimistic = true
	}

	c.mu.Lock()
	c.pending[p.id] = p
	c.mu.Unlock()

	if err := c.write(data); err != nil {
		if c.take(p.id) == nil {
			return p, nil
		}
		c.revert(p)
		c.metrics.command(cmd, "unavailable")
		return nil, err
	}

	c.logger.Debug().
		Str("command", sdcp.CommandName(cmd)).
		Str("request_id", p.id).
		Msg("Command sent")
	return p, nil
}

// take removes and returns the pending command with id, or nil if another
// path already resolved it
func (c *correlator) take(id string) *pendingCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return p
}

// match removes the command a result belongs to: by RequestID when the
// printer echoes one, else the oldest pending command with the same code.
// A result carrying an unknown RequestID matches nothing.
func (c *correlator) match(res *sdcp.Result) *pendingCommand {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res.RequestID != "" {
		p, ok := c.pending[res.RequestID]
		if !ok {
			return nil
		}
		delete(c.pending, p.id)
		return p
	}

	var oldest *pendingCommand
	for _, p := range c.pending {
		if p.cmd != res.Cmd {
			continue
		}
		if oldest == nil || p.id < oldest.id {
			oldest = p
		}
	}
	if oldest != nil {
		delete(c.pending, oldest.id)
	}
	return oldest
}

// HandleResult resolves the command a result frame answers. It reports
// whether a pending command matched.
func (c *correlator) HandleResult(res *sdcp.Result) bool {
	p := c.match(res)
	if p == nil {
		c.logger.Debug().
			Str("command", sdcp.CommandName(res.Cmd)).
			Str("request_id", res.RequestID).
			Msg("Unmatched command result")
		return false
	}

	if res.OK() {
		if p.cmd == sdcp.CmdStopPrint {
			t, _ := transitionFor(p.cmd)
			c.store.Apply(t)
		}
		if resyncs(p.cmd) {
			c.scheduleFollowUp(c.now().Add(c.followUpDelay))
		}
		c.metrics.command(p.cmd, "ok")
		p.done <- nil
		return true
	}

	c.revert(p)
	if resyncs(p.cmd) {
		c.scheduleFollowUp(c.now())
	}
	c.logger.Warn().
		Str("command", sdcp.CommandName(p.cmd)).
		Int("result", res.Code).
		Int("error_code", res.ErrorCode).
		Msg("Command rejected")
	c.metrics.command(p.cmd, "rejected")
	p.done <- &RejectedError{Cmd: p.cmd, Result: res.Code, ErrorCode: res.ErrorCode}
	return true
}

// FailAll resolves every pending command with err and drops scheduled
// follow-ups
func (c *correlator) FailAll(err error) int {
	c.mu.Lock()
	failed := make([]*pendingCommand, 0, len(c.pending))
	for id, p := range c.pending {
		failed = append(failed, p)
		delete(c.pending, id)
	}
	c.followUps = nil
	c.mu.Unlock()

	c.revertStack(failed)
	for _, p := range failed {
		c.metrics.command(p.cmd, "unavailable")
		p.done <- err
	}
	if len(failed) > 0 {
		c.logger.Warn().Err(err).Int("count", len(failed)).Msg("Failed pending commands")
	}
	return len(failed)
}

// Pending returns the number of unresolved commands
func (c *correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// revert undoes p's optimistic transition unless newer state has been merged
func (c *correlator) revert(p *pendingCommand) (uint64, bool) {
	if !p.optimistic {
		return 0, false
	}
	version, ok := c.store.Restore(p.prev, p.version)
	if ok {
		c.logger.Debug().Str("command", sdcp.CommandName(p.cmd)).Msg("Optimistic update reverted")
	}
	return version, ok
}

// revertStack undoes a batch of failed commands newest first. Each restore
// hands its version to the transition directly beneath it, so stacked
// optimistic updates unwind back to the last merged state.
func (c *correlator) revertStack(failed []*pendingCommand) {
	sort.Slice(failed, func(i, j int) bool { return failed[i].id > failed[j].id })
	for i, p := range failed {
		version, ok := c.revert(p)
		if !ok {
			continue
		}
		for _, older := range failed[i+1:] {
			if older.optimistic && older.version == p.prev.Version {
				older.version = version
				break
			}
		}
	}
}

// resyncs reports whether a command's outcome is followed by a status refresh
func resyncs(cmd int) bool {
	return cmd != sdcp.CmdStatus && cmd != sdcp.CmdAttributes
}

func (c *correlator) scheduleFollowUp(at time.Time) {
	c.mu.Lock()
	c.followUps = append(c.followUps, at)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run sweeps expired commands and fires due follow-ups until ctx is done
func (c *correlator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.wake:
		}
		c.sweep()
	}
}

func (c *correlator) sweep() {
	now := c.now()

	c.mu.Lock()
	var expired []*pendingCommand
	for id, p := range c.pending {
		if !now.Before(p.deadline) {
			expired = append(expired, p)
			delete(c.pending, id)
		}
	}

	refresh := false
	remaining := c.followUps[:0]
	for _, at := range c.followUps {
		if now.Before(at) {
			remaining = append(remaining, at)
		} else {
			refresh = true
		}
	}
	c.followUps = remaining

	if c.pollInterval > 0 && !now.Before(c.nextPoll) {
		refresh = true
		c.nextPoll = now.Add(c.pollInterval)
	}
	c.mu.Unlock()

	c.revertStack(expired)
	for _, p := range expired {
		c.logger.Warn().
			Str("command", sdcp.CommandName(p.cmd)).
			Str("request_id", p.id).
			Dur("waited", now.Sub(p.sent)).
			Msg("Command timed out")
		c.metrics.command(p.cmd, "timeout")
		p.done <- ErrCommandTimeout
	}

	if refresh {
		c.refresh()
	}
}

// refresh requests a status frame without waiting for its result
func (c *correlator) refresh() {
	if _, err := c.dispatch(sdcp.CmdStatus, nil); err != nil && !errors.Is(err, ErrDeviceUnavailable) {
		c.logger.Warn().Err(err).Msg("Status refresh failed")
	}
}
