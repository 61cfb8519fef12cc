// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/resinstat/pkg/api"
)

// Stream follows the daemon's push stream and calls fn for every status
// message, in order, from a single goroutine. A dropped stream is redialed
// with the client's retry policy; a successful dial resets the failure
// count. Stream returns ctx.Err() when ctx ends and ErrGaveUp (wrapping the
// last failure) when the budget runs out.
func (c *Client) Stream(ctx context.Context, fn func(api.StatusPayload)) error {
	failures := 0
	for {
		err := c.follow(ctx, fn, func() { failures = 0 })
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		if c.policy.Exhausted(failures) {
			c.logger.Error().Err(err).Int("failures", failures-1).Msg("Push stream gave up")
			return fmt.Errorf("%w: %w", ErrGaveUp, err)
		}

		delay := c.policy.Delay(failures)
		c.logger.Info().
			Err(err).
			Int("attempt", failures).
			Dur("delay", delay).
			Msg("Push stream lost, reconnecting")

		if err := c.policy.Wait(ctx, failures); err != nil {
			return err
		}
	}
}

// follow runs one push connection until it fails
func (c *Client) follow(ctx context.Context, fn func(api.StatusPayload), connected func()) error {
	header := http.Header{}
	header.Set(SessionHeader, c.session)

	conn, resp, err := c.dialer.DialContext(ctx, c.streamURL(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial push stream: %w (HTTP %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial push stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	connected()
	c.logger.Debug().Str("url", c.streamURL()).Msg("Push stream connected")

	for {
		var msg api.PushMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return errors.New("push stream closed by server")
			}
			return fmt.Errorf("read push stream: %w", err)
		}
		if msg.Type != "status" {
			continue
		}
		fn(msg.Data)
	}
}
