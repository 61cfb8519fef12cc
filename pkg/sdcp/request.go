// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdcp

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Request is an outbound SDCP frame
type Request struct {
	ID    string      `json:"Id"`
	Data  RequestData `json:"Data"`
	Topic string      `json:"Topic"`
}

// RequestData is the body of an outbound frame
type RequestData struct {
	Cmd         int    `json:"Cmd"`
	Data        any    `json:"Data"`
	RequestID   string `json:"RequestID"`
	MainboardID string `json:"MainboardID"`
	TimeStamp   int64  `json:"TimeStamp"`
	From        int    `json:"From"`
}

// NewRequest builds a request frame. A nil payload is sent as an empty object.
func NewRequest(clientID, mainboardID, requestID string, cmd int, payload any, now time.Time) *Request {
	if payload == nil {
		payload = struct{}{}
	}
	if mainboardID == "" {
		mainboardID = DefaultMainboardID
	}
	return &Request{
		ID: clientID,
		Data: RequestData{
			Cmd:         cmd,
			Data:        payload,
			RequestID:   requestID,
			MainboardID: mainboardID,
			TimeStamp:   now.Unix(),
			From:        FromClient,
		},
		Topic: TopicRequestPrefix + mainboardID,
	}
}

// Encode serializes the request for the wire
func (r *Request) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request %s: %w", CommandName(r.Data.Cmd), err)
	}
	return data, nil
}

// StartPrintPayload is the Data payload of CmdStartPrint
type StartPrintPayload struct {
	Filename   string `json:"Filename"`
	StartLayer int    `json:"StartLayer"`
}

// RequestIDs generates time-ordered, fixed-width request identifiers.
//
// Each identifier is the current Unix time in milliseconds rendered as a
// 16-digit zero-padded decimal. Identifiers issued within the same
// millisecond are bumped forward so the sequence is strictly increasing.
type RequestIDs struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewRequestIDs creates a generator. A nil clock uses time.Now.
func NewRequestIDs(now func() time.Time) *RequestIDs {
	if now == nil {
		now = time.Now
	}
	return &RequestIDs{now: now}
}

// Next returns the next identifier
func (g *RequestIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return fmt.Sprintf("%016d", ms)
}
