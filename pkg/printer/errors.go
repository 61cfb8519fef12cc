// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

var (
	// ErrConnection matches every *ConnectionError
	ErrConnection = errors.New("printer: connection failed")

	// ErrDeviceUnavailable is returned when the device link is down or
	// drops while a command is pending
	ErrDeviceUnavailable = errors.New("printer: device unavailable")

	// ErrMalformedMessage is wrapped by frames that fail to decode
	ErrMalformedMessage = sdcp.ErrMalformed

	// ErrCommandRejected matches every *RejectedError
	ErrCommandRejected = errors.New("printer: command rejected")

	// ErrCommandTimeout is returned when no result arrives in time
	ErrCommandTimeout = errors.New("printer: command timed out")

	// ErrClosed is returned by an engine that has been torn down
	ErrClosed = errors.New("printer: engine closed")

	// ErrNoAddress is returned by Connect when neither the call nor the
	// configuration names a printer
	ErrNoAddress = errors.New("printer: no address configured")
)

// ConnectionError reports a failed dial or handshake
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("printer: connect %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// RejectedError reports a non-zero command result from the printer
type RejectedError struct {
	Cmd       int
	Result    int
	ErrorCode int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("printer: %s rejected (result %d, error code %d)",
		sdcp.CommandName(e.Cmd), e.Result, e.ErrorCode)
}

func (e *RejectedError) Is(target error) bool { return target == ErrCommandRejected }
