// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sdcp implements the SDCP (Smart Device Control Protocol) framing
// spoken by networked resin printers.
//
// SDCP is a JSON protocol carried over a persistent websocket. Clients send
// request frames on sdcp/request/<MainboardID>; the printer answers on
// sdcp/response/<MainboardID> and pushes telemetry on sdcp/status/... and
// sdcp/attributes/... topics. This package provides request framing,
// inbound frame decoding, status code mapping and human-readable formatting.
package sdcp

// Default device endpoint
const (
	DefaultPort = 3030
	DefaultPath = "/websocket"
)

// Command codes (Client → Printer). These values are a firmware contract.
const (
	CmdStatus     = 0
	CmdAttributes = 1
	CmdStopPrint  = 4
	CmdPausePrint = 5
	CmdResume     = 6
	CmdStartPrint = 128
)

// Topic prefixes and markers
const (
	TopicRequestPrefix    = "sdcp/request/"
	TopicResponseMarker   = "/response/"
	TopicStatusPrefix     = "sdcp/status/"
	TopicStatusSuffix     = "/status/update"
	TopicAttributesPrefix = "sdcp/attributes/"
)

// DefaultMainboardID is used until the printer announces its own identifier.
const DefaultMainboardID = "39e0281e8afa0100"

// FromClient is the origin tag for requests issued by this client.
const FromClient = 0

// Machine status codes (Status.CurrentStatus)
const (
	MachineIdle         = 0
	MachinePrinting     = 1
	MachineTransferring = 2
	MachineExposureTest = 3
	MachineSelfTest     = 4
)

// Print sub-status codes (Status.PrintInfo.Status)
const (
	PrintIdle         = 0
	PrintHoming       = 1
	PrintDropping     = 2
	PrintExposing     = 3
	PrintLifting      = 4
	PrintPausing      = 5
	PrintPaused       = 6
	PrintStopping     = 7
	PrintStopped      = 8
	PrintComplete     = 9
	PrintFileChecking = 10
)

// ResultSuccess is the Data.Result value of an accepted command.
const ResultSuccess = 0

// CommandName returns the human-readable name for a command code
func CommandName(cmd int) string {
	switch cmd {
	case CmdStatus:
		return "STATUS"
	case CmdAttributes:
		return "ATTRIBUTES"
	case CmdStopPrint:
		return "STOP_PRINT"
	case CmdPausePrint:
		return "PAUSE_PRINT"
	case CmdResume:
		return "RESUME_PRINT"
	case CmdStartPrint:
		return "START_PRINT"
	default:
		return "UNKNOWN"
	}
}
