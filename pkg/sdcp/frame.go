// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformed is wrapped by every decode failure
var ErrMalformed = errors.New("sdcp: malformed frame")

// Kind tags a decoded inbound frame
type Kind int

const (
	KindMalformed Kind = iota
	KindStatus
	KindAttributes
	KindResult
	KindNotice // well-formed frame on a topic this client does not consume
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindAttributes:
		return "attributes"
	case KindResult:
		return "result"
	case KindNotice:
		return "notice"
	default:
		return "malformed"
	}
}

// Frame is one decoded inbound message. Exactly one of Status, Attributes
// or Result is set, according to Kind. Err is set for KindMalformed.
type Frame struct {
	Kind        Kind
	Topic       string
	MainboardID string
	Status      *RawStatus
	Attributes  *RawAttributes
	Result      *Result
	Err         error
	Raw         []byte
	Received    time.Time
}

// RawStatus is the telemetry object of a status frame. Every field is
// optional; nil means the printer did not report it.
type RawStatus struct {
	CurrentStatus   StatusList    `json:"CurrentStatus"`
	PreviousStatus  *int          `json:"PreviousStatus"`
	PrintInfo       *RawPrintInfo `json:"PrintInfo"`
	TempOfUVLED     *float64      `json:"TempOfUVLED"`
	TempOfBox       *float64      `json:"TempOfBox"`
	TempTargetBox   *float64      `json:"TempTargetBox"`
	ReleaseFilm     *int          `json:"ReleaseFilm"`
	PrintScreen     *int          `json:"PrintScreen"`
	TimeLapseStatus *int          `json:"TimeLapseStatus"`
	UVOn            *Flag         `json:"UVOn"`
	UVLEDStatus     *int          `json:"UVLEDStatus"`
}

// RawPrintInfo is Status.PrintInfo. Older firmware uses CurLayer and
// FileName; the accessors resolve the aliases.
type RawPrintInfo struct {
	Status       *int    `json:"Status"`
	CurrentLayer *int    `json:"CurrentLayer"`
	CurLayer     *int    `json:"CurLayer"`
	TotalLayer   *int    `json:"TotalLayer"`
	CurrentTicks *int64  `json:"CurrentTicks"`
	TotalTicks   *int64  `json:"TotalTicks"`
	Filename     *string `json:"Filename"`
	FileName     *string `json:"FileName"`
	ErrorNumber  *int    `json:"ErrorNumber"`
	TaskID       *string `json:"TaskId"`
}

// Layer returns the current layer, honouring the CurLayer alias
func (p *RawPrintInfo) Layer() *int {
	if p.CurrentLayer != nil {
		return p.CurrentLayer
	}
	return p.CurLayer
}

// File returns the active file name, honouring the FileName alias
func (p *RawPrintInfo) File() *string {
	if p.Filename != nil {
		return p.Filename
	}
	return p.FileName
}

// RawAttributes is the Attributes object of an attributes frame
type RawAttributes struct {
	Name            *string `json:"Name"`
	MachineName     *string `json:"MachineName"`
	FirmwareVersion *string `json:"FirmwareVersion"`
	MainboardID     *string `json:"MainboardID"`
}

// Result is the outcome of a command, carried in a response frame
type Result struct {
	Cmd       int
	RequestID string
	Code      int
	ErrorCode int
}

// OK reports whether the printer accepted the command
func (r *Result) OK() bool {
	return r.Code == ResultSuccess
}

// StatusList decodes CurrentStatus, which firmware sends either as an array
// or as a bare number.
type StatusList []int

// UnmarshalJSON implements json.Unmarshaler
func (s *StatusList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var list []int
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = StatusList{v}
	return nil
}

// First returns the primary status code, if any
func (s StatusList) First() (int, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[0], true
}

// Flag decodes a boolean sent either as true/false or as 0/1
type Flag bool

// UnmarshalJSON implements json.Unmarshaler
func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("invalid flag %s", b)
	}
	return nil
}

type envelope struct {
	ID          string          `json:"Id"`
	Topic       string          `json:"Topic"`
	MainboardID string          `json:"MainboardID"`
	Data        json.RawMessage `json:"Data"`
	Status      json.RawMessage `json:"Status"`
	Attributes  json.RawMessage `json:"Attributes"`
}

type resultData struct {
	Cmd         *int            `json:"Cmd"`
	RequestID   string          `json:"RequestID"`
	MainboardID string          `json:"MainboardID"`
	Result      *int            `json:"Result"`
	ErrorCode   *int            `json:"ErrorCode"`
	Data        json.RawMessage `json:"Data"`
}

type ackData struct {
	Ack *int `json:"Ack"`
}

// Decode parses one inbound frame. It never returns an error: failures are
// reported as a KindMalformed frame whose Err wraps ErrMalformed.
func Decode(raw []byte) Frame {
	f := Frame{Raw: raw, Received: time.Now()}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return malformed(f, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	f.Topic = env.Topic
	f.MainboardID = env.MainboardID

	switch {
	case isStatusTopic(env.Topic):
		if len(env.Status) == 0 || isNull(env.Status) {
			return malformed(f, fmt.Errorf("%w: status frame without Status", ErrMalformed))
		}
		var st RawStatus
		if err := json.Unmarshal(env.Status, &st); err != nil {
			return malformed(f, fmt.Errorf("%w: status: %v", ErrMalformed, err))
		}
		f.Kind = KindStatus
		f.Status = &st

	case strings.HasPrefix(env.Topic, TopicAttributesPrefix):
		if len(env.Attributes) == 0 || isNull(env.Attributes) {
			return malformed(f, fmt.Errorf("%w: attributes frame without Attributes", ErrMalformed))
		}
		var attrs RawAttributes
		if err := json.Unmarshal(env.Attributes, &attrs); err != nil {
			return malformed(f, fmt.Errorf("%w: attributes: %v", ErrMalformed, err))
		}
		f.Kind = KindAttributes
		f.Attributes = &attrs
		if f.MainboardID == "" && attrs.MainboardID != nil {
			f.MainboardID = *attrs.MainboardID
		}

	case strings.Contains(env.Topic, TopicResponseMarker):
		res, mainboard, err := decodeResult(env.Data)
		if err != nil {
			return malformed(f, err)
		}
		f.Kind = KindResult
		f.Result = res
		if f.MainboardID == "" {
			f.MainboardID = mainboard
		}

	case env.Topic == "":
		return malformed(f, fmt.Errorf("%w: missing Topic", ErrMalformed))

	default:
		f.Kind = KindNotice
	}

	return f
}

func decodeResult(data json.RawMessage) (*Result, string, error) {
	if len(data) == 0 || isNull(data) {
		return nil, "", fmt.Errorf("%w: response frame without Data", ErrMalformed)
	}
	var rd resultData
	if err := json.Unmarshal(data, &rd); err != nil {
		return nil, "", fmt.Errorf("%w: response: %v", ErrMalformed, err)
	}
	if rd.Cmd == nil {
		return nil, "", fmt.Errorf("%w: response without Cmd", ErrMalformed)
	}

	res := &Result{Cmd: *rd.Cmd, RequestID: rd.RequestID}
	switch {
	case rd.Result != nil:
		res.Code = *rd.Result
	case len(rd.Data) > 0 && !isNull(rd.Data):
		// Newer firmware nests the outcome as Data.Data.Ack
		var ack ackData
		if err := json.Unmarshal(rd.Data, &ack); err != nil || ack.Ack == nil {
			return nil, "", fmt.Errorf("%w: response without Result", ErrMalformed)
		}
		res.Code = *ack.Ack
	default:
		return nil, "", fmt.Errorf("%w: response without Result", ErrMalformed)
	}
	if rd.ErrorCode != nil {
		res.ErrorCode = *rd.ErrorCode
	}
	return res, rd.MainboardID, nil
}

func isStatusTopic(topic string) bool {
	return strings.HasSuffix(topic, TopicStatusSuffix) || strings.HasPrefix(topic, TopicStatusPrefix)
}

func isNull(b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

func malformed(f Frame, err error) Frame {
	f.Kind = KindMalformed
	f.Err = err
	return f
}
