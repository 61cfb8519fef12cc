// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Thermoquad/resinstat/pkg/printer"
)

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode *int   `json:"errorCode,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeBadRequest writes a 400 with msg
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// statusFor maps an engine error to its HTTP status
func statusFor(err error) int {
	var rejected *printer.RejectedError
	switch {
	case errors.Is(err, printer.ErrNoAddress):
		return http.StatusBadRequest
	case errors.Is(err, printer.ErrDeviceUnavailable):
		return http.StatusConflict
	case errors.As(err, &rejected), errors.Is(err, printer.ErrConnection):
		return http.StatusBadGateway
	case errors.Is(err, printer.ErrCommandTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, printer.ErrClosed), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writePrinterError writes an engine error, including the printer's
// error code for rejected commands
func writePrinterError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var rejected *printer.RejectedError
	if errors.As(err, &rejected) {
		code := rejected.ErrorCode
		resp.ErrorCode = &code
	}
	writeJSON(w, statusFor(err), resp)
}
