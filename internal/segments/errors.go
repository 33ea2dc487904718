package segments

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrRateLimited  = errors.New("segment service rate limited")
	ErrClientStatus = errors.New("segment service rejected request")
	ErrServerStatus = errors.New("segment service error")
	ErrMalformed    = errors.New("malformed segment payload")
)

// Code is the failure class attached to fetch logs.
type Code string

const (
	CodeUnknown     Code = "unknown"
	CodeNetwork     Code = "network"
	CodeClient      Code = "client"
	CodeRateLimited Code = "rate_limited"
	CodeServer      Code = "server"
	CodeMalformed   Code = "malformed"
	CodeCancel      Code = "cancel"
)

// Classify buckets an error from the remote call path. Only sentinels and
// stdlib error types are inspected.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancel
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeNetwork
	}
	if errors.Is(err, ErrRateLimited) {
		return CodeRateLimited
	}
	if errors.Is(err, ErrClientStatus) {
		return CodeClient
	}
	if errors.Is(err, ErrServerStatus) {
		return CodeServer
	}
	if errors.Is(err, ErrMalformed) {
		return CodeMalformed
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	return CodeUnknown
}

// statusError turns a non-success HTTP status into a classified error.
func statusError(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("status %d: %w", status, ErrRateLimited)
	case status >= 400 && status < 500:
		return fmt.Errorf("status %d: %w", status, ErrClientStatus)
	default:
		return fmt.Errorf("status %d: %w", status, ErrServerStatus)
	}
}
