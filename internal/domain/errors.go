package domain

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
)

var (
	// ErrValidation marks bad or missing caller input; no network call was made.
	ErrValidation = errors.New("validation failed")
	// ErrUpstreamTransient marks timeouts, 5xx, rate limits and network faults
	// that are safe to retry.
	ErrUpstreamTransient = errors.New("upstream transient failure")
	// ErrUpstreamPermanent marks non-retryable upstream rejections such as bad
	// credentials or 4xx responses other than 429.
	ErrUpstreamPermanent = errors.New("upstream permanent failure")
	// ErrParseFailed marks malformed model output that survived one repair attempt.
	ErrParseFailed = errors.New("parse failed")
	// ErrPersistence marks a store write failure.
	ErrPersistence = errors.New("persistence failed")

	ErrNotFound            = errors.New("not found")
	ErrMissingExternalTask = errors.New("missing external task reference")
)

// ClassifyTransportError maps a network-level failure onto the taxonomy.
// Timeouts and connection faults are transient; everything else is permanent.
func ClassifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrUpstreamTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrUpstreamTransient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrUpstreamTransient
	}
	return ErrUpstreamPermanent
}

// ClassifyHTTPStatus maps an HTTP status onto the taxonomy. 429 and 5xx are
// transient; other non-2xx statuses are permanent.
func ClassifyHTTPStatus(status int) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return ErrUpstreamTransient
	}
	return ErrUpstreamPermanent
}
