// Package provider contains the network-facing clients: node RPC and block
// explorer APIs per chain family. This package is read-only for private
// keys; all signing happens in the adapter layer. Amounts cross this
// boundary in base units only.
package provider

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Common errors
var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrBroadcastRejected = errors.New("broadcast rejected")
	ErrBadResponse       = errors.New("malformed provider response")
)

const defaultTimeout = 30 * time.Second

// newRESTClient builds a resty client with the shared defaults. Retries on
// 429 and 5xx are left to the caller's backoff policy; the client itself
// only classifies.
func newRESTClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
}

// classify maps an HTTP response to a sentinel error, or nil for success.
func classify(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode() == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.IsError():
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// IsRetryable reports whether a provider error is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
