package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with a per-call timeout and a circuit
// breaker. Calls are never retried; a failed call is reported to the caller
// as-is so the user decides whether to try again.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Timeout time.Duration
}

// Do executes req. Transport errors and 5xx responses count as breaker
// failures; 4xx responses are the server answering and count as successes.
// The returned cancel func must be called once the body has been consumed.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, context.CancelFunc, error) {
	if cl.Client == nil {
		return nil, nil, errors.New("resilience: http client not configured")
	}
	if cl.Breaker != nil && !cl.Breaker.Allow() {
		return nil, nil, ErrOpenCircuit
	}

	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}

	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		cl.report(false)
		return nil, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	cl.report(resp.StatusCode < http.StatusInternalServerError)
	return resp, cancel, nil
}

func (cl HTTPClient) report(success bool) {
	if cl.Breaker != nil {
		cl.Breaker.Report(success)
	}
}
