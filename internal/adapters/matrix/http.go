package matrix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

// do executes one attempt and drains the body so the attempt context can be
// released before decoding.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.session.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}

// doWithRetry retries transient failures (network errors, 429/5xx responses)
// using exponential backoff while respecting context cancellation. Each
// attempt runs under its own timeout.
func (p *Provider) doWithRetry(
	ctx context.Context,
	makeReq func(ctx context.Context) (*http.Request, error),
) ([]byte, error) {
	backoff := p.cfg.Backoff

	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := p.attempt(ctx, makeReq)
		if err == nil {
			return body, nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case 429, 500, 502, 503, 504:
				retry = true
			}
		}

		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// Per-attempt timeout, not caller cancellation.
			retry = true
		}

		if !retry || attempt == p.cfg.MaxRetries {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
	}

	return nil, lastErr
}

func (p *Provider) attempt(
	ctx context.Context,
	makeReq func(ctx context.Context) (*http.Request, error),
) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	req, err := makeReq(attemptCtx)
	if err != nil {
		return nil, fmt.Errorf("make request: %w", err)
	}

	return p.do(req)
}
