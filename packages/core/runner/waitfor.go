package runner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tkrun/packages/core/env"
	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
	"github.com/abdul-hamid-achik/tkrun/packages/http"
)

// maxProbeTimeout caps a single readiness probe.
const maxProbeTimeout = 5 * time.Second

// waitForService polls cfg.URL until it returns the expected status code or
// cfg.Timeout elapses.
func (r *Runner) waitForService(ctx context.Context, cfg *parser.WaitFor, resolver *env.Resolver) error {
	url, err := resolver.ResolveString("config.wait_for.url", cfg.URL)
	if err != nil {
		return err
	}

	r.logger.Debug("waiting for service",
		zap.String("url", url),
		zap.Int("status", cfg.Status),
		zap.Duration("timeout", cfg.Timeout),
		zap.Duration("interval", cfg.Interval))

	probeTimeout := cfg.Timeout
	if probeTimeout <= 0 || probeTimeout > maxProbeTimeout {
		probeTimeout = maxProbeTimeout
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(cfg.Timeout)

	var lastErr error
	var lastStatus int

	for {
		resp, err := r.client.Do(ctx, http.NewRequest("GET", url).SetTimeout(probeTimeout))
		if err == nil {
			if resp.StatusCode == cfg.Status {
				r.logger.Debug("service is ready", zap.String("url", url), zap.Int("status", resp.StatusCode))
				return nil
			}
			lastErr, lastStatus = nil, resp.StatusCode
		} else {
			var terr *http.TransportError
			if errors.As(err, &terr) && terr.Kind == http.KindInvalidRequest {
				return &WaitError{URL: url, Timeout: cfg.Timeout, Err: err}
			}
			lastErr = err
		}

		if !time.Now().Add(interval).Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return &WaitError{URL: url, Timeout: cfg.Timeout, Status: lastStatus, Err: lastErr}
}
