// Package transport sends finalized hits to the measurement endpoint.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"hitqueue/internal/config"
	"hitqueue/internal/constants"
	"hitqueue/internal/logger"
	"hitqueue/internal/request"
	"hitqueue/pkg/circuitbreaker"
	apperrors "hitqueue/pkg/errors"
	"hitqueue/pkg/logging"
	"hitqueue/pkg/tracing"
)

type Options struct {
	// Name labels the circuit breaker and its metrics.
	Name           string
	Timeout        time.Duration
	RateLimit      config.RateLimitConfig
	CircuitBreaker config.CircuitBreakerConfig
	UserAgent      string
}

// Client is safe for concurrent use. An engine builds one lazily and
// replaces it when its transport settings change.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	cb        *circuitbreaker.Wrapper
	userAgent string
	logger    logger.Logger
}

func New(opts Options, log logger.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = constants.UserAgent
	}

	c := &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    log,
	}

	if opts.RateLimit.Enabled && opts.RateLimit.RPS > 0 {
		burst := opts.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit.RPS), burst)
	}

	if opts.CircuitBreaker.Enabled {
		cb := opts.CircuitBreaker
		c.cb = circuitbreaker.NewWrapper(circuitbreaker.Settings(
			"transport-"+opts.Name, cb.MaxRequests, cb.Interval, cb.Timeout, cb.FailureRatio, cb.MinRequests,
		))
	}

	return c
}

// SelectMethod picks the HTTP method for an encoded parameter string of
// the given size.
func SelectMethod(size int) (string, error) {
	switch {
	case size < constants.MaxGETSize:
		return http.MethodGet, nil
	case size < constants.MaxPOSTSize:
		return http.MethodPost, nil
	default:
		return "", apperrors.ErrPayloadTooLarge.WithDetail("size", size)
	}
}

// Send transmits one finalized payload. Errors are classified: fatal
// ones (oversized payload, bad endpoint) must not be retried, everything
// else is transient.
func (c *Client) Send(ctx context.Context, payload request.Payload) error {
	encoded := payload.Encode()
	method, err := SelectMethod(len(encoded))
	if err != nil {
		return err
	}
	if payload.Method == http.MethodPost {
		method = http.MethodPost
	}

	endpoint, err := url.Parse(payload.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return apperrors.ErrValidation.
			WithMessage(fmt.Sprintf("invalid endpoint %q", payload.Endpoint)).
			WithCause(err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperrors.ErrTransmission.WithMessage("rate limiter").WithCause(err)
		}
	}

	ctx, span := tracing.StartHitSpan(ctx, logging.GetEngineID(ctx), logging.GetRequestID(ctx), method)
	err = c.execute(ctx, method, endpoint, encoded)
	tracing.EndSpan(span, err)
	return err
}

func (c *Client) execute(ctx context.Context, method string, endpoint *url.URL, encoded string) error {
	if c.cb == nil {
		return c.do(ctx, method, endpoint, encoded)
	}

	_, err := c.cb.Execute(ctx, func() (interface{}, error) {
		return nil, c.do(ctx, method, endpoint, encoded)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.ErrTransmission.WithMessage("circuit breaker is open").WithCause(err).AsRetryable()
	}
	return err
}

func (c *Client) do(ctx context.Context, method string, endpoint *url.URL, encoded string) error {
	var (
		req *http.Request
		err error
	)

	u := *endpoint
	switch method {
	case http.MethodGet:
		u.RawQuery = encoded
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, u.String(), strings.NewReader(encoded))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return apperrors.ErrValidation.WithMessage("failed to create request").WithCause(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	tracing.InjectTraceContext(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.ErrTransmission.WithCause(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return apperrors.ErrTransmission.
			WithMessage(fmt.Sprintf("endpoint returned status: %d", resp.StatusCode)).
			WithDetail("status", resp.StatusCode)
	}
	return nil
}
