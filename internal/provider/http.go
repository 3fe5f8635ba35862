package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-aggregator/internal/circuitbreaker"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// Options configures the HTTP side of an adapter.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
	Breaker *gobreaker.CircuitBreaker
}

// upstream performs single-shot JSON GETs against one provider.
type upstream struct {
	name    string
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func newUpstream(name, defaultBaseURL string, opts Options) upstream {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return upstream{name: name, baseURL: baseURL, client: client, breaker: opts.Breaker}
}

// getJSON issues exactly one GET to baseURL+path and decodes the body into out.
func (u upstream) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	start := time.Now()

	endpoint, err := url.Parse(u.baseURL + path)
	if err != nil {
		return fmt.Errorf("%w: invalid API URL: %v", ErrTransport, err)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	do := func() (interface{}, error) {
		resp, err := u.client.Do(req)
		if err != nil {
			return nil, err
		}
		// Only throttling and server faults count against the breaker.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, statusError(resp.StatusCode)
		}
		return resp, nil
	}

	var result interface{}
	if u.breaker != nil {
		result, err = u.breaker.Execute(do)
	} else {
		result, err = do()
	}
	if err != nil {
		switch {
		case circuitbreaker.IsOpen(err):
			u.observe("circuit_open", start)
			return transportError(ErrCircuitOpen, u.name)
		case errors.Is(err, ErrTransport):
			u.observe(statusLabelForError(err), start)
			return err
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			u.observe("timeout", start)
			return fmt.Errorf("%w: request timeout: %w", ErrTransport, err)
		default:
			u.observe("error", start)
			return fmt.Errorf("%w: http request failed: %w", ErrTransport, err)
		}
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return fmt.Errorf("%w: unexpected result type from circuit breaker", ErrTransport)
	}
	defer resp.Body.Close()
	u.observe(statusLabel(resp.StatusCode), start)

	if err := statusError(resp.StatusCode); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response body: %v", ErrTransport, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return formatError("parse response: " + err.Error())
	}
	return nil
}

func (u upstream) observe(status string, start time.Time) {
	observability.ProviderCallsTotal.WithLabelValues(u.name, status).Inc()
	observability.ProviderDuration.WithLabelValues(u.name, status).Observe(time.Since(start).Seconds())
}

// statusError maps a non-2xx status to the transport taxonomy.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return transportError(ErrInvalidAPIKey, fmt.Sprintf("HTTP %d", code))
	case code == http.StatusNotFound:
		return transportError(ErrLocationNotFound, "HTTP 404")
	case code == http.StatusTooManyRequests:
		return transportError(ErrRateLimited, "HTTP 429")
	default:
		return transportError(ErrUpstreamFailure, fmt.Sprintf("HTTP %d", code))
	}
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}

func statusLabelForError(err error) string {
	if errors.Is(err, ErrRateLimited) {
		return "rate_limited"
	}
	return "server_error"
}
