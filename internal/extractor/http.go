package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"

	"shapelearner/internal/config"
	"shapelearner/internal/metrics"
	"shapelearner/internal/services"
)

const (
	defaultRetryDelay    = 500 * time.Millisecond
	defaultRetryMaxDelay = 5 * time.Second
	maxErrorBody         = 2048
)

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryDelay overrides the base and maximum backoff between attempts.
func WithRetryDelay(base, maxDelay time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.retryDelay = base
		c.retryMaxDelay = maxDelay
	}
}

// HTTPClient posts extraction requests to a remote endpoint. Requests are
// rate limited and retried on transport errors and 5xx responses.
type HTTPClient struct {
	url           string
	http          *http.Client
	limiter       *rate.Limiter
	attempts      uint
	retryDelay    time.Duration
	retryMaxDelay time.Duration
}

// NewHTTPClient constructs a client for cfg.URL.
func NewHTTPClient(cfg config.Extractor, opts ...HTTPOption) *HTTPClient {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	attempts := uint(1)
	if cfg.RetryAttempts > 0 {
		attempts = uint(cfg.RetryAttempts)
	}
	client := &HTTPClient{
		url:           strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		http:          &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		limiter:       rate.NewLimiter(limit, 1),
		attempts:      attempts,
		retryDelay:    defaultRetryDelay,
		retryMaxDelay: defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Extract posts req to the extraction endpoint.
func (c *HTTPClient) Extract(ctx context.Context, req Request) (resp Response, err error) {
	defer func() { metrics.RecordExtraction(err) }()
	if err := validateRequest(req); err != nil {
		return Response{}, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode extraction request: %w", err)
	}

	err = retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			out, err := c.post(ctx, c.url+"/extract", body)
			if err != nil {
				return err
			}
			resp, err = decodeResponse(out)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(c.retryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && services.Retryable(err)
		}),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Response{}, services.Wrap(services.ErrTimeout, "extractor", "extract", c.url, err)
		}
		if errors.Is(err, services.ErrExternalTool) || errors.Is(err, context.Canceled) {
			return Response{}, err
		}
		return Response{}, services.Wrap(services.ErrExternalTool, "extractor", "extract", c.url, err)
	}
	return resp, nil
}

// Probe checks that the endpoint answers its health route.
func (c *HTTPClient) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "extractor", "probe", c.url, err)
	}
	res, err := c.http.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "extractor", "probe", c.url, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	if res.StatusCode >= 300 {
		return services.Wrap(services.ErrExternalTool, "extractor", "probe", fmt.Sprintf("%s answered %d", c.url, res.StatusCode), nil)
	}
	return nil
}

// post returns the response body. Transport failures and 5xx responses are
// tagged transient so the caller retries them.
func (c *HTTPClient) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(services.Wrap(services.ErrConfiguration, "extractor", "extract", url, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Unrecoverable(ctx.Err())
		}
		return nil, services.Wrap(services.ErrTransient, "extractor", "extract", url, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "extractor", "extract", "read response", err)
	}
	if res.StatusCode >= 500 {
		return nil, services.Wrap(services.ErrTransient, "extractor", "extract",
			fmt.Sprintf("http %d: %s", res.StatusCode, truncate(data)), nil)
	}
	if res.StatusCode >= 300 {
		return nil, retry.Unrecoverable(services.Wrap(services.ErrExternalTool, "extractor", "extract",
			fmt.Sprintf("http %d: %s", res.StatusCode, truncate(data)), nil))
	}
	return data, nil
}

func truncate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		return text[:maxErrorBody] + "..."
	}
	return text
}
