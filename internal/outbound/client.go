package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vantran-sec/threatsync/internal/metrics"
)

const maxBackoff = 30 * time.Second

// Request describes one outbound call.
type Request struct {
	URL          string
	Method       string // defaults to GET
	Headers      map[string]string
	Body         []byte
	Timeout      time.Duration // per-attempt; defaults to 15s
	MaxRetries   int           // attempts beyond the first; defaults to 2
	BaseBackoff  time.Duration // defaults to 500ms
	MaxRedirects int           // manual redirect hops; defaults to 3
}

// Response is the final HTTP outcome after retries and redirects.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client issues guarded, retrying HTTP requests. Redirects are followed
// manually so every hop's Location passes the same safety check.
type Client struct {
	policy GuardPolicy
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a transport with the given guard policy.
func NewClient(policy GuardPolicy, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		policy: policy,
		http: &http.Client{
			// Redirects are handled by FetchWithRetry so each hop can be
			// re-validated before it is followed.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// WithHTTPTransport overrides the underlying round tripper. Tests use this
// to serve canned responses without touching the network.
func (c *Client) WithHTTPTransport(rt http.RoundTripper) *Client {
	c.http.Transport = rt
	return c
}

func shouldRetryStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func computeBackoff(attempt int, base time.Duration) time.Duration {
	backoff := base << uint(attempt)
	if backoff > maxBackoff || backoff <= 0 {
		return maxBackoff
	}
	return backoff
}

func (r Request) withDefaults() Request {
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if r.Timeout <= 0 {
		r.Timeout = 15 * time.Second
	}
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	}
	if r.BaseBackoff <= 0 {
		r.BaseBackoff = 500 * time.Millisecond
	}
	if r.MaxRedirects < 0 {
		r.MaxRedirects = 0
	}
	if r.MaxRedirects == 0 {
		r.MaxRedirects = 3
	}
	return r
}

// FetchWithRetry performs req with bounded exponential backoff. Retries cover
// timeouts, network errors, 429, and 5xx; other statuses return as-is for the
// caller to interpret. Guard rejections fail immediately.
func (c *Client) FetchWithRetry(ctx context.Context, req Request) (*Response, error) {
	req = req.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= req.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.TransportRetries.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(computeBackoff(attempt-1, req.BaseBackoff)):
			}
		}

		resp, err := c.attempt(ctx, req)
		if err != nil {
			if IsGuardError(err) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			c.logger.Debug("outbound attempt failed",
				zap.String("url", req.URL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		if shouldRetryStatus(resp.StatusCode) && attempt < req.MaxRetries {
			lastErr = fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL)
			continue
		}

		return resp, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("request failed for %s", req.URL)
	}
	return nil, lastErr
}

// attempt issues one request, following redirects manually and validating the
// target before every hop.
func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	target := req.URL

	for hop := 0; ; hop++ {
		if _, err := ValidateOutboundURL(ctx, target, c.policy); err != nil {
			return nil, fmt.Errorf("outbound URL rejected: %w", err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, req.Timeout)
		resp, err := c.doOnce(attemptCtx, req.Method, target, req.Headers, req.Body)
		cancel()
		if err != nil {
			return nil, err
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			if location == "" {
				return resp, nil
			}
			if hop >= req.MaxRedirects {
				return nil, fmt.Errorf("too many redirects fetching %s (limit %d)", req.URL, req.MaxRedirects)
			}

			resolved, err := resolveLocation(target, location)
			if err != nil {
				return nil, err
			}
			target = resolved
			continue
		}

		return resp, nil
	}
}

func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, current)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: redirect target %q", ErrInvalidURL, location)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) doOnce(ctx context.Context, method, target string, headers map[string]string, body []byte) (*Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", target, err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", target, err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       payload,
	}, nil
}

// FetchJSON wraps FetchWithRetry, failing on non-2xx responses and decoding
// the body into out.
func (c *Client) FetchJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.FetchWithRetry(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", req.URL, err)
	}
	return nil
}
