package httpclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"wxarchiver/pkg/config"
	"wxarchiver/pkg/errors"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/retry"
)

// maxBodySize bounds a single download
const maxBodySize = 64 << 20

// Client fetches article images the browser did not deliver
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	retry      *retry.Config
	logger     logger.Logger
}

// NewClient creates a client from the HTTP section of the configuration
func NewClient(cfg *config.HTTPConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	headers := map[string]string{
		"Accept":          "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
		"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
	}
	if cfg.UserAgent != "" {
		headers["User-Agent"] = cfg.UserAgent
	}
	if cfg.Referer != "" {
		headers["Referer"] = cfg.Referer
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		headers:    headers,
		retry: &retry.Config{
			MaxAttempts: cfg.Attempts,
			Backoff: &retry.ExponentialBackoff{
				BaseDelay:  cfg.BackoffBase,
				MaxDelay:   cfg.BackoffMax,
				Multiplier: 2.0,
			},
			RetryIf: retryable,
			Logger:  log,
		},
		logger: log,
	}
}

// SetHeader sets a header sent with every request
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Download GETs url with retry, returning the body and its Content-Type
func (c *Client) Download(ctx context.Context, url string) ([]byte, string, error) {
	type result struct {
		body        []byte
		contentType string
	}

	res, err := retry.DoWithResult(ctx, func(ctx context.Context, attempt int) (result, error) {
		body, ct, err := c.get(ctx, url)
		return result{body: body, contentType: ct}, err
	}, c.retry)
	if err != nil {
		return nil, "", err
	}
	return res.body, res.contentType, nil
}

// get performs a single attempt
func (c *Client) get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrorTypeUnknown, err, "failed to create request").WithURL(url)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", errors.Wrap(errors.ErrorTypeNetwork, err, "request failed").WithURL(url)
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      url,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if err := checkResponseStatus(resp); err != nil {
		return nil, "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrorTypeNetwork, err, "failed to read response body").WithURL(url)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// retryable classifies typed errors by their own type before the generic
// rules. get returns a bare context error only once the caller's context is
// done, so a typed network error that wraps a Client.Timeout deadline is
// still retried.
func retryable(err error) bool {
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		return errors.IsRetryable(typed.Type)
	}
	return retry.DefaultRetryIf(err)
}

// checkResponseStatus maps non-2xx statuses to typed errors
func checkResponseStatus(resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	url := resp.Request.URL.String()
	var t errors.ErrorType
	switch {
	case code == http.StatusTooManyRequests:
		t = errors.ErrorTypeRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		t = errors.ErrorTypeAuth
	case code == http.StatusNotFound || code == http.StatusGone:
		t = errors.ErrorTypeNotFound
	case errors.IsRetryableStatusCode(code):
		t = errors.ErrorTypeServerError
	default:
		t = errors.ErrorTypeUnknown
	}
	return errors.New(t, fmt.Sprintf("unexpected status %d", code)).WithCode(code).WithURL(url)
}
