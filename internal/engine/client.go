package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 2 << 20

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	// Cookies set by the final response and by any redirect on the way.
	Cookies []*http.Cookie
}

// Client sends rate limited requests to the scan target and retries
// transport errors and 5xx responses with exponential backoff.
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	userAgent  string
}

var errServerStatus = errors.New("server error status")

func NewClient(opts Options) *Client {
	burst := int(opts.RateLimit)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http:       &http.Client{Timeout: opts.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), burst),
		maxRetries: opts.MaxRetries,
		userAgent:  opts.UserAgent,
	}
}

func (c *Client) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, header)
}

func (c *Client) Do(ctx context.Context, method, url string, header http.Header) (*Response, error) {
	var last *Response

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := c.once(ctx, method, url, header)
		if err != nil {
			log.Printf("[Client] %s %s: %v", method, url, err)
			return err
		}
		last = resp
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %d", errServerStatus, resp.StatusCode)
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(c.retryPolicy(), ctx))
	if err != nil {
		// a 5xx that never recovered is still an answer
		if errors.Is(err, errServerStatus) && last != nil {
			return last, nil
		}
		return nil, err
	}
	return last, nil
}

// retryPolicy returns the backoff for one request. WithMaxRetries treats 0 as
// unlimited, so no retries means StopBackOff.
func (c *Client) retryPolicy() backoff.BackOff {
	if c.maxRetries == 0 {
		return &backoff.StopBackOff{}
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond
	expBackoff.MaxElapsedTime = 30 * time.Second
	return backoff.WithMaxRetries(expBackoff, c.maxRetries)
}

func (c *Client) once(ctx context.Context, method, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var cookies []*http.Cookie
	hc := *c.http
	hc.CheckRedirect = func(r *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		if r.Response != nil {
			cookies = append(cookies, r.Response.Cookies()...)
		}
		return nil
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Cookies:    append(cookies, resp.Cookies()...),
	}, nil
}
