package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxBodySize caps how much of a response body is read. Receiver pages and
// status documents are a few kilobytes.
const maxBodySize = 1 << 20

// Request is one outbound HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Timeout bounds the whole exchange. Zero means no per-request limit
	// beyond the caller's context.
	Timeout time.Duration

	// FollowRedirects is false for subnet scans: a redirect is itself an answer.
	FollowRedirects bool
}

// Response is the part of an HTTP response the core looks at.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Doer sends a Request. Implementations return an error wrapping
// ErrTransport when no response was received.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HTTPClient is the net/http implementation of Doer.
type HTTPClient struct {
	follow   *http.Client
	noFollow *http.Client
}

// NewHTTPClient creates a Doer sharing one connection pool between
// redirect-following and non-following requests.
func NewHTTPClient() *HTTPClient {
	transport := &http.Transport{
		Proxy:               nil, // receivers are always on the local network
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	return &HTTPClient{
		follow: &http.Client{Transport: transport},
		noFollow: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Do sends req and reads up to maxBodySize bytes of the response.
func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	method, err := ValidateMethod(req.Method)
	if err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	// Denon codes such as "PSDYNEQ TOGGLE" carry literal spaces, which are
	// not legal on the request line.
	target := strings.ReplaceAll(req.URL, " ", "%20")

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	client := c.noFollow
	if req.FollowRedirects {
		client = c.follow
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: reading body: %w", ErrTransport, err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
