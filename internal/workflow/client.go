package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wesleyorama2/prload/internal/logging"
	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// DefaultTimeout bounds a single request, including one that keeps running
// after its VU was interrupted.
const DefaultTimeout = 10 * time.Second

// Client sends workflow requests to the target service and records the
// built-in HTTP metrics for each of them.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a client with the given options. Without WithHTTPClient
// it uses the tuned transport from performance.NewHTTPClient.
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		headers: map[string]string{"Content-Type": "application/json"},
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, option := range options {
		option(c)
	}
	if c.httpClient == nil {
		cfg := performance.DefaultHTTPClientConfig()
		cfg.Timeout = c.timeout
		c.httpClient = performance.NewHTTPClient(cfg)
	}
	return c
}

// WithBaseURL sets the base URL for the client
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHeader adds a header to every request
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit caps the request rate across all VUs sharing the client.
// rps <= 0 disables the cap.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request is one outbound call made by a step.
type Request struct {
	// Name tags the samples of this request, e.g. "create_team".
	Name   string
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is the outcome of a request. Err is set on transport failure,
// in which case StatusCode is 0.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Err        error
}

// Get extracts a value from the JSON body with a gjson path.
func (r *Response) Get(path string) gjson.Result {
	if r == nil || len(r.Body) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Body, path)
}

// Strings extracts a string array from the JSON body.
func (r *Response) Strings(path string) []string {
	res := r.Get(path)
	if !res.IsArray() {
		return nil
	}
	arr := res.Array()
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		out = append(out, v.String())
	}
	return out
}

// ErrorCode returns the service error code, if the body carries one.
func (r *Response) ErrorCode() string {
	return r.Get("error.code").String()
}

// Do sends req on behalf of vu. It returns nil without sending anything
// when the VU was hard-interrupted before the request could start.
//
// The request itself runs on a context detached from the VU so an
// interrupt never aborts it half way; the client timeout bounds it.
func (c *Client) Do(ctx context.Context, vu *performance.VirtualUser, req Request) *Response {
	if vu.Interrupted() || ctx.Err() != nil {
		return nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil
		}
		if vu.Interrupted() {
			return nil
		}
	}

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	httpReq, err := c.build(reqCtx, req)
	if err != nil {
		// A request we cannot even build is a workflow bug, still counted
		// as a failed request.
		resp := &Response{Err: err}
		c.record(vu, req, resp)
		return resp
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	resp := &Response{}
	if err != nil {
		resp.Err = err
	} else {
		resp.StatusCode = httpResp.StatusCode
		resp.Body, resp.Err = io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
	}
	resp.Duration = time.Since(start)

	if resp.Err != nil {
		c.logger.Debug("request failed",
			zap.String("name", req.Name),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("vu", vu.ID),
			zap.Error(resp.Err))
	}

	c.record(vu, req, resp)
	return resp
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", req.Name, err)
		}
		body = bytes.NewReader(data)
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.Name, err)
	}

	for k, v := range c.headers {
		if k == "Content-Type" && req.Body == nil {
			continue
		}
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (c *Client) record(vu *performance.VirtualUser, req Request, resp *Response) {
	if vu.Metrics == nil {
		return
	}
	tags := vu.Tags().With("name", req.Name, "method", req.Method)
	if resp.StatusCode != 0 {
		tags = tags.With("status", strconv.Itoa(resp.StatusCode))
	}

	failed := resp.Err != nil || resp.StatusCode >= 400

	vu.Metrics.Add(metrics.HTTPReqs, 1, tags)
	vu.Metrics.RecordDuration(metrics.HTTPReqDuration, resp.Duration, tags)
	vu.Metrics.RecordSuccess(metrics.HTTPReqFailed, !failed, tags)
	vu.Metrics.Add(metrics.DataReceived, float64(len(resp.Body)), tags)
}
