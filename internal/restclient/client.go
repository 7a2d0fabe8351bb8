package restclient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/nimasrn/crm-dispatch/pkg/prom"
	"github.com/valyala/fasthttp"
)

const (
	MethodGet    = fasthttp.MethodGet
	MethodPost   = fasthttp.MethodPost
	MethodPut    = fasthttp.MethodPut
	MethodDelete = fasthttp.MethodDelete
	MethodPatch  = fasthttp.MethodPatch
)

const defaultTimeout = 10 * time.Second

// Config tunes one call.
type Config struct {
	// IsFormData lets a *Multipart body through untouched.
	IsFormData bool
	// Token adds "Authorization: Bearer <token>", overriding the client token.
	Token string
	// Timeout aborts the call; zero uses the client default.
	Timeout time.Duration
	// UseCache allows intermediaries to reuse a cached answer.
	UseCache bool
}

type Response struct {
	Status int
	Body   []byte
	// Parsed is the decoded JSON body, nil for non-JSON, empty or malformed bodies.
	Parsed any
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errs.Decode(err, "failed to decode response body")
	}
	return nil
}

type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Token    string
	MaxConns int
	// Dial replaces the TCP dialer, tests plug an in-memory listener here.
	Dial fasthttp.DialFunc
}

// Client is the single place the service talks HTTP to the CRM backend.
type Client struct {
	baseURL string
	timeout time.Duration
	token   string
	http    *fasthttp.Client
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 512
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		token:   opts.Token,
		http: &fasthttp.Client{
			Name:                "crm-dispatch",
			MaxConnsPerHost:     opts.MaxConns,
			MaxIdleConnDuration: 60 * time.Second,
			Dial:                opts.Dial,
		},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request performs one call and parses the answer. Non-2xx answers become
// errs.Transport, calls that never got an answer become errs.Network.
func (c *Client) Request(ctx context.Context, endpoint, method string, body any, cfg Config) (resp *Response, err error) {
	defer func() { prom.ObserveBackendRequest(method, err) }()

	method = strings.ToUpper(method)
	if !allowedMethod(method) {
		return nil, errs.Validation("unsupported HTTP method %q", method)
	}

	req := fasthttp.AcquireRequest()
	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(res)

	req.SetRequestURI(c.url(endpoint))
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if token := c.tokenFor(cfg); token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	}
	if !cfg.UseCache {
		req.Header.Set(fasthttp.HeaderCacheControl, "no-cache")
	}
	if err := encodeBody(req, method, body, cfg); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errs.Network(err, "request aborted")
	}
	deadline := time.Now().Add(c.timeoutFor(cfg))
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(req, res, deadline); err != nil {
		logger.Debug("backend request failed", "method", method, "endpoint", endpoint, "error", err)
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, errs.Network(err, "request timed out")
		}
		return nil, errs.Network(err, "request failed")
	}

	resp = &Response{
		Status: res.StatusCode(),
		Body:   append([]byte(nil), res.Body()...),
	}
	if isJSON(res.Header.ContentType()) && len(resp.Body) > 0 {
		var parsed any
		if json.Unmarshal(resp.Body, &parsed) == nil {
			resp.Parsed = parsed
		}
	}

	if resp.Status < 200 || resp.Status > 299 {
		return nil, errs.Transport(resp.Status, errorMessage(resp.Parsed))
	}
	return resp, nil
}

// Get is Request with GET and no body.
func (c *Client) Get(ctx context.Context, endpoint string, cfg Config) (*Response, error) {
	return c.Request(ctx, endpoint, MethodGet, nil, cfg)
}

func (c *Client) url(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

func (c *Client) tokenFor(cfg Config) string {
	if cfg.Token != "" {
		return cfg.Token
	}
	return c.token
}

func (c *Client) timeoutFor(cfg Config) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return c.timeout
}

func encodeBody(req *fasthttp.Request, method string, body any, cfg Config) error {
	if body == nil || method == MethodGet || method == MethodDelete {
		return nil
	}
	if mp, ok := body.(*Multipart); ok && cfg.IsFormData {
		req.Header.SetContentType(mp.ContentType)
		req.SetBody(mp.Body)
		return nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return errs.Validation("request body is not JSON encodable: %v", err)
	}
	req.Header.SetContentType("application/json")
	req.SetBody(raw)
	return nil
}

func allowedMethod(method string) bool {
	switch method {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch:
		return true
	}
	return false
}

func isJSON(contentType []byte) bool {
	return strings.Contains(strings.ToLower(string(contentType)), "json")
}

// errorMessage picks "message" then "detail" from an error body.
func errorMessage(parsed any) string {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"message", "detail", "error"} {
		switch v := obj[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case nil:
		default:
			raw, _ := json.Marshal(v)
			return string(raw)
		}
	}
	return ""
}
