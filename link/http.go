package link

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/c360/gqlclients/errors"
)

// Client awareness header names understood by Apollo-compatible servers
const (
	HeaderClientName    = "apollographql-client-name"
	HeaderClientVersion = "apollographql-client-version"
)

const maxResponseBytes = 32 << 20

// HTTPOptions configure an HTTP link
type HTTPOptions struct {
	Endpoint string
	Headers  map[string]string

	// ClientName and ClientVersion are sent as client awareness headers
	// when set
	ClientName    string
	ClientVersion string

	// Cookie is forwarded verbatim as the Cookie header. It carries the
	// incoming request's cookies during server renders.
	Cookie string

	Client *http.Client
}

// HTTPLink posts each operation as a JSON document
type HTTPLink struct {
	opts   HTTPOptions
	client *http.Client
}

// NewHTTPLink creates the terminal HTTP link
func NewHTTPLink(opts HTTPOptions) (*HTTPLink, error) {
	if opts.Endpoint == "" {
		return nil, errors.WrapFatal(errors.ErrMissingEndpoint, "HTTPLink", "New", "http endpoint")
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLink{opts: opts, client: client}, nil
}

// Endpoint returns the URL operations are posted to
func (l *HTTPLink) Endpoint() string {
	return l.opts.Endpoint
}

// Execute implements Handler
func (l *HTTPLink) Execute(ctx context.Context, op *Operation) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		out <- l.do(ctx, op)
	}()
	return out
}

func (l *HTTPLink) do(ctx context.Context, op *Operation) Result {
	body, err := json.Marshal(op)
	if err != nil {
		return Result{Err: errors.WrapInvalid(err, "HTTPLink", "Execute", "encode operation")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Err: errors.WrapInvalid(err, "HTTPLink", "Execute", "build request")}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/graphql-response+json, application/json")
	for name, value := range l.opts.Headers {
		req.Header.Set(name, value)
	}
	if l.opts.ClientName != "" {
		req.Header.Set(HeaderClientName, l.opts.ClientName)
		if l.opts.ClientVersion != "" {
			req.Header.Set(HeaderClientVersion, l.opts.ClientVersion)
		}
	}
	if l.opts.Cookie != "" {
		req.Header.Set("Cookie", l.opts.Cookie)
	}
	// Per-operation headers (auth) win over static ones
	for name, values := range op.Header {
		req.Header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return Result{Err: errors.WrapTransient(err, "HTTPLink", "Execute", "post "+l.opts.Endpoint)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{Err: errors.WrapTransient(err, "HTTPLink", "Execute", "read response")}
	}

	var gqlResp Response
	decodeErr := json.Unmarshal(data, &gqlResp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r := Result{Err: &ServerError{StatusCode: resp.StatusCode, Body: string(data)}}
		if decodeErr == nil && (gqlResp.Data != nil || len(gqlResp.Errors) > 0) {
			r.Response = &gqlResp
		}
		return r
	}
	if decodeErr != nil {
		return Result{Err: errors.WrapInvalid(
			fmt.Errorf("%v: %w", decodeErr, errors.ErrParsingFailed),
			"HTTPLink", "Execute", "decode response")}
	}
	return Result{Response: &gqlResp}
}
