// Package kbase calls SDK modules through the job callback server.
//
// Calls are JSON-RPC 1.1 POSTs. RunJob submits Module._method_submit and
// polls Module._check_job until the job reports finished.
package kbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultPollInitial = 100 * time.Millisecond
	defaultPollMax     = 5 * time.Minute
	pollGrowth         = 1.5
	// maxCheckFailures is the number of transport failures tolerated while
	// polling one job.
	maxCheckFailures = 3
)

// RemoteError is an error object returned by the callback server or a job.
type RemoteError struct {
	Name    string `json:"name"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Trace   string `json:"error"`
}

func (e *RemoteError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// Client talks to one callback URL.
type Client struct {
	url         string
	token       string
	http        *http.Client
	pollInitial time.Duration
	pollMax     time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token in the Authorization header.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPollWindow sets the first and the largest delay between job checks.
func WithPollWindow(initial, max time.Duration) Option {
	return func(c *Client) {
		c.pollInitial = initial
		c.pollMax = max
	}
}

// New returns a Client for the callback server at url.
func New(url string, opts ...Option) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("kbase: callback url is required")
	}

	c := &Client{
		url:         url,
		http:        &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		pollInitial: defaultPollInitial,
		pollMax:     defaultPollMax,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pollInitial <= 0 || c.pollMax < c.pollInitial {
		return nil, fmt.Errorf("kbase: invalid poll window %s..%s", c.pollInitial, c.pollMax)
	}
	return c, nil
}

type rpcRequest struct {
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	Version string `json:"version"`
	ID      string `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RemoteError    `json:"error"`
}

// transportError marks failures that happened before a response was read.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// Call performs one synchronous JSON-RPC call and decodes the result array
// into result, which may be nil.
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		Method:  method,
		Params:  params,
		Version: "1.1",
		ID:      strconv.FormatUint(rand.Uint64(), 10),
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &transportError{err: fmt.Errorf("call %s: %w", method, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{err: fmt.Errorf("read %s response: %w", method, err)}
	}

	var out rpcResponse
	if err := json.Unmarshal(data, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("call %s: http %d: %s", method, resp.StatusCode, truncate(data, 512))
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if out.Error != nil {
		return out.Error
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s: http %d", method, resp.StatusCode)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(out.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// jobState is the payload of Module._check_job.
type jobState struct {
	Finished flag            `json:"finished"`
	Result   json.RawMessage `json:"result"`
	Error    *RemoteError    `json:"error"`
}

// flag accepts JSON booleans and 0/1 integers.
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	switch s := string(bytes.TrimSpace(b)); s {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return fmt.Errorf("invalid finished flag %s", s)
	}
	return nil
}

var errJobRunning = errors.New("job still running")

// RunJob runs module.method as a callback job and decodes the first element
// of its result list into result.
func (c *Client) RunJob(ctx context.Context, method string, params []any, result any) error {
	module, fn, ok := strings.Cut(method, ".")
	if !ok || module == "" || fn == "" {
		return fmt.Errorf("kbase: method %q is not Module.function", method)
	}

	var submitted []string
	if err := c.Call(ctx, module+"._"+fn+"_submit", params, &submitted); err != nil {
		return fmt.Errorf("submit %s: %w", method, err)
	}
	if len(submitted) == 0 || submitted[0] == "" {
		return fmt.Errorf("submit %s: no job id returned", method)
	}
	jobID := submitted[0]

	failures := 0
	var state jobState
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		var states []jobState
		if err := c.Call(ctx, module+"._check_job", []any{jobID}, &states); err != nil {
			var te *transportError
			if errors.As(err, &te) {
				failures++
				if failures > maxCheckFailures {
					return fmt.Errorf("check job %s: giving up after %d failures: %w", jobID, failures, err)
				}
				return retry.RetryableError(err)
			}
			return fmt.Errorf("check job %s: %w", jobID, err)
		}
		if len(states) == 0 {
			return fmt.Errorf("check job %s: empty job state", jobID)
		}
		if !states[0].Finished {
			return retry.RetryableError(errJobRunning)
		}
		state = states[0]
		return nil
	})
	if err != nil {
		return fmt.Errorf("run %s: %w", method, err)
	}

	if state.Error != nil {
		return fmt.Errorf("run %s: %w", method, state.Error)
	}
	if result == nil {
		return nil
	}

	var results []json.RawMessage
	if err := json.Unmarshal(state.Result, &results); err != nil {
		return fmt.Errorf("decode %s job result: %w", method, err)
	}
	if len(results) == 0 {
		return fmt.Errorf("run %s: job returned no result", method)
	}
	if err := json.Unmarshal(results[0], result); err != nil {
		return fmt.Errorf("decode %s job result: %w", method, err)
	}
	return nil
}

// backoff grows the poll delay by half each attempt up to pollMax.
func (c *Client) backoff() retry.Backoff {
	next := c.pollInitial
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		d := next
		next = time.Duration(float64(next) * pollGrowth)
		if next > c.pollMax {
			next = c.pollMax
		}
		return d, false
	})
	return retry.WithCappedDuration(c.pollMax, b)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
