package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Handler serves one method. params holds the positional arguments.
type Handler func(ctx context.Context, params []json.RawMessage) (any, error)

// Dispatcher routes decoded requests to registered handlers. Register all
// methods before serving; the method table is read-only afterwards.
type Dispatcher struct {
	handlers map[string]Handler
	logger   zerolog.Logger
	metrics  *Metrics
}

// NewDispatcher returns an empty Dispatcher. metrics may be nil.
func NewDispatcher(logger zerolog.Logger, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
		metrics:  metrics,
	}
}

// Register binds method to h. It panics on an empty name, a nil handler or a
// duplicate registration.
func (d *Dispatcher) Register(method string, h Handler) {
	if method == "" {
		panic("rpc: empty method name")
	}
	if h == nil {
		panic("rpc: nil handler for " + method)
	}
	if _, dup := d.handlers[method]; dup {
		panic("rpc: method already registered: " + method)
	}
	d.handlers[method] = h
}

// Methods lists the registered method names in sorted order.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs one request body through decode, route, invoke and encode.
// It returns the HTTP status and the value to serialize as the response body.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) (int, any) {
	if len(body) == 0 {
		return http.StatusOK, resultResponse(struct{}{})
	}

	var probe any
	if err := json.Unmarshal(body, &probe); err != nil {
		d.logger.Warn().Err(err).Str("request_id", middleware.GetReqID(ctx)).Msg("rpc decode failed")
		return http.StatusBadRequest, DecodeFailure{Error: "Error parsing request JSON: " + err.Error()}
	}

	start := time.Now()
	req, params, err := decodeRequest(body)
	method := req.Method

	var result any
	if err == nil {
		handler, ok := d.handlers[method]
		if !ok {
			err = newError(NameUnknownMethod, "Unknown method: %s", method)
		} else {
			result, err = d.invoke(ctx, handler, params)
		}
	}

	elapsed := time.Since(start)
	label := method
	if _, known := d.handlers[method]; !known {
		label = "unknown"
	}

	log := d.logger.With().
		Str("method", method).
		Str("request_id", middleware.GetReqID(ctx)).
		Float64("latency_ms", float64(elapsed.Microseconds())/1000).
		Logger()

	if err != nil {
		env := envelope(err)
		d.metrics.observe(label, env.Name, elapsed)
		log.Error().Str("kind", env.Name).Str("error_message", env.Message).Msg("rpc call failed")
		return http.StatusOK, errorResponse(env)
	}

	d.metrics.observe(label, "ok", elapsed)
	log.Info().Msg("rpc call")
	return http.StatusOK, resultResponse(result)
}

func decodeRequest(body []byte) (Request, []json.RawMessage, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, nil, newError(NameInvalidRequest, "request must be a JSON object with a string method: %v", err)
	}
	if req.Method == "" {
		return req, nil, newError(NameInvalidRequest, "request has no method")
	}

	raw := bytes.TrimSpace(req.Params)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return req, nil, nil
	}

	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return req, nil, newError(NameInvalidRequest, "params must be a JSON array")
	}
	return req, params, nil
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, params []json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{
				Name:    NameInternal,
				Message: fmt.Sprintf("panic: %v", r),
				stack:   string(debug.Stack()),
			}
		}
	}()
	return h(ctx, params)
}

type namedError interface {
	error
	ErrorName() string
}

type tracedError interface {
	Trace() string
}

func envelope(err error) ErrorEnvelope {
	env := ErrorEnvelope{Name: NameInternal, Message: err.Error(), Error: err.Error()}

	var named namedError
	if errors.As(err, &named) {
		env.Name = named.ErrorName()
	}
	var traced tracedError
	if errors.As(err, &traced) {
		env.Error = traced.Trace()
	}
	return env
}
