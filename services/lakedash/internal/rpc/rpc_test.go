package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type kindError struct{ name, msg string }

func (e kindError) Error() string     { return e.msg }
func (e kindError) ErrorName() string { return e.name }
func (e kindError) Trace() string     { return e.msg + "\ntrace" }

func newTestDispatcher(t *testing.T) (*Dispatcher, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(zerolog.Nop(), metrics)
	d.Register("Svc.echo", func(_ context.Context, params []json.RawMessage) (any, error) {
		if len(params) == 0 {
			return nil, InvalidParams("echo needs one parameter")
		}
		var v map[string]any
		if err := json.Unmarshal(params[0], &v); err != nil {
			return nil, InvalidParams("decode: %v", err)
		}
		return v, nil
	})
	d.Register("Svc.fail", func(context.Context, []json.RawMessage) (any, error) {
		return nil, kindError{name: "UploadError", msg: "upload failed"}
	})
	d.Register("Svc.plain", func(context.Context, []json.RawMessage) (any, error) {
		return nil, errors.New("plain failure")
	})
	d.Register("Svc.panic", func(context.Context, []json.RawMessage) (any, error) {
		panic("kaboom")
	})
	return d, metrics
}

func decodeMap(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode response %q: %v", data, err)
	}
	return out
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantResult any
		wantName   string
		wantMsg    string
	}{
		{
			name:       "empty body ping",
			body:       "",
			wantStatus: http.StatusOK,
			wantResult: []any{map[string]any{}},
		},
		{
			name:       "success",
			body:       `{"version":"1.1","method":"Svc.echo","params":[{"a":"b"}],"id":"7"}`,
			wantStatus: http.StatusOK,
			wantResult: []any{map[string]any{"a": "b"}},
		},
		{
			name:       "unknown method",
			body:       `{"method":"Svc.nope","params":[{}]}`,
			wantStatus: http.StatusOK,
			wantName:   NameUnknownMethod,
			wantMsg:    "Unknown method: Svc.nope",
		},
		{
			name:       "missing method",
			body:       `{"params":[{}]}`,
			wantStatus: http.StatusOK,
			wantName:   NameInvalidRequest,
		},
		{
			name:       "body is an array",
			body:       `[1,2,3]`,
			wantStatus: http.StatusOK,
			wantName:   NameInvalidRequest,
		},
		{
			name:       "params not an array",
			body:       `{"method":"Svc.echo","params":{"a":1}}`,
			wantStatus: http.StatusOK,
			wantName:   NameInvalidRequest,
		},
		{
			name:       "missing params reaches handler",
			body:       `{"method":"Svc.echo"}`,
			wantStatus: http.StatusOK,
			wantName:   NameInvalidRequest,
			wantMsg:    "echo needs one parameter",
		},
		{
			name:       "classified handler error",
			body:       `{"method":"Svc.fail","params":[]}`,
			wantStatus: http.StatusOK,
			wantName:   "UploadError",
			wantMsg:    "upload failed",
		},
		{
			name:       "unclassified handler error",
			body:       `{"method":"Svc.plain","params":[]}`,
			wantStatus: http.StatusOK,
			wantName:   NameInternal,
			wantMsg:    "plain failure",
		},
		{
			name:       "panic recovered",
			body:       `{"method":"Svc.panic","params":[]}`,
			wantStatus: http.StatusOK,
			wantName:   NameInternal,
			wantMsg:    "panic: kaboom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDispatcher(t)
			status, payload := d.Dispatch(context.Background(), []byte(tt.body))
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}

			data, err := json.Marshal(payload)
			if err != nil {
				t.Fatalf("marshal payload: %v", err)
			}
			got := decodeMap(t, data)
			if got["version"] != "1.1" {
				t.Fatalf("version = %v, want 1.1", got["version"])
			}

			if tt.wantName == "" {
				if _, ok := got["error"]; ok {
					t.Fatalf("unexpected error envelope: %s", data)
				}
				if !reflect.DeepEqual(got["result"], tt.wantResult) {
					t.Fatalf("result = %#v, want %#v", got["result"], tt.wantResult)
				}
				return
			}

			if _, ok := got["result"]; ok {
				t.Fatalf("error response carries a result: %s", data)
			}
			env, ok := got["error"].(map[string]any)
			if !ok {
				t.Fatalf("error envelope missing: %s", data)
			}
			if env["name"] != tt.wantName {
				t.Fatalf("error name = %v, want %s", env["name"], tt.wantName)
			}
			if tt.wantMsg != "" && env["message"] != tt.wantMsg {
				t.Fatalf("error message = %v, want %s", env["message"], tt.wantMsg)
			}
			if trace, _ := env["error"].(string); trace == "" {
				t.Fatalf("error trace empty: %s", data)
			}
		})
	}
}

func TestDispatchMalformedJSON(t *testing.T) {
	d, _ := newTestDispatcher(t)
	status, payload := d.Dispatch(context.Background(), []byte(`{"method":`))
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	failure, ok := payload.(DecodeFailure)
	if !ok {
		t.Fatalf("payload = %T, want DecodeFailure", payload)
	}
	if !strings.HasPrefix(failure.Error, "Error parsing request JSON: ") {
		t.Fatalf("error = %q", failure.Error)
	}
}

func TestDispatchMetrics(t *testing.T) {
	d, metrics := newTestDispatcher(t)
	d.Dispatch(context.Background(), []byte(`{"method":"Svc.echo","params":[{}]}`))
	d.Dispatch(context.Background(), []byte(`{"method":"Svc.fail","params":[]}`))
	d.Dispatch(context.Background(), []byte(`{"method":"Svc.zzz","params":[]}`))

	checks := []struct {
		method, outcome string
	}{
		{"Svc.echo", "ok"},
		{"Svc.fail", "UploadError"},
		{"unknown", NameUnknownMethod},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(metrics.requests.WithLabelValues(c.method, c.outcome)); got != 1 {
			t.Fatalf("rpc_requests_total{%s,%s} = %v, want 1", c.method, c.outcome, got)
		}
	}
}

func TestRegisterPanics(t *testing.T) {
	noop := func(context.Context, []json.RawMessage) (any, error) { return nil, nil }
	tests := []struct {
		name string
		fn   func(d *Dispatcher)
	}{
		{name: "empty name", fn: func(d *Dispatcher) { d.Register("", noop) }},
		{name: "nil handler", fn: func(d *Dispatcher) { d.Register("Svc.x", nil) }},
		{name: "duplicate", fn: func(d *Dispatcher) { d.Register("Svc.x", noop); d.Register("Svc.x", noop) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("Register() did not panic")
				}
			}()
			tt.fn(NewDispatcher(zerolog.Nop(), nil))
		})
	}
}

func TestMethods(t *testing.T) {
	d, _ := newTestDispatcher(t)
	want := []string{"Svc.echo", "Svc.fail", "Svc.panic", "Svc.plain"}
	if got := d.Methods(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Methods() = %v, want %v", got, want)
	}
}

func TestHTTPTransport(t *testing.T) {
	d, _ := newTestDispatcher(t)
	srv := httptest.NewServer(Routes(d, nil, nil))
	defer srv.Close()

	t.Run("preflight", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, srv.URL, strings.NewReader(`not json`))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("OPTIONS: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if len(body) != 0 {
			t.Fatalf("body = %q, want empty", body)
		}
		want := map[string]string{
			"Access-Control-Allow-Origin":  "*",
			"Access-Control-Allow-Headers": "authorization, content-type",
			"Access-Control-Allow-Methods": "POST",
		}
		for k, v := range want {
			if got := resp.Header.Get(k); got != v {
				t.Fatalf("%s = %q, want %q", k, got, v)
			}
		}
	})

	t.Run("empty body", func(t *testing.T) {
		resp, err := http.Post(srv.URL, "application/json", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || string(body) != `{"version":"1.1","result":[{}]}` {
			t.Fatalf("got %d %s", resp.StatusCode, body)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{bad`))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
		got := decodeMap(t, body)
		msg, _ := got["error"].(string)
		if !strings.HasPrefix(msg, "Error parsing request JSON: ") {
			t.Fatalf("error = %q", msg)
		}
	})

	t.Run("call", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/rpc", "application/json", strings.NewReader(`{"method":"Svc.echo","params":[{"k":"v"}]}`))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
			t.Fatal("missing Access-Control-Allow-Origin on response")
		}
		if string(body) != `{"version":"1.1","result":[{"k":"v"}]}` {
			t.Fatalf("body = %s", body)
		}
	})
}

func TestReadiness(t *testing.T) {
	d, _ := newTestDispatcher(t)
	failing := func(context.Context) error { return errors.New("db down") }

	rec := httptest.NewRecorder()
	Routes(d, failing, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	Routes(d, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
}
