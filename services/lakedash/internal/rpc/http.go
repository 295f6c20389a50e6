package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MaxBodyBytes caps the size of an inbound request body.
const MaxBodyBytes = 1 << 20

// ServeHTTP adapts the dispatcher to HTTP. Preflight requests are answered
// with fixed CORS headers and never reach the decoder.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "authorization, content-type")
		h.Set("Access-Control-Allow-Methods", "POST")
		h.Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, DecodeFailure{Error: "Error parsing request JSON: " + err.Error()})
		return
	}

	status, payload := d.Dispatch(r.Context(), body)
	if status == http.StatusOK {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	respondJSON(w, status, payload)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusOK
		data, _ = json.Marshal(errorResponse(ErrorEnvelope{
			Name:    NameInternal,
			Message: fmt.Sprintf("encode response: %v", err),
			Error:   err.Error(),
		}))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// ReadyFunc reports whether the service's collaborators are reachable.
type ReadyFunc func(ctx context.Context) error

// Routes mounts the dispatcher at the root alongside health and metrics
// endpoints. ready and metrics may be nil.
func Routes(d *Dispatcher, ready ReadyFunc, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Handle("/", d)
	r.Handle("/rpc", d)

	return r
}
