package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// ServiceProvider is implemented by anything that serves a set of routes.
type ServiceProvider interface {
	RegisterService(r *mux.Router)
}

// NewRouter returns a router serving the routes of all the given providers.
func NewRouter(providers ...ServiceProvider) *mux.Router {
	r := mux.NewRouter()
	for _, p := range providers {
		p.RegisterService(r)
	}
	return r
}

// WriteJSON writes v as the JSON body of a response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WaitForTCPListener polls addr until something accepts a TCP connection
// there, the timeout elapses, or ctx is cancelled.
func WaitForTCPListener(ctx context.Context, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := net.DialTimeout("tcp", addr, time.Until(deadline))
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		} else {
			_ = conn.Close()
			return nil
		}
	}
	return fmt.Errorf("timed out waiting for %v to be active after %v", addr, timeout)
}
