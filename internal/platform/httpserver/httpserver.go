package httpserver

import (
	"net/http"
	"time"
)

// WriteTimeout leaves room for the 30s request timeout on /v1 routes plus
// response encoding.
const WriteTimeout = 40 * time.Second

// New builds the onboarding HTTP server.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}
