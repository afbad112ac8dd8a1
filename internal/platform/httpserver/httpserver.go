package httpserver

import (
	"net/http"
	"time"

	"flowgate/internal/platform/config"
)

// New builds the HTTP server. Per-request deadlines come from the timeout
// middleware, so the write timeout only guards against stuck connections.
func New(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
