package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"cmsconsole/cmd/internal/auth/session"
	"cmsconsole/cmd/internal/console"
	"cmsconsole/cmd/internal/telemetry"
)

const readyTimeout = 2 * time.Second

func registerHTTP(
	mux *http.ServeMux,
	log *slog.Logger,
	backend session.Backend,
	metrics *telemetry.Metrics,
	cons *console.Console,
) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := backend.Ping(ctx); err != nil {
			http.Error(w, "storage not ready", http.StatusServiceUnavailable)
			log.Info("readyz.storage.not_ready", "err", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	cons.Register(mux)
}
