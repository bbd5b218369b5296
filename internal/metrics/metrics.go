// Package metrics holds the bot's Prometheus collectors and the HTTP
// endpoint serving them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "arcguard_messages_total",
	Help: "Number of moderated messages by decision",
}, []string{"decision"})

var ActionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "arcguard_action_failures_total",
	Help: "Number of platform actions that failed",
}, []string{"action"})

var ActionsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "arcguard_actions_dropped_total",
	Help: "Number of actions dropped because the executor queue was full",
})

var SpamFlagged = promauto.NewCounter(prometheus.CounterOpts{
	Name: "arcguard_spam_flagged_total",
	Help: "Number of messages muted as duplicate spam",
})

var SpamWindows = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "arcguard_spam_windows",
	Help: "Texts currently tracked in a spam window",
})

var SpamRecords = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "arcguard_spam_records",
	Help: "Texts currently flagged as spam",
})

var AnnouncementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "arcguard_announcements_total",
	Help: "Number of scheduled announcements by outcome",
}, []string{"status"})

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to shut down metrics server", "error", err)
		}
	}()

	slog.Info("Serving metrics", "url", fmt.Sprintf("http://%s/metrics", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve metrics: %w", err)
	}
	return nil
}
