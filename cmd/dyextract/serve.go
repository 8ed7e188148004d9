package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/famomatic/dyextract/client"
	"github.com/famomatic/dyextract/internal/events"
	"github.com/famomatic/dyextract/internal/pipeline"
)

type runner interface {
	Run(ctx context.Context, input string, sink pipeline.Sink) (*client.RunResult, error)
	Strategies() []string
}

func serve(ctx context.Context, c *client.Client, addr string, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(c, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func newMux(r runner, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /strategies", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Strategies())
	})
	mux.Handle("GET /extract", extractHandler(r, logger))
	return mux
}

// extractHandler streams one run as server-sent events. A client disconnect
// cancels the run through the request context.
func extractHandler(r runner, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		input := strings.TrimSpace(req.URL.Query().Get("input"))
		if input == "" {
			http.Error(w, "missing input", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		sink := events.NewSSESink(w)
		res, err := r.Run(req.Context(), input, sink)
		switch {
		case err == nil:
			// closing frame; the sink drops anything after it
			sink.Chat(events.ChatDone, "")
			logger.Info("run finished", zap.String("strategy", res.Strategy))
		case errors.Is(err, client.ErrNoStrategy):
			sink.Chat(events.ChatError, events.ChatMessage{
				Content: "Paste a Douyin share link or video id.",
				Fatal:   true,
			})
		case errors.Is(err, client.ErrCancelled):
			logger.Info("run cancelled", zap.Error(err))
		default:
			// the pipeline already emitted its error event
			logger.Warn("run failed", zap.String("category", string(client.ClassifyError(err))), zap.Error(err))
		}
		if werr := sink.Err(); werr != nil {
			logger.Debug("sse write failed", zap.Error(werr))
		}
	})
}
