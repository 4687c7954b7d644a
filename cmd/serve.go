package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/batch"
	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/telemetry"
	"github.com/sells-group/opendate-cli/internal/waterfall"
)

var (
	servePort        int
	serveMaxEntities int
)

// maxResolveBody caps POST /v1/resolve request bodies.
const maxResolveBody = 4 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for on-demand opening date resolution",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(); err != nil {
			return err
		}
		order, err := priorityOrder(cfg, "")
		if err != nil {
			return err
		}
		env, err := initEnv(ctx, cfg, order, nil)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Engine, serveMaxEntities, telemetry.New()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Strings("priority", env.Engine.Order()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

type resolveRequest struct {
	Entities []model.Entity `json:"entities"`
}

type resolveResponse struct {
	Results []model.ResolvedDate `json:"results"`
	Metrics model.RunMetrics     `json:"metrics"`
}

type sourceInfo struct {
	Name string     `json:"name"`
	Tier model.Tier `json:"tier"`
}

// buildRouter wires the API routes around a resolution engine.
func buildRouter(engine *waterfall.Engine, maxEntities int, metrics *telemetry.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", metrics.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/v1/sources", func(w http.ResponseWriter, r *http.Request) {
		order := engine.Order()
		out := make([]sourceInfo, 0, len(order))
		for _, name := range order {
			out = append(out, sourceInfo{Name: name, Tier: waterfall.TierOf(name)})
		}
		writeJSONResponse(w, http.StatusOK, map[string]any{"sources": out})
	})

	r.Post("/v1/resolve", func(w http.ResponseWriter, r *http.Request) {
		fail := func(status int, msg string) {
			metrics.Request("/v1/resolve", status)
			writeError(w, status, msg)
		}

		var req resolveRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxResolveBody)).Decode(&req); err != nil {
			fail(http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Entities) == 0 {
			fail(http.StatusBadRequest, "entities is required")
			return
		}
		if maxEntities > 0 && len(req.Entities) > maxEntities {
			fail(http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d entities per request", maxEntities))
			return
		}
		for i := range req.Entities {
			if req.Entities[i].ID == "" {
				req.Entities[i].ID = fmt.Sprintf("row-%d", i+1)
			}
		}

		res, err := batch.NewRunner(engine, nil, batch.Options{
			CheckpointInterval: len(req.Entities),
			Concurrency:        4,
		}).Run(r.Context(), req.Entities)
		if err != nil {
			zap.L().Warn("resolve request failed", zap.Error(err))
			fail(http.StatusServiceUnavailable, "resolution interrupted")
			return
		}
		metrics.Observe(res.Results)
		metrics.Request("/v1/resolve", http.StatusOK)
		writeJSONResponse(w, http.StatusOK, resolveResponse{Results: res.Results, Metrics: res.Metrics})
	})

	return r
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONResponse(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().IntVar(&serveMaxEntities, "max-entities", 1000, "maximum entities per resolve request")
	rootCmd.AddCommand(serveCmd)
}
