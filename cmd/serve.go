package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/factharbor/verify-cli/internal/jobstore"
	"github.com/factharbor/verify-cli/internal/model"
	"github.com/factharbor/verify-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the verification HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type", "X-Admin-Key"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			paused, reason, _ := env.Health.Paused()
			writeJSON(w, http.StatusOK, map[string]any{
				"status":    "ok",
				"paused":    paused,
				"reason":    reason,
				"providers": env.Health.Snapshot(),
			})
		})

		r.Post("/v1/verify", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Text    string `json:"text"`
				Variant string `json:"variant"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if strings.TrimSpace(body.Text) == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
				return
			}

			variant := model.VariantStandard
			if body.Variant == string(model.VariantDeep) {
				variant = model.VariantDeep
			}

			// Run asynchronously; progress is visible via /v1/runs.
			go func() {
				result, err := env.Pipeline.Run(ctx, body.Text, variant)
				if err != nil {
					zap.L().Error("api verification failed", zap.Error(err))
					return
				}
				zap.L().Info("api verification complete",
					zap.String("run_id", result.RunID),
					zap.Int("claims", len(result.Verdicts)),
				)
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		})

		r.Get("/v1/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := env.Store.ListRuns(req.Context(), store.RunFilter{
				Status: model.RunStatus(req.URL.Query().Get("status")),
				Limit:  50,
			})
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
		})

		r.Get("/v1/jobs", func(w http.ResponseWriter, req *http.Request) {
			if cfg.JobStore.BaseURL == "" {
				writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "job store not configured"})
				return
			}
			client := jobstore.NewClient(cfg.JobStore.BaseURL, jobstore.WithAdminKey(cfg.JobStore.AdminKey))
			jobs, err := client.ListAllJobs(req.Context(), 100)
			if err != nil {
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": "job store unavailable"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
		})

		r.Get("/v1/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/pause", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					Reason string `json:"reason"`
				}
				_ = json.NewDecoder(req.Body).Decode(&body)
				if body.Reason == "" {
					body.Reason = "manual pause"
				}
				env.Health.Pause(body.Reason)
				writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
			})
			r.Post("/resume", func(w http.ResponseWriter, req *http.Request) {
				env.Health.Resume("manual resume")
				writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve")
		}
		return nil
	},
}

// adminOnly rejects requests without the configured admin key. When no key
// is configured the admin surface is open, which is only sane for local use.
func adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if cfg.JobStore.AdminKey != "" && req.Header.Get("X-Admin-Key") != cfg.JobStore.AdminKey {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}
		next.ServeHTTP(w, req)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
