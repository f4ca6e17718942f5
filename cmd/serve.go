package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alexphiev/empreinte-enrich/internal/catalog"
	"github.com/alexphiev/empreinte-enrich/internal/model"
	"github.com/alexphiev/empreinte-enrich/internal/verify"
	"github.com/alexphiev/empreinte-enrich/pkg/overpass"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for generated place candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		engine, err := initEngine()
		if err != nil {
			return err
		}
		resolver := verify.New(st, overpass.NewClient(), engine)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, st, resolver),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(ctx context.Context, st catalog.Store, resolver *verify.Resolver) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Post("/webhook/verify", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if body.Name == "" {
			http.Error(w, `{"error":"name is required"}`, http.StatusBadRequest)
			return
		}

		gp := &model.GeneratedPlace{Name: body.Name, Description: body.Description}
		if err := st.InsertGenerated(req.Context(), gp); err != nil {
			zap.L().Error("staging generated place failed", zap.String("name", body.Name), zap.Error(err))
			http.Error(w, `{"error":"staging failed"}`, http.StatusInternalServerError)
			return
		}

		// Verification runs asynchronously against the server context;
		// the caller polls the staging row for the outcome.
		go func() {
			res, err := resolver.Resolve(ctx, gp)
			if err != nil {
				zap.L().Error("webhook verification failed",
					zap.String("id", gp.ID),
					zap.String("name", gp.Name),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook verification complete",
				zap.String("id", gp.ID),
				zap.String("outcome", string(res.Outcome)),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "accepted",
			"id":     gp.ID,
		})
	})

	return r
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
