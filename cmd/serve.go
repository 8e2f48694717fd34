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

	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/internal/queue"
	"github.com/sells-group/place-enrich/internal/quota"
	"github.com/sells-group/place-enrich/internal/resilience"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger server for collection and enrichment tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		s := newServer(env.Store, env.Queue, env.Quota, env.Breakers, cfg.Server.AllowedOrigins)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type pinger interface {
	Ping(ctx context.Context) error
}

// server accepts tasks over HTTP and publishes them to the queue; workers
// do the actual processing.
type server struct {
	router    chi.Router
	store     pinger
	publisher queue.Publisher
	quota     quota.Tracker
	breakers  *resilience.Breakers
}

func newServer(store pinger, publisher queue.Publisher, tracker quota.Tracker, breakers *resilience.Breakers, origins []string) *server {
	s := &server{
		store:     store,
		publisher: publisher,
		quota:     tracker,
		breakers:  breakers,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/collect", s.submitCollection)
		r.Post("/enrich", s.submitWebsite)
		r.Get("/quota", s.quotaState)
		r.Get("/breakers", s.breakerStates)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *server) Handler() http.Handler {
	return s.router
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) submitCollection(w http.ResponseWriter, r *http.Request) {
	var task model.CollectionTask
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	task = task.Normalize()
	if err := task.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.publish(w, r, queue.TopicCollection, task)
}

func (s *server) submitWebsite(w http.ResponseWriter, r *http.Request) {
	var task model.WebsiteTask
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := task.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.publish(w, r, queue.TopicWebsite, task)
}

func (s *server) publish(w http.ResponseWriter, r *http.Request, topic string, task any) {
	id, err := s.publisher.Publish(r.Context(), topic, task)
	if err != nil {
		zap.L().Error("publish task failed", zap.String("topic", topic), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to queue task")
		return
	}
	zap.L().Info("task queued", zap.String("topic", topic), zap.String("task_id", id))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"task_id": id,
		"topic":   topic,
		"task":    task,
	})
}

func (s *server) quotaState(w http.ResponseWriter, r *http.Request) {
	st, err := s.quota.State(r.Context())
	if err != nil {
		zap.L().Error("quota state failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read quota")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":            st.Day,
		"units_consumed": st.UnitsConsumed,
		"daily_limit":    st.DailyLimit,
		"remaining":      st.Remaining(),
	})
}

func (s *server) breakerStates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.breakers.States())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
