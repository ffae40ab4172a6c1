package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/dontdude/gograde/internal/domain"
	"github.com/dontdude/gograde/internal/platform/web"
	"github.com/dontdude/gograde/internal/submit"
)

// maxBody bounds a submission request.
const maxBody = 4 << 20

type api struct {
	svc      *submit.Service
	hub      *hub
	limiter  *web.RateLimiter
	origins  []string
	upgrader websocket.Upgrader
	started  time.Time
	logger   *slog.Logger
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/ping", web.Ping("server", a.started))
	r.Route("/api", func(r chi.Router) {
		r.With(a.limiter.Middleware).Post("/jobs", a.handleSubmit)
		r.Get("/jobs/{id}", a.handleReport)
		r.Get("/ws", a.handleWS)
	})
	return r
}

func (a *api) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub submit.Submission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&sub); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	receipt, err := a.svc.Submit(r.Context(), sub)
	switch {
	case errors.Is(err, submit.ErrInvalidSubmission):
		web.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case err != nil:
		a.logger.Error("Failed to enqueue job", "err", err)
		web.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
		return
	}
	web.WriteJSON(w, http.StatusAccepted, receipt)
}

func (a *api) handleReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	rep, err := a.svc.Report(r.Context(), jobID)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		web.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	case err != nil:
		a.logger.Error("Failed to build report", "job_id", jobID, "err", err)
		web.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
		return
	}
	web.WriteJSON(w, http.StatusOK, rep)
}

// handleWS upgrades the connection and registers it for the job's events.
func (a *api) handleWS(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("WebSocket upgrade failed", "err", err)
		return
	}
	a.logger.Info("Client connected via WebSocket", "job_id", jobID, "remote_addr", conn.RemoteAddr().String())
	a.hub.add(jobID, conn)
	defer func() {
		a.hub.remove(jobID, conn)
		_ = conn.Close()
		a.logger.Info("Client disconnected", "job_id", jobID)
	}()

	// Read until the client goes away; inbound messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
