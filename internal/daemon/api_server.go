package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"roost/internal/activities"
	"roost/internal/api"
	"roost/internal/config"
	"roost/internal/federation"
	"roost/internal/logging"
	"roost/internal/services"
)

const maxInboxBody = 1 << 20

type apiServer struct {
	bind      string
	logger    *slog.Logger
	daemon    *Daemon
	canonical federation.Canonicalizer

	listener  net.Listener
	server    *http.Server
	boundAddr string
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Server.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:      bind,
		logger:    logger,
		daemon:    d,
		canonical: federation.Normalizer{},
	}

	token := cfg.Server.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/queue", srv.handleQueue)
	mux.HandleFunc("/api/timeline", srv.handleTimeline)
	mux.HandleFunc("/api/queue/retry", srv.requireToken(token, srv.handleQueueRetry))
	mux.HandleFunc("/api/queue/clear", srv.requireToken(token, srv.handleQueueClear))
	mux.HandleFunc("/inbox", srv.handleInbox)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.boundAddr = listener.Addr().String()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	return s.boundAddr
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	kind := strings.TrimSpace(query.Get("kind"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	entries, err := s.daemon.Scheduler().List(r.Context(), kind, limit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Entries: entries})
}

func (s *apiServer) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.inbound == nil {
		s.writeError(w, http.StatusServiceUnavailable, "timeline unavailable")
		return
	}
	query := r.URL.Query()
	username := strings.TrimSpace(query.Get("identity"))
	if username == "" {
		s.writeError(w, http.StatusBadRequest, "identity query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))

	identity, err := s.daemon.inbound.Identities().LocalByUsername(r.Context(), username)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if identity == nil {
		s.writeError(w, http.StatusNotFound, "no such local identity")
		return
	}

	events, err := api.NewTimelineService(s.daemon.store).For(r.Context(), identity, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.TimelineResponse{Identity: username, Events: events})
}

func (s *apiServer) handleQueueRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	resp, err := s.daemon.Scheduler().RetryParked(r.Context(), kind)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp, err := s.daemon.Scheduler().ClearFailedFanOuts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleInbox accepts inbound federation activities. Unsupported activity
// types are acknowledged and dropped so remote servers do not retry them.
func (s *apiServer) handleInbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.inbound == nil {
		s.writeError(w, http.StatusServiceUnavailable, "inbox unavailable")
		return
	}

	var doc map[string]any
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInboxBody))
	if err := decoder.Decode(&doc); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid activity document")
		return
	}
	doc, err := s.canonical.Canonicalize(doc)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid activity document")
		return
	}

	activityType, _ := doc["type"].(string)
	switch activityType {
	case activities.ActivityCreate:
		err = s.daemon.inbound.HandleCreate(r.Context(), doc)
	case activities.ActivityDelete:
		err = s.daemon.inbound.HandleDelete(r.Context(), doc)
	default:
		s.log().Debug("ignoring unsupported activity", logging.String("type", activityType))
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log().Error("inbox processing failed",
			logging.String("type", activityType),
			logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "activity processing failed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

// requireToken gates mutating routes behind bearer-token auth. An empty
// configured token leaves the route open for local development.
func (s *apiServer) requireToken(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		supplied, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || supplied != token {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
