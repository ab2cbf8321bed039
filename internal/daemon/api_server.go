package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"evalpanel/internal/api"
	"evalpanel/internal/config"
	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/services"
	"evalpanel/internal/teams"
)

// maxBodyBytes bounds request bodies; transcripts dominate the size.
const maxBodyBytes = 8 << 20

type apiServer struct {
	bind          string
	defaultTenant string
	logger        *slog.Logger
	daemon        *Daemon
	handler       http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:          strings.TrimSpace(cfg.API.Bind),
		defaultTenant: cfg.API.DefaultTenant,
		logger:        logging.NewComponentLogger(logger, "api-server"),
		daemon:        d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	mux.HandleFunc("POST /api/jobs", srv.withCaller(srv.handleSubmit))
	mux.HandleFunc("GET /api/jobs", srv.withCaller(srv.handleList))
	mux.HandleFunc("GET /api/jobs/counts", srv.withCaller(srv.handleCounts))
	mux.HandleFunc("GET /api/jobs/stuck", srv.withCaller(srv.handleStuck))
	mux.HandleFunc("GET /api/jobs/{id}", srv.withCaller(srv.handleDetail))
	mux.HandleFunc("DELETE /api/jobs/{id}", srv.withCaller(srv.handleDelete))
	mux.HandleFunc("POST /api/jobs/{id}/retry", srv.withCaller(srv.handleRetry))
	mux.HandleFunc("POST /api/jobs/{id}/cancel", srv.withCaller(srv.handleCancel))
	mux.HandleFunc("POST /api/jobs/{id}/claim", srv.handleClaim)
	mux.HandleFunc("POST /api/jobs/{id}/update", srv.handleUpdate)
	mux.HandleFunc("GET /api/teams/{id}/validation", srv.withCaller(srv.handleTeamValidation))

	srv.handler = srv.withRequestID(authMiddleware(cfg.API.Token, mux))
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type callerHandler func(w http.ResponseWriter, r *http.Request, caller services.Caller)

func (s *apiServer) withCaller(next callerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerFromRequest(r, s.defaultTenant)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		next(w, r.WithContext(services.WithCaller(r.Context(), caller)), caller)
	}
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	state := "ok"
	if !status.Running {
		state = "stopped"
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:   state,
		PID:      status.PID,
		Provider: s.daemon.provider,
		Worker:   status.Worker,
		Stats:    status.Stats,
	})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request, caller services.Caller) {
	var sub jobs.Submission
	if !s.decode(w, r, &sub) {
		return
	}
	job, err := s.daemon.jobs.Submit(r.Context(), caller, sub)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.JobResponse{Job: job})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request, caller services.Caller) {
	query := r.URL.Query()
	statuses, err := parseStatuses(query["status"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	page, err := parsePositive(query.Get("page"), "page")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	pageSize, err := parsePositive(query.Get("pageSize"), "pageSize")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp, err := s.daemon.jobs.List(r.Context(), caller, statuses, page, pageSize)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleCounts(w http.ResponseWriter, r *http.Request, caller services.Caller) {
	counts, err := s.daemon.jobs.Counts(r.Context(), caller)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, counts)
}

func (s *apiServer) handleStuck(w http.ResponseWriter, r *http.Request, caller services.Caller) {
	resp, err := s.daemon.jobs.Stuck(r.Context(), caller)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleDetail(w http.ResponseWriter, r *http.Request, caller services.Caller) {
	detail, err := s.daemon.jobs.Describe(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request, caller services.Caller) {
	if err := s.daemon.jobs.Delete(r.Context(), caller, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request, caller services.Caller) {
	job, err := s.daemon.jobs.Retry(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: job})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request, caller services.Caller) {
	job, err := s.daemon.jobs.Cancel(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: job})
}

func (s *apiServer) handleClaim(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.jobs.Claim(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: job})
}

func (s *apiServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var update jobs.Update
	if !s.decode(w, r, &update) {
		return
	}
	job, err := s.daemon.jobs.Update(r.Context(), r.PathValue("id"), update)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: job})
}

func (s *apiServer) handleTeamValidation(w http.ResponseWriter, r *http.Request, caller services.Caller) {
	team, err := s.daemon.teams.GetForTenant(r.Context(), caller.TenantID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromValidation(team.ID, teams.Check(team.Members)))
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		message := "invalid request body"
		if errors.Is(err, io.EOF) {
			message = "request body is required"
		}
		s.writeServiceError(w, r, services.Wrap(services.ErrValidation, "api", "decode", message, err))
		return false
	}
	return true
}

func parseStatuses(values []string) ([]jobs.Status, error) {
	var statuses []jobs.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := jobs.ParseStatus(part)
			if !ok {
				return nil, services.Validation("api", "list", fmt.Sprintf("unknown status %q", part))
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func parsePositive(value, name string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, services.Validation("api", "list", fmt.Sprintf("%s must be a positive integer", name))
	}
	return n, nil
}

// statusForError maps error kinds onto HTTP status codes.
func statusForError(err error) int {
	switch services.ErrorKind(err) {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindTransient, services.KindTimeout, services.KindExternal, services.KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	kind := services.ErrorKind(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("api request failed",
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldErrorKind, kind),
			logging.Error(err),
		)
	} else {
		logger.Debug("api request rejected",
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldErrorKind, kind),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{
		Error:   http.StatusText(status),
		Kind:    kind,
		Message: err.Error(),
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}
