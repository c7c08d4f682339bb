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
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aurax/internal/api"
	"aurax/internal/config"
	"aurax/internal/generation"
	"aurax/internal/logging"
	"aurax/internal/logs"
	"aurax/internal/progress"
	"aurax/internal/queue"
	"aurax/internal/services"
)

// runService is the slice of the workflow manager the API serves.
type runService interface {
	Submit(ctx context.Context, draft generation.Draft, maxAttempts int) (*queue.Run, error)
	Get(ctx context.Context, id string) (*queue.Run, error)
	List(ctx context.Context, statuses ...generation.RunStatus) ([]*queue.Run, error)
	Attempts(ctx context.Context, id string) ([]generation.AttemptRecord, error)
	Progress(ctx context.Context, id string) (progress.Snapshot, error)
	Cancel(ctx context.Context, id string) (*queue.Run, error)
}

type statusSource interface {
	Status(ctx context.Context) Status
}

const (
	maxRequestBody = 1 << 20
	maxLogWait     = 10 * time.Second
	maxLogLines    = 5000
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	runs   runService
	status statusSource

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, runs runService, status statusSource, logger *slog.Logger) *apiServer {
	if cfg == nil || runs == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		runs:   runs,
		status: status,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(strings.TrimSpace(cfg.Paths.APIToken)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(authMiddleware(token))

	r.Get("/api/status", s.handleStatus)
	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.handleRun)
			r.Get("/progress", s.handleProgress)
			r.Get("/log", s.handleLog)
			r.Post("/cancel", s.handleCancel)
		})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, errorBody("not found", services.KindNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, errorBody("method not allowed", ""))
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

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
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.writeError(w, http.StatusServiceUnavailable, errorBody("status unavailable", ""))
		return
	}
	status := s.status.Status(r.Context())
	results := make([]api.PreflightResult, 0, len(status.Preflight))
	for _, res := range status.Preflight {
		results = append(results, api.PreflightResult{Name: res.Name, Passed: res.Passed, Detail: res.Detail})
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Preflight:    results,
	})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errorBody("decode request: "+err.Error(), services.KindInvalidRequest))
		return
	}
	run, err := s.runs.Submit(r.Context(), req.Draft, req.MaxAttempts)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{ID: run.ID, Status: string(run.Status)})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []generation.RunStatus
	for _, value := range r.URL.Query()["status"] {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			status := generation.RunStatus(trimmed)
			if !knownStatus(status) {
				s.writeError(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown status %q", trimmed), services.KindInvalidRequest))
				return
			}
			statuses = append(statuses, status)
		}
	}
	runs, err := s.runs.List(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunListResponse{Runs: api.FromRuns(runs)})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	attempts, err := s.runs.Attempts(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunResponse{Run: api.FromRun(run), Attempts: attempts})
}

func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := s.runs.Progress(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(snap))
}

func (s *apiServer) handleLog(w http.ResponseWriter, r *http.Request) {
	query, err := parseLogQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errorBody(err.Error(), services.KindInvalidRequest))
		return
	}
	run, err := s.runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := api.LogTail{RunID: run.ID, Lines: []string{}}
	if run.LogPath == "" {
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
	result, err := logs.Tail(r.Context(), run.LogPath, logs.TailOptions{
		Offset: query.Offset,
		Limit:  query.Limit,
		Follow: query.Wait > 0,
		Wait:   query.Wait,
	})
	if err != nil && r.Context().Err() == nil {
		s.writeServiceError(w, fmt.Errorf("tail run log: %w", err))
		return
	}
	if result.Lines != nil {
		resp.Lines = result.Lines
	}
	resp.Offset = result.Offset
	s.writeJSON(w, http.StatusOK, resp)
}

func parseLogQuery(values url.Values) (api.LogQuery, error) {
	query := api.LogQuery{Offset: -1, Limit: 100}
	if raw := strings.TrimSpace(values.Get("offset")); raw != "" {
		offset, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return query, fmt.Errorf("invalid offset %q", raw)
		}
		query.Offset = offset
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return query, fmt.Errorf("invalid limit %q", raw)
		}
		query.Limit = min(limit, maxLogLines)
	}
	if raw := strings.TrimSpace(values.Get("wait")); raw != "" {
		wait, err := time.ParseDuration(raw)
		if err != nil || wait < 0 {
			return query, fmt.Errorf("invalid wait %q", raw)
		}
		query.Wait = min(wait, maxLogWait)
	}
	return query, nil
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Cancel(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRun(run))
}

func (s *apiServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log().Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

func knownStatus(status generation.RunStatus) bool {
	switch status {
	case generation.StatusPending, generation.StatusGenerating:
		return true
	default:
		return status.Terminal()
	}
}

func statusForError(err error) int {
	switch services.KindOf(err) {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindInvalidRequest, services.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		s.log().Error("api request failed", logging.Error(err))
	}
	s.writeError(w, code, errorBody(err.Error(), services.KindOf(err)))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload, s.log())
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, body api.ErrorResponse) {
	s.writeJSON(w, status, body)
}

func errorBody(message, kind string) api.ErrorResponse {
	if kind == services.KindUnknown {
		kind = ""
	}
	return api.ErrorResponse{Error: message, Kind: kind}
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
