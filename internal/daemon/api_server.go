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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shapelearner/internal/api"
	"shapelearner/internal/config"
	"shapelearner/internal/jobs"
	"shapelearner/internal/logging"
	"shapelearner/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	guard := func(h http.HandlerFunc) http.HandlerFunc { return authMiddleware(cfg.API.Token, h) }

	mux.HandleFunc("GET /createJob", guard(srv.handleCreateJob))
	mux.HandleFunc("POST /createJob", guard(srv.handleCreateJob))
	mux.HandleFunc("POST /updateJob", guard(srv.handleUpdateJob))
	mux.HandleFunc("GET /getJobStatus", guard(srv.handleGetJobStatus))
	mux.HandleFunc("POST /getJobStatus", guard(srv.handleGetJobStatus))
	mux.HandleFunc("GET /jobResult", guard(srv.handleJobResult))
	mux.HandleFunc("GET /jobs", guard(srv.handleListJobs))
	mux.HandleFunc("GET /predict/id/{id}/nmax/{nmax}", guard(srv.handlePredict))
	mux.HandleFunc("GET /predict/id/{id}/pmax/{pmax}", guard(srv.handlePredict))
	mux.HandleFunc("GET /predict/id/{id}/nmax/{nmax}/pmax/{pmax}", guard(srv.handlePredict))
	mux.HandleFunc("GET /recomputeModel", guard(srv.handleRecompute))
	mux.HandleFunc("POST /recomputeModel", guard(srv.handleRecompute))
	mux.HandleFunc("GET /initdb", guard(srv.handleInitDB))
	mux.HandleFunc("GET /api/status", guard(srv.handleStatus))
	mux.Handle("GET /metrics", promhttp.Handler())

	srv.handler = requestIDMiddleware(srv.logger, stripTrailingSlash(mux))

	readTimeout := time.Duration(cfg.API.ReadTimeoutSeconds) * time.Second
	writeTimeout := time.Duration(cfg.API.WriteTimeoutSeconds) * time.Second
	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the bind address is free"),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.shutdown()
}

func (s *apiServer) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	id, err := s.daemon.deps.Jobs.Create(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CreateJobResponse{JobID: id})
}

func (s *apiServer) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateJobRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	update, err := api.ToUpdateRequest(req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	id, err := s.daemon.deps.Jobs.Update(r.Context(), update)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.UpdateJobResponse{JobID: id})
}

func (s *apiServer) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDFromRequest(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	job, err := s.daemon.deps.Jobs.Get(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromJob(job))
}

func (s *apiServer) handleJobResult(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDFromRequest(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	result, err := s.daemon.deps.Jobs.Result(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromResult(result))
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []jobs.Status
	for _, value := range r.URL.Query()["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, err := jobs.ParseStatus(value)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		statuses = append(statuses, status)
	}
	list, err := s.daemon.deps.Jobs.List(r.Context(), statuses...)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(list)})
}

func (s *apiServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	id, filter, err := api.ParsePredict(r.PathValue("id"), r.PathValue("nmax"), r.PathValue("pmax"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	prediction, err := s.daemon.deps.Classifier.PredictID(r.Context(), id, filter)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromPrediction(prediction))
}

func (s *apiServer) handleRecompute(w http.ResponseWriter, r *http.Request) {
	model, err := s.daemon.deps.Classifier.Recompute(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("model recomputed via api",
		logging.Int64("model_version", model.Version()),
		logging.Int("samples", model.Samples()),
	)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, api.RecomputeAcknowledgement)
}

// handleInitDB reports whether the stores are reachable. Schemas are created
// when the stores are opened, so there is nothing left to initialize.
func (s *apiServer) handleInitDB(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.deps.Jobs.Ping(r.Context()); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if features := s.daemon.deps.Features; features != nil {
		if err := features.Ping(r.Context()); err != nil {
			s.writeFailure(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		JobDBPath:    status.JobDBPath,
		LockFilePath: status.LockFilePath,
		FeatureStore: status.FeatureStore,
		ModelStore:   status.ModelStore,
		Model:        api.FromModel(status.Model),
		JobCounts:    make(map[string]int, len(status.JobCounts)),
	}
	for st, count := range status.JobCounts {
		payload.JobCounts[string(st)] = count
	}
	for _, check := range status.Checks {
		payload.Checks = append(payload.Checks, api.CheckResult{Name: check.Name, Passed: check.Passed, Detail: check.Detail})
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// jobIDFromRequest reads idJob from the query string or, for POST, from a
// JSON body.
func jobIDFromRequest(r *http.Request) (int64, error) {
	if raw := strings.TrimSpace(r.URL.Query().Get("idJob")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, services.Wrap(services.ErrValidation, "api", "job id", "idJob must be an integer", nil)
		}
		return id, nil
	}
	if r.Method != http.MethodPost {
		return 0, services.Wrap(services.ErrValidation, "api", "job id", "idJob is required", nil)
	}
	var req api.JobStatusRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, err
	}
	return int64(req.IDJob), nil
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return services.Wrap(services.ErrValidation, "api", "decode body", "request body is not valid JSON: "+err.Error(), nil)
	}
	return nil
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

func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(logger, "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
			logging.String(logging.FieldImpact, "request returned an error to the client"),
		)
	} else {
		logger.Debug("api request rejected",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: services.Message(err)})
}
