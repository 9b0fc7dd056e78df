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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"morph/internal/api"
	"morph/internal/config"
	"morph/internal/format"
	"morph/internal/logging"
	"morph/internal/queue"
)

// historyListLimit caps how many rows history endpoints return by default.
const historyListLimit = 50

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	queueSvc *api.QueueService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:     bind,
		logger:   logger,
		daemon:   d,
		queueSvc: api.NewQueueService(d.store),
	}

	srv.server = &http.Server{
		Handler:           srv.routes(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Minute,
		WriteTimeout:      15 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(cfg.API.Token))
			r.Get("/status", s.handleStatus)
			r.Get("/formats", s.handleFormats)
			r.Get("/history", s.handleHistory)
			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", s.handleCreateJob)
				r.Get("/", s.handleListJobs)
				r.Get("/{id}", s.handleGetJob)
				r.Get("/{id}/result", s.handleJobResult)
				r.Delete("/{id}", s.handleDeleteJob)
			})
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(bearerAuth(cfg.API.AdminToken))
			r.Get("/stats", s.handleAdminStats)
			r.Get("/clients", s.handleAdminClients)
			r.Post("/clients/{id}/ban", s.handleAdminBan(true))
			r.Post("/clients/{id}/unban", s.handleAdminBan(false))
		})
	})
	return r
}

func (s *apiServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(wrapped, r)
		s.log().Debug("request handled",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", wrapped.Status()),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
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

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: api.FromDependencies(status.Dependencies),
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	client := clientID(r)
	ctx := r.Context()

	if banned, err := s.daemon.history.IsBanned(ctx, client); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if banned {
		s.writeError(w, http.StatusForbidden, "client is banned")
		return
	}

	// Allow form overhead beyond the raw file cap.
	r.Body = http.MaxBytesReader(w, r.Body, s.daemon.cfg.MaxFileSizeBytes()+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	target := strings.TrimSpace(r.FormValue("target"))
	if target == "" {
		s.writeError(w, http.StatusBadRequest, "target format is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	staged, err := s.daemon.StageUpload(header.Filename)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out, err := os.OpenFile(staged, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		_ = os.Remove(staged)
		s.writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(staged)
		s.writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	job, position, err := s.daemon.Enqueue(ctx, EnqueueParams{
		ClientID:     client,
		SourcePath:   staged,
		SourceName:   header.Filename,
		TargetFormat: target,
	})
	if err != nil {
		_ = os.Remove(staged)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, struct {
		Job      api.Job `json:"job"`
		Position int     `json:"position"`
	}{Job: api.FromJob(job), Position: position})
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.queueSvc.ListForClient(r.Context(), clientID(r), historyListLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filtered := jobs[:0]
		for _, job := range jobs {
			if strings.EqualFold(job.Status, status) {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) jobForRequest(w http.ResponseWriter, r *http.Request) *queue.Job {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return nil
	}
	job, err := s.daemon.GetJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	if job == nil || job.ClientID != clientID(r) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return job
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.jobForRequest(w, r)
	if job == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleJobResult(w http.ResponseWriter, r *http.Request) {
	job := s.jobForRequest(w, r)
	if job == nil {
		return
	}
	if job.Status != queue.StatusCompleted || job.DeliveredPath == "" {
		s.writeError(w, http.StatusConflict, "job has no result yet")
		return
	}
	if _, err := os.Stat(job.DeliveredPath); err != nil {
		s.writeError(w, http.StatusGone, "result file no longer available")
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(job.DeliveredPath)))
	http.ServeFile(w, r, job.DeliveredPath)
}

func (s *apiServer) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	job := s.jobForRequest(w, r)
	if job == nil {
		return
	}
	if !queue.IsTerminal(job.Status) {
		s.writeError(w, http.StatusConflict, "job is still processing")
		return
	}
	removed, err := s.daemon.RemoveJob(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (s *apiServer) handleFormats(w http.ResponseWriter, r *http.Request) {
	if input := strings.TrimSpace(r.URL.Query().Get("input")); input != "" {
		normalized := format.Normalize(input)
		category, ok := format.CategoryOf(normalized)
		if !ok {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("unsupported format %q", input))
			return
		}
		s.writeJSON(w, http.StatusOK, api.FormatsResponse{Formats: []api.FormatInfo{{
			Format:   normalized,
			Category: string(category),
			Targets:  format.TargetsFor(normalized),
		}}})
		return
	}
	s.writeJSON(w, http.StatusOK, api.FormatsResponse{Formats: api.FormatMatrix()})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := historyListLimit
	if value := r.URL.Query().Get("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := s.daemon.History(r.Context(), clientID(r), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: api.FromHistoryEntries(entries)})
}

func (s *apiServer) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.daemon.SystemStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	activity, err := s.daemon.Activity(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Stats    api.SystemStats   `json:"stats"`
		Activity api.ActivityStats `json:"activity"`
	}{Stats: api.FromSystemStats(stats), Activity: api.FromActivityStats(activity)})
}

func (s *apiServer) handleAdminClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.daemon.Clients(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ClientListResponse{Clients: api.FromClients(clients)})
}

func (s *apiServer) handleAdminBan(banned bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		if id == "" {
			s.writeError(w, http.StatusBadRequest, "client id is required")
			return
		}
		if err := s.daemon.SetClientBanned(r.Context(), id, banned); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"clientId": id, "banned": banned})
	}
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

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
