package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"scenecast/internal/coordinator"
	"scenecast/internal/jobs"
	"scenecast/internal/logging"
)

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	var req coordinator.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("Malformed request body: %v", err))
		return
	}

	job, err := s.coord.Submit(r.Context(), ownerKey(r), &req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, struct {
		Success bool    `json:"success"`
		Message string  `json:"message"`
		Job     jobView `json:"job"`
	}{
		Success: true,
		Message: fmt.Sprintf("Video composition job submitted successfully. Total duration: %.1fs", req.TotalDuration()),
		Job:     viewOf(job),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobs.Filter{
		Page:     queryInt(r, "page", 1),
		PerPage:  queryInt(r, "per_page", 50),
		SortBy:   r.URL.Query().Get("sort_by"),
		SortDesc: r.URL.Query().Get("order") == "desc",
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := jobs.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_filter", fmt.Sprintf("Unknown status %q", raw))
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("priority"); raw != "" {
		priority, ok := jobs.ParsePriority(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_filter", fmt.Sprintf("Unknown priority %q", raw))
			return
		}
		filter.Priority = priority
	}

	listed, total, err := s.coord.List(r.Context(), ownerKey(r), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	views := make([]jobView, 0, len(listed))
	for _, job := range listed {
		views = append(views, viewOf(job))
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool      `json:"success"`
		Jobs    []jobView `json:"jobs"`
		Total   int       `json:"total"`
		Page    int       `json:"page"`
		PerPage int       `json:"per_page"`
	}{
		Success: true,
		Jobs:    views,
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.coord.Get(r.Context(), chi.URLParam(r, "id"), ownerKey(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.coord.Cancel(r.Context(), chi.URLParam(r, "id"), ownerKey(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool    `json:"success"`
		Message string  `json:"message"`
		Job     jobView `json:"job"`
	}{Success: true, Message: "Job cancelled", Job: viewOf(job)})
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.coord.Retry(r.Context(), chi.URLParam(r, "id"), ownerKey(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool    `json:"success"`
		Message string  `json:"message"`
		Job     jobView `json:"job"`
	}{Success: true, Message: "Job queued for retry", Job: viewOf(job)})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Delete(r.Context(), chi.URLParam(r, "id"), ownerKey(r)); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{Success: true, Message: "Job deleted"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.coord.Get(r.Context(), id, ownerKey(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if job.Status != jobs.StatusCompleted {
		writeError(w, http.StatusBadRequest, "not_completed",
			fmt.Sprintf("Job is not completed. Current status: %s", job.Status))
		return
	}
	if job.OutputPath == "" {
		writeError(w, http.StatusNotFound, "output_missing", "Job output file not found")
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("composition_%s.%s", job.ID, job.OutputFormat)))
	http.ServeFile(w, r, job.OutputPath)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.checker.Check(r.Context())
	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, coordinator.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Job not found")
	case errors.Is(err, jobs.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		s.logger.Error("request failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
