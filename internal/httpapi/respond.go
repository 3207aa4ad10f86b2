package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"scenecast/internal/jobs"
)

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorEnvelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Success: false, Message: message, ErrorCode: code})
}

// jobView is the wire representation of a job.
type jobView struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Progress    float64 `json:"progress"`
	CurrentStep string  `json:"current_step,omitempty"`

	OutputFormat   string  `json:"output_format,omitempty"`
	OutputSize     int64   `json:"output_size,omitempty"`
	OutputDuration float64 `json:"output_duration,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`
	MaxRetries   int    `json:"max_retries"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	WebhookURL  string `json:"webhook_url,omitempty"`
	WebhookSent bool   `json:"webhook_sent"`
}

func viewOf(job *jobs.Job) jobView {
	return jobView{
		ID:             job.ID,
		Status:         string(job.Status),
		Priority:       string(job.Priority),
		Title:          job.Title,
		Description:    job.Description,
		Progress:       job.Progress,
		CurrentStep:    job.CurrentStep,
		OutputFormat:   job.OutputFormat,
		OutputSize:     job.OutputSize,
		OutputDuration: job.OutputDuration,
		ErrorMessage:   job.ErrorMessage,
		RetryCount:     job.RetryCount,
		MaxRetries:     job.MaxRetries,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
		ExpiresAt:      job.ExpiresAt,
		WebhookURL:     job.WebhookURL,
		WebhookSent:    job.WebhookSent,
	}
}
