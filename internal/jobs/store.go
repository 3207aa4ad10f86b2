package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"scenecast/internal/config"
)

// ErrInvalidTransition indicates a caller attempted an illegal status change.
var ErrInvalidTransition = errors.New("invalid job transition")

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create persists a new job record. CreatedAt/UpdatedAt are stamped here.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO composition_jobs (
            id, owner_key, title, description, status, priority, request_json,
            progress, current_step, output_path, output_format, output_size,
            output_duration, error_message, retry_count, max_retries,
            created_at, updated_at, started_at, completed_at, expires_at,
            webhook_url, webhook_sent
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.OwnerKey,
		nullableString(job.Title),
		nullableString(job.Description),
		job.Status,
		job.Priority,
		job.RequestJSON,
		job.Progress,
		nullableString(job.CurrentStep),
		nullableString(job.OutputPath),
		nullableString(job.OutputFormat),
		job.OutputSize,
		job.OutputDuration,
		nullableString(job.ErrorMessage),
		job.RetryCount,
		job.MaxRetries,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		nullableTime(job.ExpiresAt),
		nullableString(job.WebhookURL),
		boolToInt(job.WebhookSent),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job by identifier regardless of owner.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM composition_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetForOwner fetches a job by identifier scoped to its owner credential.
func (s *Store) GetForOwner(ctx context.Context, id, ownerKey string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM composition_jobs WHERE id = ? AND owner_key = ?`,
		id, ownerKey,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job for owner: %w", err)
	}
	return job, nil
}

// Filter narrows List results.
type Filter struct {
	Status    Status
	Priority  Priority
	Page      int
	PerPage   int
	SortBy    string
	SortDesc  bool
}

var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"status":     "status",
	"priority":   "priority",
	"progress":   "progress",
}

// List returns jobs for an owner with optional filtering, pagination, and sorting.
func (s *Store) List(ctx context.Context, ownerKey string, filter Filter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM composition_jobs WHERE owner_key = ?`
	args := []any{ownerKey}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, filter.Priority)
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += ` ORDER BY ` + column + ` ` + direction

	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, perPage, (page-1)*perPage)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// ListAll returns jobs across every owner. This is the operator surface used
// by the CLI; the HTTP API always goes through the owner-scoped List.
func (s *Store) ListAll(ctx context.Context, filter Filter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM composition_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, filter.Priority)
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += ` ORDER BY ` + column + ` ` + direction

	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, perPage, (page-1)*perPage)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list all jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// CountForOwner returns the number of jobs matching the filter, ignoring pagination.
func (s *Store) CountForOwner(ctx context.Context, ownerKey string, filter Filter) (int, error) {
	query := `SELECT COUNT(1) FROM composition_jobs WHERE owner_key = ?`
	args := []any{ownerKey}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, filter.Priority)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return count, nil
}

// Update persists mutable fields of an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE composition_jobs
         SET title = ?, description = ?, status = ?, priority = ?, progress = ?,
             current_step = ?, output_path = ?, output_format = ?, output_size = ?,
             output_duration = ?, error_message = ?, retry_count = ?, max_retries = ?,
             updated_at = ?, started_at = ?, completed_at = ?, expires_at = ?,
             webhook_url = ?, webhook_sent = ?
         WHERE id = ?`,
		nullableString(job.Title),
		nullableString(job.Description),
		job.Status,
		job.Priority,
		job.Progress,
		nullableString(job.CurrentStep),
		nullableString(job.OutputPath),
		nullableString(job.OutputFormat),
		job.OutputSize,
		job.OutputDuration,
		nullableString(job.ErrorMessage),
		job.RetryCount,
		job.MaxRetries,
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		nullableTime(job.ExpiresAt),
		nullableString(job.WebhookURL),
		boolToInt(job.WebhookSent),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// UpdateProgress persists progress and the current step while a job is
// processing. Progress never moves backwards: the stored value is the max of
// the current and reported values.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress float64, step string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE composition_jobs
         SET progress = MAX(progress, ?), current_step = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		progress,
		nullableString(step),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Transition atomically moves a job from one status to another, applying
// mutate to the record before it is persisted. The from-status guard in the
// write makes concurrent drivers lose cleanly: the second caller gets
// ErrInvalidTransition.
func (s *Store) Transition(ctx context.Context, id string, from, to Status, mutate func(*Job)) (*Job, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s not found", ErrInvalidTransition, id)
	}
	if job.Status != from {
		return nil, fmt.Errorf("%w: job %s is %s, expected %s", ErrInvalidTransition, id, job.Status, from)
	}

	job.Status = to
	if mutate != nil {
		mutate(job)
	}
	job.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE composition_jobs
         SET status = ?, progress = ?, current_step = ?, output_path = ?,
             output_format = ?, output_size = ?, output_duration = ?,
             error_message = ?, retry_count = ?, updated_at = ?, started_at = ?,
             completed_at = ?, webhook_sent = ?
         WHERE id = ? AND status = ?`,
		job.Status,
		job.Progress,
		nullableString(job.CurrentStep),
		nullableString(job.OutputPath),
		nullableString(job.OutputFormat),
		job.OutputSize,
		job.OutputDuration,
		nullableString(job.ErrorMessage),
		job.RetryCount,
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		boolToInt(job.WebhookSent),
		id,
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("transition job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: job %s left %s concurrently", ErrInvalidTransition, id, from)
	}
	return job, nil
}

// NextPending returns the oldest pending job, urgent first.
func (s *Store) NextPending(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM composition_jobs
         WHERE status = ?
         ORDER BY CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 ELSE 2 END, created_at
         LIMIT 1`,
		StatusPending,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending job: %w", err)
	}
	return job, nil
}

// Delete removes a job scoped to its owner. Returns false when nothing matched.
func (s *Store) Delete(ctx context.Context, id, ownerKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM composition_jobs WHERE id = ? AND owner_key = ?`, id, ownerKey)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ExpiredOutputPaths returns the output files of jobs past their expiration,
// so callers can remove the files alongside the records.
func (s *Store) ExpiredOutputPaths(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT output_path FROM composition_jobs
         WHERE expires_at IS NOT NULL AND expires_at < ? AND output_path IS NOT NULL`,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("expired output paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		if path != "" {
			paths = append(paths, path)
		}
	}
	return paths, rows.Err()
}

// DeleteExpired removes jobs whose expiration timestamp has passed.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM composition_jobs WHERE expires_at IS NOT NULL AND expires_at < ?`,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM composition_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// CountActive returns the number of jobs still occupying scheduler capacity.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM composition_jobs WHERE status IN (?, ?, ?)`,
		StatusPending, StatusQueued, StatusProcessing,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return count, nil
}

const jobColumns = "id, owner_key, title, description, status, priority, request_json, progress, current_step, output_path, output_format, output_size, output_duration, error_message, retry_count, max_retries, created_at, updated_at, started_at, completed_at, expires_at, webhook_url, webhook_sent"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		ownerKey     string
		title        sql.NullString
		description  sql.NullString
		statusStr    string
		priorityStr  string
		requestJSON  string
		progress     float64
		currentStep  sql.NullString
		outputPath   sql.NullString
		outputFormat sql.NullString
		outputSize   int64
		outputDur    float64
		errorMessage sql.NullString
		retryCount   int
		maxRetries   int
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
		expiresRaw   sql.NullString
		webhookURL   sql.NullString
		webhookSent  int
	)

	if err := scanner.Scan(
		&id, &ownerKey, &title, &description, &statusStr, &priorityStr,
		&requestJSON, &progress, &currentStep, &outputPath, &outputFormat,
		&outputSize, &outputDur, &errorMessage, &retryCount, &maxRetries,
		&createdRaw, &updatedRaw, &startedRaw, &completedRaw, &expiresRaw,
		&webhookURL, &webhookSent,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:             id,
		OwnerKey:       ownerKey,
		Title:          title.String,
		Description:    description.String,
		Status:         Status(statusStr),
		Priority:       Priority(priorityStr),
		RequestJSON:    requestJSON,
		Progress:       progress,
		CurrentStep:    currentStep.String,
		OutputPath:     outputPath.String,
		OutputFormat:   outputFormat.String,
		OutputSize:     outputSize,
		OutputDuration: outputDur,
		ErrorMessage:   errorMessage.String,
		RetryCount:     retryCount,
		MaxRetries:     maxRetries,
		WebhookURL:     webhookURL.String,
		WebhookSent:    webhookSent != 0,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	job.ExpiresAt = parseNullableTime(expiresRaw)
	return job, nil
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
