package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Create inserts a pending project for sourcePath.
func (s *Store) Create(ctx context.Context, sourcePath string, category ContentCategory) (*Project, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return nil, errors.New("source path is required")
	}
	if category == "" {
		category = CategoryTestimonial
	}
	id := uuid.NewString()
	timestamp := formatTime(time.Now())

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO projects (
            id, source_path, category, status, stage, progress_percent,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		sourcePath,
		string(category),
		StatusPending,
		string(StageNone),
		0,
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a project by identifier. It returns nil, nil when the
// project does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// List returns projects ordered by creation time, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, id`
	return s.queryProjects(ctx, query, args...)
}

// NextRunnable returns up to limit unclaimed projects that still have work to do.
func (s *Store) NextRunnable(ctx context.Context, limit int) ([]*Project, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.queryProjects(
		ctx,
		`SELECT `+projectColumns+` FROM projects
         WHERE status IN (?, ?) AND run_owner IS NULL
         ORDER BY created_at, id
         LIMIT ?`,
		StatusPending,
		StatusProcessing,
		limit,
	)
}

func (s *Store) queryProjects(ctx context.Context, query string, args ...any) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProgress persists the status, stage, percent and error message of p.
func (s *Store) UpdateProgress(ctx context.Context, p *Project) error {
	if p == nil {
		return errors.New("project is nil")
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects
         SET status = ?, stage = ?, progress_percent = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		p.Status,
		string(p.Stage),
		p.ProgressPercent,
		nullableString(p.ErrorMessage),
		formatTime(now),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if err := requireRow(res, p.ID); err != nil {
		return err
	}
	p.UpdatedAt = now
	return nil
}

// SetMedia records the normalized media handle produced by ingest.
func (s *Store) SetMedia(ctx context.Context, id, mediaPath string, durationSeconds float64, sizeBytes int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET media_path = ?, duration_seconds = ?, size_bytes = ?, updated_at = ? WHERE id = ?`,
		nullableString(mediaPath),
		durationSeconds,
		sizeBytes,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set media: %w", err)
	}
	return requireRow(res, id)
}

// SetManifest stores the manifest written by the finalize stage.
func (s *Store) SetManifest(ctx context.Context, id, manifestJSON string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET manifest_json = ?, updated_at = ? WHERE id = ?`,
		nullableString(manifestJSON),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set manifest: %w", err)
	}
	return requireRow(res, id)
}

// RequestCancel flags a non-terminal project for cancellation. It reports
// whether the flag was set.
func (s *Store) RequestCancel(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET cancel_requested = 1, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?)`,
		formatTime(time.Now()),
		id,
		StatusCompleted,
		StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("request cancel rows: %w", err)
	}
	return affected > 0, nil
}

// CancelRequested reads the cancellation flag without loading the full row.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM projects WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// RetryFailed moves a failed project back to pending so the next run starts
// from the first stage.
func (s *Store) RetryFailed(ctx context.Context, id string) (*Project, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects
         SET status = ?, stage = '', progress_percent = 0, error_message = NULL,
             cancel_requested = 0, run_owner = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		formatTime(time.Now()),
		id,
		StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("retry project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("retry project rows: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if existing == nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: status is %s", ErrNotRetryable, existing.Status)
	}
	return s.GetByID(ctx, id)
}

// ClaimRun records owner as the active runner of the project. It reports false
// when another owner already holds the claim.
func (s *Store) ClaimRun(ctx context.Context, id, owner string) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET run_owner = ?, last_heartbeat = ?
         WHERE id = ? AND run_owner IS NULL`,
		owner,
		now,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("claim run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim run rows: %w", err)
	}
	return affected > 0, nil
}

// ReleaseRun clears the claim held by owner.
func (s *Store) ReleaseRun(ctx context.Context, id, owner string) error {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET run_owner = NULL, last_heartbeat = NULL WHERE id = ? AND run_owner = ?`,
		id,
		owner,
	); err != nil {
		return fmt.Errorf("release run: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the heartbeat of a claim held by owner.
func (s *Store) UpdateHeartbeat(ctx context.Context, id, owner string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET last_heartbeat = ? WHERE id = ? AND run_owner = ?`,
		formatTime(time.Now()),
		id,
		owner,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update heartbeat rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update heartbeat: claim for %s no longer held by %s", id, owner)
	}
	return nil
}

// ReclaimStale releases claims whose heartbeat is older than cutoff and
// returns the number of projects released.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET run_owner = NULL, last_heartbeat = NULL
         WHERE run_owner IS NOT NULL AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseOwner clears every claim held by owner, used on daemon shutdown.
func (s *Store) ReleaseOwner(ctx context.Context, owner string) error {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET run_owner = NULL, last_heartbeat = NULL WHERE run_owner = ?`,
		owner,
	); err != nil {
		return fmt.Errorf("release owner: %w", err)
	}
	return nil
}

// Stats returns a count of projects grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM projects GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("project stats: %w", err)
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

// Ping verifies the database connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(connCtx); err != nil {
		return fmt.Errorf("ping project database: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
