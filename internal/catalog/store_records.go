package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// NewRecord validates params and inserts a queued record.
func (s *Store) NewRecord(ctx context.Context, params NewRecordParams) (*Record, error) {
	params.Title = strings.TrimSpace(params.Title)
	params.GenreLabel = strings.TrimSpace(params.GenreLabel)
	params.Prompt = strings.TrimSpace(params.Prompt)
	params.Lyrics = strings.TrimSpace(params.Lyrics)
	if err := paramsValidator.Struct(params); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}

	timestamp := nowString()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO songs (title, genre_label, prompt, lyrics, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		params.Title,
		nullableString(params.GenreLabel),
		nullableString(params.Prompt),
		nullableString(params.Lyrics),
		StatusQueued,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a record by identifier. It returns nil when none exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM songs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List returns records filtered by status set (or all records when no status
// is provided) in ascending id order.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	baseQuery := `SELECT ` + recordColumns + ` FROM songs`
	orderClause := ` ORDER BY id`
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		query := baseQuery + ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, statusArgs(statuses)...)
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return scanRecords(rows)
}

// ListByIDs returns the records with the given ids in ascending id order.
// Unknown ids are ignored.
func (s *Store) ListByIDs(ctx context.Context, ids ...int64) ([]*Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM songs WHERE id IN (`+makePlaceholders(len(ids))+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list records by id: %w", err)
	}
	return scanRecords(rows)
}

// Queued returns queued records in ascending id order. A limit <= 0 returns
// all of them.
func (s *Store) Queued(ctx context.Context, limit int) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM songs WHERE status = ? ORDER BY id`
	args := []any{StatusQueued}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queued records: %w", err)
	}
	return scanRecords(rows)
}

// FindByTaskID returns the lowest-id record carrying the job id, or nil.
func (s *Store) FindByTaskID(ctx context.Context, taskID string) (*Record, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM songs WHERE task_id = ? ORDER BY id LIMIT 1`, taskID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by task id: %w", err)
	}
	return rec, nil
}

// FindByTitle returns the lowest-id record whose title matches ignoring case,
// or nil.
func (s *Store) FindByTitle(ctx context.Context, title string) (*Record, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM songs WHERE title = ? COLLATE NOCASE ORDER BY id LIMIT 1`, title)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by title: %w", err)
	}
	return rec, nil
}

// MissingDetails returns records with a job id whose prompt or lyrics are
// still empty.
func (s *Store) MissingDetails(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM songs
         WHERE task_id IS NOT NULL AND task_id != ''
           AND (prompt IS NULL OR prompt = '' OR lyrics IS NULL OR lyrics = '')
         ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list records missing details: %w", err)
	}
	return scanRecords(rows)
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM songs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("catalog stats: %w", err)
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
