package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports an update against a record id that does not exist.
var ErrNotFound = errors.New("catalog record not found")

// SetStatus moves a record to status and replaces its notes.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status, notes string) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("set status: unknown status %q", status)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE songs SET status = ?, notes = ?, updated_at = ? WHERE id = ?`,
		status, nullableString(notes), nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return requireAffected(res.RowsAffected())
}

// SaveGeneration writes service-derived fields, the status and the notes of
// a record. Empty generation fields keep the stored values.
func (s *Store) SaveGeneration(ctx context.Context, id int64, status Status, gen Generation, notes string) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("save generation: unknown status %q", status)
	}
	args := append([]any{status}, generationArgs(gen)...)
	args = append(args, nullableString(notes), nowString(), id)
	res, err := s.execWithRetry(ctx,
		`UPDATE songs
         SET status = ?,
             task_id = COALESCE(?, task_id),
             conversion_id_1 = COALESCE(?, conversion_id_1),
             conversion_id_2 = COALESCE(?, conversion_id_2),
             audio_url_1 = COALESCE(?, audio_url_1),
             audio_url_2 = COALESCE(?, audio_url_2),
             file_path_1 = COALESCE(?, file_path_1),
             file_path_2 = COALESCE(?, file_path_2),
             file_size_1 = COALESCE(?, file_size_1),
             file_size_2 = COALESCE(?, file_size_2),
             file_format = COALESCE(?, file_format),
             music_style = COALESCE(?, music_style),
             voice_used = COALESCE(?, voice_used),
             duration_seconds = COALESCE(?, duration_seconds),
             service_created_at = COALESCE(?, service_created_at),
             lyrics_timestamped = COALESCE(?, lyrics_timestamped),
             notes = ?,
             updated_at = ?
         WHERE id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("save generation: %w", err)
	}
	return requireAffected(res.RowsAffected())
}

// InsertImported creates a record for a history item that had no catalog
// match.
func (s *Store) InsertImported(ctx context.Context, rec ImportedRecord, status Status, gen Generation, notes string) (*Record, error) {
	rec.Title = strings.TrimSpace(rec.Title)
	if err := paramsValidator.Struct(rec); err != nil {
		return nil, fmt.Errorf("invalid imported record: %w", err)
	}
	if _, ok := statusSet[status]; !ok {
		return nil, fmt.Errorf("insert imported: unknown status %q", status)
	}

	timestamp := nowString()
	args := []any{rec.Title, nullableString(rec.Prompt), nullableString(rec.Lyrics), status}
	args = append(args, generationArgs(gen)...)
	args = append(args, nullableString(notes), timestamp, timestamp)
	res, err := s.execWithRetry(ctx,
		`INSERT INTO songs (
            title, prompt, lyrics, status,
            task_id, conversion_id_1, conversion_id_2, audio_url_1, audio_url_2,
            file_path_1, file_path_2, file_size_1, file_size_2, file_format,
            music_style, voice_used, duration_seconds, service_created_at, lyrics_timestamped,
            notes, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("insert imported: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// FillDetails sets prompt and lyrics on a record only where they are empty.
// It reports whether anything changed.
func (s *Store) FillDetails(ctx context.Context, id int64, prompt, lyrics string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE songs
         SET prompt = CASE WHEN (prompt IS NULL OR prompt = '') AND ? IS NOT NULL THEN ? ELSE prompt END,
             lyrics = CASE WHEN (lyrics IS NULL OR lyrics = '') AND ? IS NOT NULL THEN ? ELSE lyrics END,
             updated_at = ?
         WHERE id = ?
           AND (((prompt IS NULL OR prompt = '') AND ? IS NOT NULL)
             OR ((lyrics IS NULL OR lyrics = '') AND ? IS NOT NULL))`,
		nullableString(prompt), nullableString(prompt),
		nullableString(lyrics), nullableString(lyrics),
		nowString(), id,
		nullableString(prompt), nullableString(lyrics),
	)
	if err != nil {
		return false, fmt.Errorf("fill details: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RequeueErrored moves errored records back to queued. With no ids every
// errored record is requeued.
func (s *Store) RequeueErrored(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE songs SET status = ?, notes = NULL, updated_at = ? WHERE status = ?`
	args := []any{StatusQueued, nowString(), StatusError}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue errored records: %w", err)
	}
	return res.RowsAffected()
}

// ResetInFlight marks records left in a non-terminal lifecycle state as
// errored. Those jobs may already have been accepted by the service, so they
// are not silently resubmitted.
func (s *Store) ResetInFlight(ctx context.Context) (int64, error) {
	args := []any{StatusError, InterruptedNote, nowString()}
	args = append(args, statusArgs(inFlightStatuses)...)
	res, err := s.execWithRetry(ctx,
		`UPDATE songs SET status = ?, notes = ?, updated_at = ?
         WHERE status IN (`+makePlaceholders(len(inFlightStatuses))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight records: %w", err)
	}
	return res.RowsAffected()
}

func generationArgs(gen Generation) []any {
	return []any{
		nullableString(strings.TrimSpace(gen.TaskID)),
		nullableString(gen.ConversionIDs[0]),
		nullableString(gen.ConversionIDs[1]),
		nullableString(gen.AudioURLs[0]),
		nullableString(gen.AudioURLs[1]),
		nullableString(gen.FilePaths[0]),
		nullableString(gen.FilePaths[1]),
		nullableInt(gen.FileSizes[0]),
		nullableInt(gen.FileSizes[1]),
		nullableString(gen.FileFormat),
		nullableString(gen.MusicStyle),
		nullableString(gen.VoiceUsed),
		nullableFloat(gen.DurationSeconds),
		nullableString(gen.ServiceCreatedAt),
		nullableString(gen.LyricsTimestamped),
	}
}

func requireAffected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
