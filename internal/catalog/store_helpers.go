package catalog

import (
	"database/sql"
	"errors"
	"time"
)

const recordColumns = "id, title, genre_label, prompt, lyrics, status, task_id, conversion_id_1, conversion_id_2, audio_url_1, audio_url_2, file_path_1, file_path_2, file_size_1, file_size_2, file_format, music_style, voice_used, duration_seconds, service_created_at, lyrics_timestamped, notes, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id                int64
		title             string
		genreLabel        sql.NullString
		prompt            sql.NullString
		lyrics            sql.NullString
		statusStr         string
		taskID            sql.NullString
		conversionID1     sql.NullString
		conversionID2     sql.NullString
		audioURL1         sql.NullString
		audioURL2         sql.NullString
		filePath1         sql.NullString
		filePath2         sql.NullString
		fileSize1         sql.NullInt64
		fileSize2         sql.NullInt64
		fileFormat        sql.NullString
		musicStyle        sql.NullString
		voiceUsed         sql.NullString
		durationSeconds   sql.NullFloat64
		serviceCreatedAt  sql.NullString
		lyricsTimestamped sql.NullString
		notes             sql.NullString
		createdRaw        sql.NullString
		updatedRaw        sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&genreLabel,
		&prompt,
		&lyrics,
		&statusStr,
		&taskID,
		&conversionID1,
		&conversionID2,
		&audioURL1,
		&audioURL2,
		&filePath1,
		&filePath2,
		&fileSize1,
		&fileSize2,
		&fileFormat,
		&musicStyle,
		&voiceUsed,
		&durationSeconds,
		&serviceCreatedAt,
		&lyricsTimestamped,
		&notes,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:                id,
		Title:             title,
		GenreLabel:        genreLabel.String,
		Prompt:            prompt.String,
		Lyrics:            lyrics.String,
		Status:            Status(statusStr),
		TaskID:            taskID.String,
		ConversionID1:     conversionID1.String,
		ConversionID2:     conversionID2.String,
		AudioURL1:         audioURL1.String,
		AudioURL2:         audioURL2.String,
		FilePath1:         filePath1.String,
		FilePath2:         filePath2.String,
		FileSize1:         fileSize1.Int64,
		FileSize2:         fileSize2.Int64,
		FileFormat:        fileFormat.String,
		MusicStyle:        musicStyle.String,
		VoiceUsed:         voiceUsed.String,
		DurationSeconds:   durationSeconds.Float64,
		ServiceCreatedAt:  serviceCreatedAt.String,
		LyricsTimestamped: lyricsTimestamped.String,
		Notes:             notes.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	defer rows.Close()
	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int64) any {
	if value <= 0 {
		return nil
	}
	return value
}

func nullableFloat(value float64) any {
	if value <= 0 {
		return nil
	}
	return value
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
