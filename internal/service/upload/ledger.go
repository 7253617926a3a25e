package upload

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/models"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/redis"
)

// Ledger records temp files that are on disk so a crashed process does not
// leak them. It never holds file content or summaries.
type Ledger interface {
	Record(ctx context.Context, f *models.TempFile) error
	Forget(ctx context.Context, id string) error
	Expired(ctx context.Context, now time.Time) ([]*models.TempFile, error)
}

// NopLedger records nothing. Used when no ledger backend is configured.
type NopLedger struct{}

func (NopLedger) Record(context.Context, *models.TempFile) error { return nil }
func (NopLedger) Forget(context.Context, string) error           { return nil }
func (NopLedger) Expired(context.Context, time.Time) ([]*models.TempFile, error) {
	return nil, nil
}

// SQLLedger keeps the ledger in the temp_files table.
type SQLLedger struct {
	db *sql.DB
}

// NewSQLLedger expects the temp_files table from storage.Migrate.
func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

// Record inserts one row per temp file.
func (l *SQLLedger) Record(ctx context.Context, f *models.TempFile) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO temp_files (id, file_name, stored_path, mime_type, size, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.FileName, f.StoredPath, f.MimeType, f.Size, f.CreatedAt, f.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("record temp file: %w", err)
	}
	return nil
}

// Forget deletes the row for id. Unknown ids are not an error.
func (l *SQLLedger) Forget(ctx context.Context, id string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM temp_files WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete temp file record: %w", err)
	}
	return nil
}

// Expired lists rows whose expires_at is at or before now.
func (l *SQLLedger) Expired(ctx context.Context, now time.Time) ([]*models.TempFile, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, file_name, stored_path, mime_type, size, created_at, expires_at
		FROM temp_files WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("query expired temp files: %w", err)
	}
	defer rows.Close()

	var files []*models.TempFile
	for rows.Next() {
		var f models.TempFile
		if err := rows.Scan(&f.ID, &f.FileName, &f.StoredPath, &f.MimeType, &f.Size, &f.CreatedAt, &f.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan temp file: %w", err)
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

const (
	redisPendingKey = "pdfsum:uploads:pending"
	redisFilePrefix = "pdfsum:uploads:file:"
)

// RedisLedger keeps the ledger in a sorted set scored by expiry, with one
// hash per file.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger builds a ledger on client.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

// Record writes the file hash and indexes it by expiry.
func (l *RedisLedger) Record(ctx context.Context, f *models.TempFile) error {
	fields := map[string]interface{}{
		"file_name":   f.FileName,
		"stored_path": f.StoredPath,
		"mime_type":   f.MimeType,
		"size":        f.Size,
		"created_at":  f.CreatedAt.UnixNano(),
		"expires_at":  f.ExpiresAt.UnixNano(),
	}
	// the hash outlives the expiry so the cleaner can still read the path
	if err := l.client.HSet(ctx, redisFilePrefix+f.ID, fields, 24*time.Hour); err != nil {
		return fmt.Errorf("record temp file: %w", err)
	}
	if err := l.client.ZAdd(ctx, redisPendingKey, float64(f.ExpiresAt.Unix()), f.ID); err != nil {
		return fmt.Errorf("index temp file: %w", err)
	}
	return nil
}

// Forget removes both the index entry and the hash.
func (l *RedisLedger) Forget(ctx context.Context, id string) error {
	if err := l.client.ZRem(ctx, redisPendingKey, id); err != nil {
		return fmt.Errorf("unindex temp file: %w", err)
	}
	if err := l.client.Del(ctx, redisFilePrefix+id); err != nil {
		return fmt.Errorf("delete temp file record: %w", err)
	}
	return nil
}

// Expired returns indexed files due at now. Index entries whose hash has
// already expired are removed and skipped.
func (l *RedisLedger) Expired(ctx context.Context, now time.Time) ([]*models.TempFile, error) {
	ids, err := l.client.ZRangeByScore(ctx, redisPendingKey, "-inf", strconv.FormatInt(now.Unix(), 10))
	if err != nil {
		return nil, fmt.Errorf("query expired temp files: %w", err)
	}
	files := make([]*models.TempFile, 0, len(ids))
	for _, id := range ids {
		vals, err := l.client.HGetAll(ctx, redisFilePrefix+id)
		if err != nil {
			if err == redis.ErrCacheMiss {
				// hash already gone, drop the dangling index entry
				_ = l.client.ZRem(ctx, redisPendingKey, id)
				continue
			}
			return nil, fmt.Errorf("load temp file %s: %w", id, err)
		}
		size, _ := strconv.ParseInt(vals["size"], 10, 64)
		created, _ := strconv.ParseInt(vals["created_at"], 10, 64)
		expires, _ := strconv.ParseInt(vals["expires_at"], 10, 64)
		files = append(files, &models.TempFile{
			ID:         id,
			FileName:   vals["file_name"],
			StoredPath: vals["stored_path"],
			MimeType:   vals["mime_type"],
			Size:       size,
			CreatedAt:  time.Unix(0, created).UTC(),
			ExpiresAt:  time.Unix(0, expires).UTC(),
		})
	}
	return files, nil
}
