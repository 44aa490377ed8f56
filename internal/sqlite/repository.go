package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blackmichael/tiktok-archiver/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL UNIQUE,
	archive_ref TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS content_records (
	id         TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE RESTRICT,
	author     TEXT NOT NULL,
	text       TEXT NOT NULL,
	source_url TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL DEFAULT 'created',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_content_status ON content_records(status);
CREATE INDEX IF NOT EXISTS idx_content_profile ON content_records(profile_id);

CREATE TABLE IF NOT EXISTS media_records (
	id         TEXT PRIMARY KEY,
	content_id TEXT NOT NULL REFERENCES content_records(id) ON DELETE RESTRICT,
	media_id   TEXT NOT NULL UNIQUE,
	fetch_url  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_media_status ON media_records(status);
CREATE INDEX IF NOT EXISTS idx_media_content ON media_records(content_id);
`

// Repository implements domain.RecordStore backed by SQLite.
type Repository struct {
	db *sql.DB
}

// Open initializes or connects to the database at path and applies the
// schema. The caller should call Close when the repository is no longer
// needed.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// GetOrCreateProfile returns the profile for the given URL, creating it on
// first sight. The insert ignores conflicts so racing creators converge on
// the same row.
func (r *Repository) GetOrCreateProfile(ctx context.Context, url string) (*domain.Profile, error) {
	draft := domain.NewProfile(url)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, url, archive_ref, created_at, updated_at)
		VALUES (?, ?, '', ?, ?)
		ON CONFLICT (url) DO NOTHING`,
		draft.ID, draft.URL, formatTime(draft.CreatedAt), formatTime(draft.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", wrapConflict(err))
	}

	return r.profileBy(ctx, "url", url)
}

// GetProfile returns a profile by id.
func (r *Repository) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	return r.profileBy(ctx, "id", id)
}

func (r *Repository) profileBy(ctx context.Context, column, value string) (*domain.Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, url, archive_ref, created_at, updated_at
		FROM profiles WHERE `+column+` = ?`, value)

	var p domain.Profile
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.URL, &p.ArchiveRef, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// SetProfileArchive records the profile's archive blob reference.
func (r *Repository) SetProfileArchive(ctx context.Context, id, ref string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET archive_ref = ?, updated_at = ? WHERE id = ?`,
		ref, formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("update profile archive: %w", err)
	}
	return nil
}

// InsertContentIgnoreConflicts bulk-inserts content drafts inside one
// transaction, skipping rows whose source URL already exists, and returns the
// rows actually inserted.
func (r *Repository) InsertContentIgnoreConflicts(ctx context.Context, records []*domain.ContentRecord) ([]*domain.ContentRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	inserted := make([]*domain.ContentRecord, 0, len(records))
	for _, rec := range records {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO content_records (id, profile_id, author, text, source_url, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (source_url) DO NOTHING`,
			rec.ID, rec.ProfileID, rec.Author, rec.Text, rec.SourceURL,
			string(rec.Status), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("insert content record: %w", wrapConflict(err))
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, rec)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", wrapConflict(err))
	}
	return inserted, nil
}

// ContentSourceURLs returns the set of all persisted source URLs.
func (r *Repository) ContentSourceURLs(ctx context.Context) (map[string]struct{}, error) {
	return r.keySet(ctx, `SELECT source_url FROM content_records`)
}

// GetContent returns a content record by id.
func (r *Repository) GetContent(ctx context.Context, id string) (*domain.ContentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, profile_id, author, text, source_url, status, created_at, updated_at
		FROM content_records WHERE id = ?`, id)

	rec, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// UpdateContentStatus transitions a record's status. The update is guarded by
// the status machine's allowed predecessors; out-of-order transitions affect
// no rows and are ignored.
func (r *Repository) UpdateContentStatus(ctx context.Context, id string, status domain.ContentStatus) error {
	preds := status.Predecessors()
	if len(preds) == 0 {
		return fmt.Errorf("status %q is not a transition target", status)
	}

	placeholders := strings.Repeat("?,", len(preds))
	placeholders = placeholders[:len(placeholders)-1]

	args := []any{string(status), formatTime(time.Now().UTC()), id}
	for _, p := range preds {
		args = append(args, string(p))
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE content_records SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	return nil
}

// ListContentByStatus returns records holding any of the given statuses.
func (r *Repository) ListContentByStatus(ctx context.Context, statuses ...domain.ContentStatus) ([]*domain.ContentRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, profile_id, author, text, source_url, status, created_at, updated_at
		FROM content_records WHERE status IN (`+placeholders+`)
		ORDER BY created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query content by status: %w", err)
	}
	defer rows.Close()

	return collectContent(rows)
}

// ListContentByProfile returns a profile's content records, newest first.
func (r *Repository) ListContentByProfile(ctx context.Context, profileID string) ([]*domain.ContentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, profile_id, author, text, source_url, status, created_at, updated_at
		FROM content_records WHERE profile_id = ?
		ORDER BY created_at DESC`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("query content by profile: %w", err)
	}
	defer rows.Close()

	return collectContent(rows)
}

// InsertMediaIgnoreConflicts bulk-inserts media drafts inside one
// transaction, skipping rows whose media identifier already exists, and
// returns the rows actually inserted.
func (r *Repository) InsertMediaIgnoreConflicts(ctx context.Context, records []*domain.MediaRecord) ([]*domain.MediaRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	inserted := make([]*domain.MediaRecord, 0, len(records))
	for _, rec := range records {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO media_records (id, content_id, media_id, fetch_url, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (media_id) DO NOTHING`,
			rec.ID, rec.ContentID, rec.MediaID, rec.FetchURL,
			string(rec.Status), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("insert media record: %w", wrapConflict(err))
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, rec)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", wrapConflict(err))
	}
	return inserted, nil
}

// MediaIdentifiers returns the set of all persisted media identifiers.
func (r *Repository) MediaIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	return r.keySet(ctx, `SELECT media_id FROM media_records`)
}

// PendingMediaByProfile returns the pending media records whose content
// record chain resolves to the given profile.
func (r *Repository) PendingMediaByProfile(ctx context.Context, profileID string) ([]*domain.MediaRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.content_id, m.media_id, m.fetch_url, m.status, m.created_at, m.updated_at
		FROM media_records m
		JOIN content_records c ON c.id = m.content_id
		WHERE c.profile_id = ? AND m.status = ?
		ORDER BY m.created_at`,
		profileID, string(domain.MediaPending),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending media: %w", err)
	}
	defer rows.Close()

	var records []*domain.MediaRecord
	for rows.Next() {
		var m domain.MediaRecord
		var status, createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &m.ContentID, &m.MediaID, &m.FetchURL, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan media record: %w", err)
		}
		m.Status = domain.MediaStatus(status)
		m.CreatedAt = parseTime(createdAt)
		m.UpdatedAt = parseTime(updatedAt)
		records = append(records, &m)
	}
	return records, rows.Err()
}

// MarkMediaArchived transitions the given records from pending to archived.
// Rows no longer pending are left untouched.
func (r *Repository) MarkMediaArchived(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := []any{string(domain.MediaArchived), formatTime(time.Now().UTC())}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, string(domain.MediaPending))

	_, err := r.db.ExecContext(ctx, `
		UPDATE media_records SET status = ?, updated_at = ?
		WHERE id IN (`+placeholders+`) AND status = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("mark media archived: %w", err)
	}
	return nil
}

func (r *Repository) keySet(ctx context.Context, query string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query key set: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (*domain.ContentRecord, error) {
	var rec domain.ContentRecord
	var status, createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.ProfileID, &rec.Author, &rec.Text, &rec.SourceURL, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.ContentStatus(status)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func collectContent(rows *sql.Rows) ([]*domain.ContentRecord, error) {
	var records []*domain.ContentRecord
	for rows.Next() {
		rec, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// wrapConflict maps uniqueness violations onto domain.ErrConflict so services
// can recognize a lost insert race without importing driver internals.
func wrapConflict(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
