package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLStore implements Store on SQLite through database/sql.
type SQLStore struct {
	db *sql.DB
}

// Compile-time interface check.
var _ Store = (*SQLStore)(nil)

// OpenSQLStore opens (creating if needed) the SQLite database at dsn and
// applies the schema. dsn may be a plain path or a "file:" URI.
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases coherent across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Debug().Str("dsn", dsn).Msg("SQLite catalog ready")
	return &SQLStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// AdvanceCounter performs the increment as one upsert statement; the
// returned count is the value this call wrote.
func (s *SQLStore) AdvanceCounter(ctx context.Context, category string) (int, error) {
	const q = `
		INSERT INTO category_counters (category, count) VALUES (?, 1)
		ON CONFLICT(category) DO UPDATE SET count = count + 1
		RETURNING count`

	var next int
	if err := s.db.QueryRowContext(ctx, q, category).Scan(&next); err != nil {
		return 0, fmt.Errorf("advance counter category=%s: %w", category, err)
	}
	log.Debug().Str("category", category).Int("count", next).Msg("Counter advanced")
	return next, nil
}

func (s *SQLStore) InsertWallpaper(ctx context.Context, w *Wallpaper) error {
	const q = `
		INSERT INTO wallpapers (id, filename, category, sequence, is_free, downloads, created_at, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var source sql.NullString
	if w.SourceID != "" {
		source = sql.NullString{String: w.SourceID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, q,
		w.ID, w.Filename, w.Category, w.Sequence, boolToInt(w.IsFree), w.Downloads,
		w.CreatedAt.UTC().UnixNano(), source)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert %s: %w", w.Filename, ErrDuplicate)
		}
		return fmt.Errorf("insert %s: %w", w.Filename, err)
	}
	return nil
}

func (s *SQLStore) WallpaperBySource(ctx context.Context, sourceID string) (*Wallpaper, error) {
	row := s.db.QueryRowContext(ctx, selectWallpaper+` WHERE source_id = ?`, sourceID)
	w, err := scanWallpaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup source %s: %w", sourceID, err)
	}
	return w, nil
}

func (s *SQLStore) IncrementDownloads(ctx context.Context, filename string) (int, error) {
	const q = `UPDATE wallpapers SET downloads = downloads + 1 WHERE filename = ? RETURNING downloads`

	var n int
	err := s.db.QueryRowContext(ctx, q, filename).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment downloads %s: %w", filename, err)
	}
	return n, nil
}

func (s *SQLStore) TopDownloads(ctx context.Context, limit int) ([]Wallpaper, error) {
	limit = ClampLimit(limit, DefaultTopLimit)
	return s.list(ctx, selectWallpaper+` ORDER BY downloads DESC, created_at DESC LIMIT ?`, limit)
}

func (s *SQLStore) Latest(ctx context.Context, limit int) ([]Wallpaper, error) {
	limit = ClampLimit(limit, DefaultLatestLimit)
	return s.list(ctx, selectWallpaper+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

func (s *SQLStore) ListCounters(ctx context.Context) ([]CategoryCounter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, count, sorting FROM category_counters ORDER BY sorting, category`)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	out := []CategoryCounter{}
	for rows.Next() {
		var c CategoryCounter
		if err := rows.Scan(&c.Category, &c.Count, &c.Sorting); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Internal helpers ---

const selectWallpaper = `SELECT id, filename, category, sequence, is_free, downloads, created_at, source_id FROM wallpapers`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWallpaper(r rowScanner) (*Wallpaper, error) {
	var (
		w       Wallpaper
		isFree  int
		created int64
		source  sql.NullString
	)
	if err := r.Scan(&w.ID, &w.Filename, &w.Category, &w.Sequence, &isFree, &w.Downloads, &created, &source); err != nil {
		return nil, err
	}
	w.IsFree = isFree != 0
	w.CreatedAt = time.Unix(0, created).UTC()
	w.SourceID = source.String
	return &w, nil
}

func (s *SQLStore) list(ctx context.Context, q string, args ...interface{}) ([]Wallpaper, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list wallpapers: %w", err)
	}
	defer rows.Close()

	out := []Wallpaper{}
	for rows.Next() {
		w, err := scanWallpaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallpaper: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
