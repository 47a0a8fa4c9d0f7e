// Package catalog persists the per-category sequence counters and the
// wallpaper catalog rows.
//
// Counter advancement is a single atomic increment-and-return operation on
// every backend, so concurrent finalizations for one category can never
// observe the same sequence. Catalog inserts fail closed on a duplicate
// filename, (category, sequence) pair or provider source id.
//
// Two backends are provided: DynamoStore (single-table DynamoDB, used by the
// Lambda deployment) and SQLStore (SQLite via modernc.org/sqlite, used for
// local runs and tests). CachedStore decorates either with a Redis read cache.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested wallpaper does not exist.
	ErrNotFound = errors.New("catalog: not found")

	// ErrDuplicate is returned when an insert collides with an existing
	// filename, sequence or source id.
	ErrDuplicate = errors.New("catalog: duplicate wallpaper")
)

// Default and maximum result sizes for the list endpoints.
const (
	DefaultTopLimit    = 10
	DefaultLatestLimit = 3
	MaxListLimit       = 50
)

// CategoryCounter is the last sequence number assigned within a category.
// Count only ever increases; Sorting is display metadata and never affects
// sequencing.
type CategoryCounter struct {
	Category string `json:"category" dynamodbav:"category"`
	Count    int    `json:"count" dynamodbav:"count"`
	Sorting  int    `json:"sorting" dynamodbav:"sorting"`
}

// Wallpaper is one catalog row. Filename is "{category}_{sequence:05d}" and
// doubles as the stem of both stored blob keys.
type Wallpaper struct {
	ID        string    `json:"id" dynamodbav:"id"`
	Filename  string    `json:"filename" dynamodbav:"filename"`
	Category  string    `json:"category" dynamodbav:"category"`
	Sequence  int       `json:"sequence" dynamodbav:"sequence"`
	IsFree    bool      `json:"is_free" dynamodbav:"isFree"`
	Downloads int       `json:"downloads" dynamodbav:"downloads"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"createdAt"`

	// SourceID is the provider prediction id that produced this row, when
	// known. It is unique so a replayed callback can be recognised.
	SourceID string `json:"-" dynamodbav:"sourceId,omitempty"`
}

// Store is the persistence interface for counters and catalog rows.
// Every method is safe for concurrent use.
type Store interface {
	// AdvanceCounter atomically increments the category's counter, creating
	// it at 1 on first use, and returns the new value.
	AdvanceCounter(ctx context.Context, category string) (int, error)

	// InsertWallpaper inserts a new row. Returns ErrDuplicate on any
	// uniqueness violation; never overwrites.
	InsertWallpaper(ctx context.Context, w *Wallpaper) error

	// WallpaperBySource returns the row created from the given provider
	// prediction id, or ErrNotFound.
	WallpaperBySource(ctx context.Context, sourceID string) (*Wallpaper, error)

	// IncrementDownloads atomically adds one to the row's download count and
	// returns the new value, or ErrNotFound if no row has that filename.
	IncrementDownloads(ctx context.Context, filename string) (int, error)

	// TopDownloads returns up to limit rows ordered by downloads descending.
	TopDownloads(ctx context.Context, limit int) ([]Wallpaper, error)

	// Latest returns up to limit rows ordered by creation time descending.
	Latest(ctx context.Context, limit int) ([]Wallpaper, error)

	// ListCounters returns every category counter.
	ListCounters(ctx context.Context) ([]CategoryCounter, error)

	Close() error
}

// Filename derives the catalog filename for a category and sequence.
// Sequences wider than five digits are rendered in full.
func Filename(category string, sequence int) string {
	return fmt.Sprintf("%s_%05d", category, sequence)
}

// ClampLimit bounds a caller-supplied list limit to [1, MaxListLimit],
// substituting def for non-positive values.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
