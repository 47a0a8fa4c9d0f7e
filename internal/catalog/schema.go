package catalog

// schema is applied on every SQLStore open. Uniqueness on filename,
// (category, sequence) and source_id backs the fail-closed insert.
const schema = `
CREATE TABLE IF NOT EXISTS category_counters (
    category TEXT PRIMARY KEY,
    count    INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
    sorting  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS wallpapers (
    id         TEXT PRIMARY KEY,
    filename   TEXT NOT NULL UNIQUE,
    category   TEXT NOT NULL,
    sequence   INTEGER NOT NULL,
    is_free    INTEGER NOT NULL DEFAULT 0,
    downloads  INTEGER NOT NULL DEFAULT 0 CHECK (downloads >= 0),
    created_at INTEGER NOT NULL,
    source_id  TEXT UNIQUE,
    UNIQUE (category, sequence)
);

CREATE INDEX IF NOT EXISTS idx_wallpapers_category   ON wallpapers(category);
CREATE INDEX IF NOT EXISTS idx_wallpapers_created_at ON wallpapers(created_at);
CREATE INDEX IF NOT EXISTS idx_wallpapers_downloads  ON wallpapers(downloads);
`
