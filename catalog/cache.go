package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Cache keeps catalog search results in SQLite so repeated queries do not
// hit the network.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time

	getStmt *sql.Stmt
	putStmt *sql.Stmt
}

// NewCache opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewCache(dbPath string, ttl time.Duration) (*Cache, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	c := &Cache{db: db, ttl: ttl, now: time.Now}
	if err := c.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases prepared statements and closes the DB.
func (c *Cache) Close() error {
	if c.getStmt != nil {
		c.getStmt.Close()
	}
	if c.putStmt != nil {
		c.putStmt.Close()
	}
	return c.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL lets a second process read while a search is being stored.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS searches (
            query TEXT PRIMARY KEY,
            total_items INTEGER NOT NULL,
            volumes TEXT NOT NULL,
            fetched_at DATETIME NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_searches_fetched_at ON searches(fetched_at);`,
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, schemaVersion); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (c *Cache) prepareStatements() error {
	var err error
	if c.getStmt, err = c.db.Prepare(`SELECT total_items, volumes, fetched_at FROM searches WHERE query=?`); err != nil {
		return err
	}
	if c.putStmt, err = c.db.Prepare(`INSERT INTO searches(query,total_items,volumes,fetched_at) VALUES(?,?,?,?)
        ON CONFLICT(query) DO UPDATE SET total_items=excluded.total_items, volumes=excluded.volumes, fetched_at=excluded.fetched_at`); err != nil {
		return err
	}
	return nil
}

// normalizeQuery folds case and whitespace so equivalent searches share an
// entry.
func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// Get returns the cached result for query. Entries older than the TTL are
// reported as a miss.
func (c *Cache) Get(query string) (*Result, bool, error) {
	var (
		total   int
		payload string
		fetched time.Time
	)
	err := c.getStmt.QueryRow(normalizeQuery(query)).Scan(&total, &payload, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache: %w", err)
	}
	if c.ttl > 0 && c.now().Sub(fetched) > c.ttl {
		return nil, false, nil
	}

	var volumes []Volume
	if err := json.Unmarshal([]byte(payload), &volumes); err != nil {
		return nil, false, fmt.Errorf("decode cached volumes: %w", err)
	}
	return &Result{Query: query, TotalItems: total, Volumes: volumes, Cached: true}, true, nil
}

// Put stores res under its query, replacing any older entry.
func (c *Cache) Put(res *Result) error {
	payload, err := json.Marshal(res.Volumes)
	if err != nil {
		return fmt.Errorf("encode volumes: %w", err)
	}
	if _, err := c.putStmt.Exec(normalizeQuery(res.Query), res.TotalItems, string(payload), c.now().UTC()); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// Purge deletes entries older than the TTL and returns how many were removed.
func (c *Cache) Purge() (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	res, err := c.db.Exec(`DELETE FROM searches WHERE fetched_at < ?`, c.now().Add(-c.ttl).UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
