package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mohamed-oubenma/smarTube/internal/cache"
	"github.com/mohamed-oubenma/smarTube/internal/keypool"
	"github.com/mohamed-oubenma/smarTube/internal/transcript"
)

const activeKeySettingName = "active_key_id"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore backs both the persisted transcript-cache tier and the
// credential pool.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// --- cache.Store ---

func (s *SQLiteStore) GetEntry(ctx context.Context, cacheKey string) (cache.Entry, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT video_id, source_url, payload_json, cached_at, last_accessed_at
		 FROM transcript_cache
		 WHERE cache_key = ?`,
		cacheKey,
	)

	var entry cache.Entry
	var payloadJSON string
	if err := row.Scan(&entry.VideoID, &entry.SourceURL, &payloadJSON, &entry.CachedAt, &entry.LastAccessedAt); err != nil {
		if err == sql.ErrNoRows {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, err
	}

	var data transcript.Data
	if err := json.Unmarshal([]byte(payloadJSON), &data); err != nil {
		return cache.Entry{}, false, fmt.Errorf("decode cached transcript: %w", err)
	}
	entry.TranscriptData = &data
	return entry, true, nil
}

func (s *SQLiteStore) PutEntry(ctx context.Context, cacheKey string, entry cache.Entry) error {
	payloadJSON, err := json.Marshal(entry.TranscriptData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO transcript_cache (
			cache_key, video_id, source_url, payload_json, cached_at, last_accessed_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			video_id=excluded.video_id,
			source_url=excluded.source_url,
			payload_json=excluded.payload_json,
			cached_at=excluded.cached_at,
			last_accessed_at=excluded.last_accessed_at`,
		cacheKey,
		entry.VideoID,
		entry.SourceURL,
		string(payloadJSON),
		entry.CachedAt.UTC(),
		entry.LastAccessedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, cacheKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcript_cache WHERE cache_key = ?`, cacheKey)
	return err
}

// PruneEntries drops entries cached at or before cutoff, then everything
// beyond capacity in least-recently-accessed order.
func (s *SQLiteStore) PruneEntries(ctx context.Context, cutoff time.Time, capacity int) (int64, error) {
	var removed int64

	res, err := s.db.ExecContext(ctx, `DELETE FROM transcript_cache WHERE cached_at <= ?`, cutoff.UTC())
	if err != nil {
		return removed, err
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	if capacity > 0 {
		res, err = s.db.ExecContext(
			ctx,
			`DELETE FROM transcript_cache
			 WHERE cache_key NOT IN (
				SELECT cache_key FROM transcript_cache
				ORDER BY last_accessed_at DESC
				LIMIT ?
			 )`,
			capacity,
		)
		if err != nil {
			return removed, err
		}
		if n, err := res.RowsAffected(); err == nil {
			removed += n
		}
	}
	return removed, nil
}

// --- keypool.Store ---

func (s *SQLiteStore) LoadKeys(ctx context.Context) ([]keypool.APIKey, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, secret, is_rate_limited
		 FROM api_keys
		 ORDER BY position ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]keypool.APIKey, 0)
	for rows.Next() {
		var key keypool.APIKey
		var rateLimited int
		if err := rows.Scan(&key.ID, &key.Name, &key.Secret, &rateLimited); err != nil {
			return nil, err
		}
		key.IsRateLimited = rateLimited == 1
		ret = append(ret, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// SaveKeys replaces the whole pool, preserving the given order.
func (s *SQLiteStore) SaveKeys(ctx context.Context, keys []keypool.APIKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM api_keys`); err != nil {
		return err
	}
	for position, key := range keys {
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO api_keys (id, name, secret, is_rate_limited, position)
			 VALUES (?, ?, ?, ?, ?)`,
			key.ID,
			key.Name,
			key.Secret,
			boolToInt(key.IsRateLimited),
			position,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ActiveKeyID(ctx context.Context) (string, error) {
	value, _, err := s.Setting(ctx, activeKeySettingName)
	return value, err
}

func (s *SQLiteStore) SetActiveKeyID(ctx context.Context, id string) error {
	return s.SetSetting(ctx, activeKeySettingName, id)
}

// --- settings ---

func (s *SQLiteStore) Setting(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key,
		value,
	)
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
