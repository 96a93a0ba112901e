package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"samplemind/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// StoredRecord is a persisted feature record in its serialized form.
type StoredRecord struct {
	Key         string
	ContentHash string
	Depth       string
	Data        []byte
	CreatedAt   time.Time
}

// StoredAnalysis is a persisted AI response.
type StoredAnalysis struct {
	Key       string
	Data      []byte
	CostSaved float64
	CachedAt  time.Time
	ExpiresAt time.Time
}

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &SQLiteClient{db: db}, nil
}

func createTables(db *sql.DB) error {
	createRecordsTable := `
    CREATE TABLE IF NOT EXISTS feature_records (
        key TEXT PRIMARY KEY,
        content_hash TEXT NOT NULL,
        depth TEXT NOT NULL,
        record TEXT NOT NULL,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_feature_records_hash ON feature_records(content_hash);
    `

	createAnalysisTable := `
    CREATE TABLE IF NOT EXISTS analysis_cache (
        key TEXT PRIMARY KEY,
        result TEXT NOT NULL,
        cost_saved REAL NOT NULL DEFAULT 0,
        cached_at DATETIME NOT NULL,
        expires_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_analysis_cache_expiry ON analysis_cache(expires_at);
    `

	if _, err := db.Exec(createRecordsTable); err != nil {
		return fmt.Errorf("error creating feature_records table: %w", err)
	}
	if _, err := db.Exec(createAnalysisTable); err != nil {
		return fmt.Errorf("error creating analysis_cache table: %w", err)
	}
	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// StoreRecord inserts a feature record unless one already exists under key.
// It reports whether the row was written.
func (db *SQLiteClient) StoreRecord(ctx context.Context, rec StoredRecord) (bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	res, err := db.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO feature_records (key, content_hash, depth, record, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.Key, rec.ContentHash, rec.Depth, string(rec.Data), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("error storing feature record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error storing feature record: %w", err)
	}
	return n == 1, nil
}

// GetRecord returns the record stored under key.
func (db *SQLiteClient) GetRecord(ctx context.Context, key string) (StoredRecord, bool, error) {
	row := db.db.QueryRowContext(ctx,
		"SELECT key, content_hash, depth, record, created_at FROM feature_records WHERE key = ?", key)

	var rec StoredRecord
	var data string
	if err := row.Scan(&rec.Key, &rec.ContentHash, &rec.Depth, &data, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredRecord{}, false, nil
		}
		return StoredRecord{}, false, fmt.Errorf("failed to retrieve feature record: %w", err)
	}
	rec.Data = []byte(data)
	return rec, true, nil
}

// RecordsByHash lists every depth stored for one audio content hash.
func (db *SQLiteClient) RecordsByHash(ctx context.Context, contentHash string) ([]StoredRecord, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT key, content_hash, depth, record, created_at FROM feature_records WHERE content_hash = ? ORDER BY created_at",
		contentHash)
	if err != nil {
		return nil, fmt.Errorf("error querying feature records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var rec StoredRecord
		var data string
		if err := rows.Scan(&rec.Key, &rec.ContentHash, &rec.Depth, &data, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning feature record: %w", err)
		}
		rec.Data = []byte(data)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (db *SQLiteClient) TotalRecords(ctx context.Context) (int, error) {
	var count int
	if err := db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feature_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting feature records: %w", err)
	}
	return count, nil
}

// DeleteRecords empties the feature_records table.
func (db *SQLiteClient) DeleteRecords(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, "DELETE FROM feature_records"); err != nil {
		return fmt.Errorf("failed to delete feature records: %w", err)
	}
	return nil
}

// PutAnalysis upserts a cached AI response.
func (db *SQLiteClient) PutAnalysis(ctx context.Context, a StoredAnalysis) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO analysis_cache (key, result, cost_saved, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, a.Key, string(a.Data), a.CostSaved, a.CachedAt.UTC(), a.ExpiresAt.UTC()); err != nil {
		tx.Rollback()
		return fmt.Errorf("error executing statement: %w", err)
	}
	return tx.Commit()
}

// GetAnalysis returns a live cached response; expired rows are removed.
func (db *SQLiteClient) GetAnalysis(ctx context.Context, key string, now time.Time) (StoredAnalysis, bool, error) {
	row := db.db.QueryRowContext(ctx,
		"SELECT key, result, cost_saved, cached_at, expires_at FROM analysis_cache WHERE key = ?", key)

	var a StoredAnalysis
	var data string
	if err := row.Scan(&a.Key, &data, &a.CostSaved, &a.CachedAt, &a.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredAnalysis{}, false, nil
		}
		return StoredAnalysis{}, false, fmt.Errorf("failed to retrieve cached analysis: %w", err)
	}
	if !now.Before(a.ExpiresAt) {
		if _, err := db.db.ExecContext(ctx, "DELETE FROM analysis_cache WHERE key = ?", key); err != nil {
			return StoredAnalysis{}, false, fmt.Errorf("failed to expire cached analysis: %w", err)
		}
		return StoredAnalysis{}, false, nil
	}
	a.Data = []byte(data)
	return a, true, nil
}

// PurgeAnalyses drops expired responses and returns how many were removed.
func (db *SQLiteClient) PurgeAnalyses(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.db.ExecContext(ctx, "DELETE FROM analysis_cache WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cached analyses: %w", err)
	}
	return res.RowsAffected()
}

// ClearAnalyses empties the analysis cache.
func (db *SQLiteClient) ClearAnalyses(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, "DELETE FROM analysis_cache"); err != nil {
		return fmt.Errorf("failed to clear analysis cache: %w", err)
	}
	return nil
}
