package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/facevault/internal/models"
)

// SQLiteStorage implements RecordStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS face_records (
		item_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		display_name TEXT,
		vector_position INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		source_path TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_face_records_tenant ON face_records(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_face_records_created_at ON face_records(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

const selectColumns = `item_id, tenant_id, display_name, vector_position, embedding, source_path, created_at`

const insertRecord = `INSERT INTO face_records (item_id, tenant_id, display_name, vector_position, embedding, source_path, created_at)
	 VALUES (?, ?, ?, ?, ?, ?, ?)`

// CreateRecord inserts a record. CreatedAt is set if zero.
func (s *SQLiteStorage) CreateRecord(ctx context.Context, rec *models.FaceRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, insertRecord,
		rec.ItemID, rec.TenantID, rec.DisplayName, rec.VectorPosition,
		encodeEmbedding(rec.Embedding), rec.SourcePath, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record %s: %w", rec.ItemID, err)
	}
	return nil
}

// GetRecord returns a record by item id.
func (s *SQLiteStorage) GetRecord(ctx context.Context, itemID string) (*models.FaceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM face_records WHERE item_id = ?`, itemID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, itemID)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteByTenant removes every record of tenantID and returns how many were removed.
func (s *SQLiteStorage) DeleteByTenant(ctx context.Context, tenantID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM face_records WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListActive returns all records ordered by created_at, then vector_position, then item_id.
func (s *SQLiteStorage) ListActive(ctx context.Context) ([]*models.FaceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM face_records
		 ORDER BY created_at, vector_position, item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.FaceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// UpdatePositions rewrites vector positions in one transaction.
func (s *SQLiteStorage) UpdatePositions(ctx context.Context, positions map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE face_records SET vector_position = ? WHERE item_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for itemID, pos := range positions {
		if _, err := stmt.ExecContext(ctx, pos, itemID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ReplaceAll deletes every record and inserts recs in one transaction.
func (s *SQLiteStorage) ReplaceAll(ctx context.Context, recs []*models.FaceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM face_records`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertRecord)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range recs {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ItemID, rec.TenantID, rec.DisplayName, rec.VectorPosition,
			encodeEmbedding(rec.Embedding), rec.SourcePath, rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.ItemID, err)
		}
	}
	return tx.Commit()
}

// CountRecords returns the total number of records.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM face_records`).Scan(&count)
	return count, err
}

// CountByTenant returns the number of records per tenant.
func (s *SQLiteStorage) CountByTenant(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, COUNT(*) FROM face_records GROUP BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var tenant string
		var n int64
		if err := rows.Scan(&tenant, &n); err != nil {
			return nil, err
		}
		counts[tenant] = n
	}
	return counts, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.FaceRecord, error) {
	var rec models.FaceRecord
	var displayName, sourcePath sql.NullString
	var blob []byte
	if err := row.Scan(&rec.ItemID, &rec.TenantID, &displayName, &rec.VectorPosition,
		&blob, &sourcePath, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.DisplayName = displayName.String
	rec.SourcePath = sourcePath.String
	emb, err := decodeEmbedding(blob)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ItemID, err)
	}
	rec.Embedding = emb
	return &rec, nil
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
