package services

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// JournalEntry 一次操作的记录
type JournalEntry struct {
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	Caller    string    `json:"caller,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal 基于 SQLite 的操作日志
type Journal struct {
	db *sql.DB
}

// OpenJournal 打开（必要时创建）SQLite 日志库
func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS operations (
  id TEXT PRIMARY KEY,
  op TEXT NOT NULL,
  caller TEXT,
  amount TEXT,
  result TEXT,
  error TEXT,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_operations_created_at ON operations(created_at);`,
	}
	for _, q := range stmts {
		if _, err := j.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate exec failed: %w", err)
		}
	}
	return nil
}

// Record 写入一条记录，ID 与时间为空时自动补齐。
func (j *Journal) Record(ctx context.Context, e *JournalEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO operations (id, op, caller, amount, result, error, created_at)
VALUES (?,?,?,?,?,?,?)
`, e.ID, e.Op, nullable(e.Caller), nullable(e.Amount), nullable(e.Result), nullable(e.Error),
		e.CreatedAt.Format(time.RFC3339Nano))
	return err
}

// List 最近 limit 条记录，按时间倒序
func (j *Journal) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, op, caller, amount, result, error, created_at
FROM operations
ORDER BY created_at DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]JournalEntry, 0, limit)
	for rows.Next() {
		var (
			e                              JournalEntry
			caller, amount, result, errStr sql.NullString
			createdAt                      string
		)
		if err := rows.Scan(&e.ID, &e.Op, &caller, &amount, &result, &errStr, &createdAt); err != nil {
			return nil, err
		}
		e.Caller, e.Amount, e.Result, e.Error = caller.String, amount.String, result.String, errStr.String
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
