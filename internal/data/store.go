package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"stratbench/internal/market"

	_ "modernc.org/sqlite"
)

// Manifest 记录某个 symbol@resolution 文件的统计信息。
type Manifest struct {
	Symbol     string `json:"symbol"`
	Resolution string `json:"resolution"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

// Store 按 (symbol, resolution) 一个 sqlite 文件存放 bar 与已覆盖区间。
// bars 表按时间戳排序即是列式的逻辑布局；covered 表让覆盖信息在
// 重启后仍然有效。
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("data root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(symbol, resolution string) (*sql.DB, string, error) {
	if symbol == "" || resolution == "" {
		return nil, "", fmt.Errorf("symbol/resolution 不能为空")
	}
	key := strings.ToUpper(symbol) + "@" + strings.ToLower(resolution)
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok && db != nil {
		return db, s.dbPath(symbol, resolution), nil
	}
	path := s.dbPath(symbol, resolution)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, symbol, resolution); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[key] = db
	return db, path, nil
}

func (s *Store) dbPath(symbol, resolution string) string {
	dir := filepath.Join(s.root, strings.ToUpper(symbol))
	return filepath.Join(dir, strings.ToLower(resolution)+".db")
}

func ensureSchema(db *sql.DB, symbol, resolution string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			ts     INTEGER PRIMARY KEY,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume REAL NOT NULL,
			inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000)
		);`,
		`CREATE TABLE IF NOT EXISTS covered (
			start INTEGER NOT NULL,
			end   INTEGER NOT NULL,
			PRIMARY KEY (start, end)
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			symbol TEXT NOT NULL,
			resolution TEXT NOT NULL,
			min_time INTEGER,
			max_time INTEGER,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
		`INSERT INTO manifest (id, symbol, resolution) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET symbol=excluded.symbol, resolution=excluded.resolution;`,
	}
	for i, stmt := range stmts {
		var err error
		if i == len(stmts)-1 {
			_, err = db.Exec(stmt, strings.ToUpper(symbol), strings.ToLower(resolution))
		} else {
			_, err = db.Exec(stmt)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// InsertBars 批量写入（重复时间戳被最新一次拉取覆盖）。
func (s *Store) InsertBars(ctx context.Context, symbol, resolution string, bars []market.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	db, _, err := s.db(symbol, resolution)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if err := s.refreshManifest(ctx, db); err != nil {
		return count, err
	}
	return count, nil
}

// RangeBars 返回 [start,end]（闭区间）内的 bar，按时间戳升序。
func (s *Store) RangeBars(ctx context.Context, symbol, resolution string, start, end int64) ([]market.Bar, error) {
	db, _, err := s.db(symbol, resolution)
	if err != nil {
		return nil, err
	}
	if end < start {
		start, end = end, start
	}
	rows, err := db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE ts BETWEEN ? AND ?
		ORDER BY ts ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sym := strings.ToUpper(symbol)
	var list []market.Bar
	for rows.Next() {
		b := market.Bar{Symbol: sym}
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// CoveredSpans 读取已覆盖区间（按 start 升序）。
func (s *Store) CoveredSpans(ctx context.Context, symbol, resolution string) ([]Span, error) {
	db, _, err := s.db(symbol, resolution)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT start, end FROM covered ORDER BY start ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Span
	for rows.Next() {
		var sp Span
		if err := rows.Scan(&sp.Start, &sp.End); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// ReplaceSpans 用合并后的区间集合整体替换 covered 表。
// 单个事务内完成，崩溃不会留下半套区间。
func (s *Store) ReplaceSpans(ctx context.Context, symbol, resolution string, spans []Span) error {
	db, _, err := s.db(symbol, resolution)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM covered`); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, sp := range spans {
		if _, err := tx.ExecContext(ctx, `INSERT INTO covered (start, end) VALUES (?, ?)`, sp.Start, sp.End); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Manifest 读取统计信息。
func (s *Store) Manifest(ctx context.Context, symbol, resolution string) (Manifest, error) {
	db, path, err := s.db(symbol, resolution)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT symbol,resolution,min_time,max_time,rows,last_sync_at FROM manifest WHERE id=1`)
	var m Manifest
	var minTime, maxTime, lastSync sql.NullInt64
	if err := row.Scan(&m.Symbol, &m.Resolution, &minTime, &maxTime, &m.Rows, &lastSync); err != nil {
		return Manifest{}, err
	}
	m.MinTime = minTime.Int64
	m.MaxTime = maxTime.Int64
	m.LastSyncAt = lastSync.Int64
	m.Path = path
	return m, nil
}

func (s *Store) refreshManifest(ctx context.Context, db *sql.DB) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_time = (SELECT COALESCE(MIN(ts), 0) FROM bars),
		    max_time = (SELECT COALESCE(MAX(ts), 0) FROM bars),
		    rows = (SELECT COUNT(1) FROM bars),
		    last_sync_at = ?
		WHERE id = 1`, now)
	return err
}
