package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidpredict/internal/prediction"
	"vidpredict/internal/session"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的本地持久化实现
// SQLiteStore implements Store using SQLite with WAL mode
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// PRAGMA 按连接生效 / PRAGMAs are per-connection
	db.SetMaxOpenConns(1)

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=FULL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath, now: time.Now}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := os.Chmod(dbPath, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = db.Close()
		return nil, fmt.Errorf("chmod db: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session (
		slot       INTEGER PRIMARY KEY CHECK (slot = 1),
		user_id    TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		name       TEXT NOT NULL DEFAULT '',
		token      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS prediction_pages (
		user_id      TEXT NOT NULL,
		page         INTEGER NOT NULL,
		next_page    INTEGER NOT NULL,
		total        INTEGER NOT NULL DEFAULT 0,
		fetched_at   TEXT NOT NULL,
		PRIMARY KEY(user_id, page)
	);

	CREATE TABLE IF NOT EXISTS predictions (
		user_id    TEXT NOT NULL,
		page       INTEGER NOT NULL,
		seq        INTEGER NOT NULL,
		id         TEXT NOT NULL,
		text       TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY(user_id, page, seq),
		FOREIGN KEY(user_id, page) REFERENCES prediction_pages(user_id, page) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_predictions_user ON predictions(user_id, page, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// --- Session Operations ---

// Sessions 返回会话持久化槽位 / Sessions returns the session.Backend view of the store
func (s *SQLiteStore) Sessions() session.Backend {
	return sessionSlot{s}
}

type sessionSlot struct {
	s *SQLiteStore
}

func (b sessionSlot) Load() (session.Session, bool, error) {
	row := b.s.db.QueryRow(`SELECT user_id, email, name, token FROM session WHERE slot = 1`)
	var sess session.Session
	if err := row.Scan(&sess.ID, &sess.Email, &sess.Name, &sess.Token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, false, nil
		}
		return session.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	if strings.TrimSpace(sess.Token) == "" {
		return session.Session{}, false, nil
	}
	return sess, true, nil
}

func (b sessionSlot) Save(sess session.Session) error {
	_, err := b.s.db.Exec(`
		INSERT INTO session (slot, user_id, email, name, token, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			user_id=excluded.user_id, email=excluded.email, name=excluded.name,
			token=excluded.token, updated_at=excluded.updated_at`,
		sess.ID, sess.Email, sess.Name, sess.Token, b.s.nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (b sessionSlot) Clear() error {
	if _, err := b.s.db.Exec(`DELETE FROM session WHERE slot = 1`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// --- Prediction Page Cache ---

// SavePage 替换某用户某一页的缓存 / SavePage replaces the cached copy of one history page
func (s *SQLiteStore) SavePage(userID string, page prediction.Page) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is empty")
	}
	if page.CurrentPage <= 0 {
		return fmt.Errorf("invalid page number %d", page.CurrentPage)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// 清除旧页 / Clear the old copy
	if _, err := tx.Exec("DELETE FROM predictions WHERE user_id=? AND page=?", userID, page.CurrentPage); err != nil {
		return fmt.Errorf("delete old predictions: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM prediction_pages WHERE user_id=? AND page=?", userID, page.CurrentPage); err != nil {
		return fmt.Errorf("delete old page: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO prediction_pages (user_id, page, next_page, total, fetched_at)
		VALUES (?, ?, ?, ?, ?)`,
		userID, page.CurrentPage, page.NextPage, page.Total, s.nowUTC()); err != nil {
		return fmt.Errorf("insert page: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO predictions (user_id, page, seq, id, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range page.Items {
		createdAt := ""
		if !item.CreatedAt.IsZero() {
			createdAt = item.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.Exec(userID, page.CurrentPage, i, item.ID, item.Text, createdAt); err != nil {
			return fmt.Errorf("insert prediction %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// CachedHistory 返回未过期的缓存记录（按页、页内顺序）
// CachedHistory returns cached predictions fetched within ttl, in page order.
// A ttl <= 0 disables expiry.
func (s *SQLiteStore) CachedHistory(userID string, ttl time.Duration) ([]prediction.Prediction, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is empty")
	}
	cutoff := ""
	if ttl > 0 {
		cutoff = s.now().UTC().Add(-ttl).Format(sortableTime)
	}
	rows, err := s.db.Query(`
		SELECT p.id, p.text, p.created_at
		FROM predictions p
		JOIN prediction_pages g ON g.user_id = p.user_id AND g.page = p.page
		WHERE p.user_id = ? AND (? = '' OR g.fetched_at >= ?)
		ORDER BY p.page, p.seq`, userID, cutoff, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query cached predictions: %w", err)
	}
	defer rows.Close()

	var items []prediction.Prediction
	seen := map[string]struct{}{}
	for rows.Next() {
		var item prediction.Prediction
		var createdAt string
		if err := rows.Scan(&item.ID, &item.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan cached prediction: %w", err)
		}
		// 分页边界可能重复 / A record can straddle two cached pages
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		if ts, err := prediction.ParseTimestamp(createdAt); err == nil {
			item.CreatedAt = ts
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// PurgeExpired 删除过期缓存页 / PurgeExpired drops cached pages older than ttl
func (s *SQLiteStore) PurgeExpired(ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-ttl).Format(sortableTime)
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		DELETE FROM predictions WHERE EXISTS (
			SELECT 1 FROM prediction_pages g
			WHERE g.user_id = predictions.user_id AND g.page = predictions.page AND g.fetched_at < ?
		)`, cutoff); err != nil {
		return 0, fmt.Errorf("purge cached predictions: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM prediction_pages WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// ClearHistory 删除某用户的全部缓存 / ClearHistory drops every cached page of userID
func (s *SQLiteStore) ClearHistory(userID string) error {
	userID = strings.TrimSpace(userID)
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM predictions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear cached predictions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM prediction_pages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear history cache: %w", err)
	}
	return tx.Commit()
}

// --- Helpers ---

// sortableTime has a fixed width so stored timestamps compare correctly as strings.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

func (s *SQLiteStore) nowUTC() string {
	return s.now().UTC().Format(sortableTime)
}
