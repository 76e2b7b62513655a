package storage

import (
	"time"

	"vidpredict/internal/prediction"
	"vidpredict/internal/session"
)

// Store 本地持久化接口：会话槽位 + 历史分页缓存
// Store is the local persistence interface: the session slot plus the history page cache
type Store interface {
	// 会话 / Session slot
	Sessions() session.Backend

	// 历史缓存 / History page cache
	SavePage(userID string, page prediction.Page) error
	CachedHistory(userID string, ttl time.Duration) ([]prediction.Prediction, error)
	PurgeExpired(ttl time.Duration) (int64, error)
	ClearHistory(userID string) error

	// 生命周期 / Lifecycle
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
