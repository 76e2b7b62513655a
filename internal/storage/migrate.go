package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"vidpredict/internal/session"
)

// MigrateSessionFile 将文件后端保存的会话导入 SQLite
// MigrateSessionFile imports a session saved by the file backend into the SQLite slot.
// The SQLite slot wins if it already holds a session. Either way the file is
// renamed to <path>.migrated so a later logout cannot bring it back.
func MigrateSessionFile(jsonPath string, store *SQLiteStore) (bool, error) {
	jsonPath = strings.TrimSpace(jsonPath)
	if jsonPath == "" {
		return false, nil
	}
	if _, err := os.Stat(jsonPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat session file: %w", err)
	}

	slot := store.Sessions()
	if _, ok, err := slot.Load(); err != nil {
		return false, err
	} else if ok {
		return false, retireLegacy(jsonPath)
	}

	legacy, err := session.NewFileBackend(jsonPath)
	if err != nil {
		return false, err
	}
	sess, ok, err := legacy.Load()
	if err != nil {
		return false, fmt.Errorf("read legacy session: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := slot.Save(sess); err != nil {
		return false, err
	}
	return true, retireLegacy(jsonPath)
}

func retireLegacy(jsonPath string) error {
	if err := os.Rename(jsonPath, jsonPath+".migrated"); err != nil {
		return fmt.Errorf("rename legacy session file: %w", err)
	}
	return nil
}
