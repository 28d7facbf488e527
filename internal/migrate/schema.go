package migrate

import (
	"database/sql"

	"imei-sim/internal/logger"
	"imei-sim/internal/store"
)

var postgresStmts = []string{
	`CREATE TABLE IF NOT EXISTS quota_usage (
            user_id TEXT NOT NULL,
            day DATE NOT NULL,
            consumed INT NOT NULL DEFAULT 0,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (user_id, day)
        )`,
	`CREATE INDEX IF NOT EXISTS idx_quota_usage_day ON quota_usage(day)`,
	`CREATE TABLE IF NOT EXISTS track_queries (
            id BIGSERIAL PRIMARY KEY,
            user_id TEXT NOT NULL,
            imei_prefix VARCHAR(16) NOT NULL,
            day DATE NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
	`CREATE INDEX IF NOT EXISTS idx_track_queries_user_day ON track_queries(user_id, day)`,
}

var sqliteStmts = []string{
	`CREATE TABLE IF NOT EXISTS quota_usage (
            user_id TEXT NOT NULL,
            day TEXT NOT NULL,
            consumed INTEGER NOT NULL DEFAULT 0,
            updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (user_id, day)
        )`,
	`CREATE INDEX IF NOT EXISTS idx_quota_usage_day ON quota_usage(day)`,
	`CREATE TABLE IF NOT EXISTS track_queries (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id TEXT NOT NULL,
            imei_prefix TEXT NOT NULL,
            day TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
	`CREATE INDEX IF NOT EXISTS idx_track_queries_user_day ON track_queries(user_id, day)`,
}

// 背景：首次运行自动创建所需表与索引，保障后续配额计数与查询日志
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构；查询日志只存脱敏前缀
func EnsureSchema(db *sql.DB, d store.Dialect) error {
	stmts := postgresStmts
	if d == store.SQLite {
		stmts = sqliteStmts
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
