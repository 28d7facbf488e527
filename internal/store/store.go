// 包 store: 提供与 SQL 数据库的数据访问层，包含配额权威计数、查询日志与过期分区回收
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"imei-sim/internal/day"
	"imei-sim/internal/logger"
	"imei-sim/internal/quota"
)

// Dialect：SQL 方言；生产使用 PostgreSQL，单机与测试使用 SQLite
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "", "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Postgres, fmt.Errorf("unknown store driver %q", s)
}

// DriverName：database/sql 驱动名
func (d Dialect) DriverName() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind：语句统一以 $n 书写，SQLite 下替换为 ?；调用方保证参数按序号递增出现
func (d Dialect) rebind(q string) string {
	if d == SQLite {
		return placeholder.ReplaceAllString(q, "?")
	}
	return q
}

func (d Dialect) greatest() string {
	if d == SQLite {
		return "MAX"
	}
	return "GREATEST"
}

// Store: 数据库访问入口，持有连接池并实现 quota.Counter
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func AttachDB(db *sql.DB, d Dialect) *Store { return &Store{db: db, dialect: d} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

// 文档注释：原子条件递增
// 背景：单条 UPSERT 完成“首次插入 1，已存在且 consumed < limit 时加一”，RETURNING 返回新值；
// 条件不满足时无返回行，随后读取当前值用于镜像回填。不存在先读后写的竞态窗口。
// 约束：limit 至少为 1；ttl 对按日分区的持久存储无意义，忽略。
func (s *Store) IncrBounded(ctx context.Context, k quota.Key, limit int, ttl time.Duration) (int, bool, error) {
	if limit < 1 {
		n, _, err := s.Peek(ctx, k)
		return n, false, err
	}
	q := s.dialect.rebind(`INSERT INTO quota_usage(user_id, day, consumed, updated_at)
        VALUES($1, $2, 1, CURRENT_TIMESTAMP)
        ON CONFLICT (user_id, day) DO UPDATE SET consumed = quota_usage.consumed + 1, updated_at = CURRENT_TIMESTAMP
        WHERE quota_usage.consumed < $3
        RETURNING consumed`)
	var n int
	err := s.db.QueryRowContext(ctx, q, k.UserID, k.Day.String(), limit).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		cur, _, perr := s.Peek(ctx, k)
		if perr != nil {
			// 拒绝结论已由条件更新确定，读取失败时按容量回报
			logger.L().Debug("quota_peek_after_reject_error", "err", perr)
			cur = limit
		}
		return cur, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (s *Store) Peek(ctx context.Context, k quota.Key) (int, bool, error) {
	q := s.dialect.rebind(`SELECT consumed FROM quota_usage WHERE user_id=$1 AND day=$2`)
	var n int
	err := s.db.QueryRowContext(ctx, q, k.UserID, k.Day.String()).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (s *Store) Raise(ctx context.Context, k quota.Key, n int, ttl time.Duration) error {
	q := s.dialect.rebind(`INSERT INTO quota_usage(user_id, day, consumed, updated_at)
        VALUES($1, $2, $3, CURRENT_TIMESTAMP)
        ON CONFLICT (user_id, day) DO UPDATE SET consumed = ` + s.dialect.greatest() + `(quota_usage.consumed, excluded.consumed), updated_at = CURRENT_TIMESTAMP`)
	_, err := s.db.ExecContext(ctx, q, k.UserID, k.Day.String(), n)
	return err
}

// 文档注释：记录一次已放行的查询
// 背景：仅保存脱敏前缀，用于审计与滥用排查；写入失败不影响主流程。
func (s *Store) RecordQuery(ctx context.Context, userID, redacted string, d day.Day) error {
	q := s.dialect.rebind(`INSERT INTO track_queries(user_id, imei_prefix, day, created_at) VALUES($1, $2, $3, CURRENT_TIMESTAMP)`)
	_, err := s.db.ExecContext(ctx, q, userID, redacted, d.String())
	return err
}

// CountQueries：某用户某日的查询日志条数
func (s *Store) CountQueries(ctx context.Context, userID string, d day.Day) (int64, error) {
	q := s.dialect.rebind(`SELECT COUNT(1) FROM track_queries WHERE user_id=$1 AND day=$2`)
	var n int64
	err := s.db.QueryRowContext(ctx, q, userID, d.String()).Scan(&n)
	return n, err
}

// SweepResult：回收统计
type SweepResult struct {
	Quota   int64
	Queries int64
}

// 文档注释：回收过期日分区
// 背景：正确性不依赖此操作；仅删除 day 早于 before 的配额行与查询日志，控制表体积。
func (s *Store) SweepBefore(ctx context.Context, before day.Day) (SweepResult, error) {
	var r SweepResult
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM quota_usage WHERE day < $1`), before.String())
	if err != nil {
		return r, err
	}
	r.Quota, _ = res.RowsAffected()
	res, err = s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM track_queries WHERE day < $1`), before.String())
	if err != nil {
		return r, err
	}
	r.Queries, _ = res.RowsAffected()
	logger.L().Debug("store_sweep", "before", before.String(), "quota", r.Quota, "queries", r.Queries)
	return r, nil
}
