package utils

import (
	"database/sql"
	"net/url"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"imei-sim/internal/config"
	"imei-sim/internal/store"
)

// BuildPostgresDSN：由配置拼装 DSN；密码做 URL 转义
func BuildPostgresDSN(c config.Postgres) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.DB,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	return u.String()
}

// 文档注释：按配置打开数据库
// 背景：postgres 为多实例部署的权威存储；sqlite 用于单机演示，连接数固定为 1 以串行化写入。
func OpenDB(c config.Config) (*sql.DB, store.Dialect, error) {
	d, err := store.ParseDialect(c.StoreDriver)
	if err != nil {
		return nil, d, err
	}
	if d == store.SQLite {
		db, err := sql.Open(d.DriverName(), c.SQLitePath)
		if err != nil {
			return nil, d, err
		}
		db.SetMaxOpenConns(1)
		return db, d, nil
	}
	db, err := sql.Open(d.DriverName(), BuildPostgresDSN(c.PG))
	if err != nil {
		return nil, d, err
	}
	db.SetMaxOpenConns(c.PG.MaxOpenConns)
	db.SetMaxIdleConns(c.PG.MaxIdleConns)
	return db, d, nil
}
