// Package sqlstore implements the post and execution log repositories on
// database/sql for MySQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect captures the SQL differences between the supported engines.
type Dialect struct {
	Name   string
	driver string
	// now is the engine's current-timestamp expression.
	now string
	// upsert renders the conflict clause that updates cols from the incoming row.
	upsert func(cols []string) string
	quote  func(ident string) string
}

// MySQL is the dialect of the production store.
var MySQL = Dialect{
	Name:   "mysql",
	driver: "mysql",
	now:    "NOW()",
	upsert: func(cols []string) string {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		}
		return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	},
	quote: func(ident string) string {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	},
}

// SQLite is used for local runs and tests.
var SQLite = Dialect{
	Name:   "sqlite",
	driver: "sqlite3",
	now:    "CURRENT_TIMESTAMP",
	upsert: func(cols []string) string {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
		return "ON CONFLICT(forum_post_id) DO UPDATE SET " + strings.Join(sets, ", ")
	},
	quote: func(ident string) string {
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	},
}

// DialectFor maps a DB_DRIVER value to its dialect.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case MySQL.Name:
		return MySQL, nil
	case SQLite.Name, SQLite.driver:
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("sqlstore: unsupported dialect %q", name)
}

// Open connects to dsn and verifies the connection. MySQL DSNs are forced to
// parse DATETIME columns into time.Time.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	if d.Name == MySQL.Name {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		if _, ok := cfg.Params["charset"]; !ok {
			cfg.Params["charset"] = "utf8mb4"
		}
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, err
	}
	if d.Name == SQLite.Name {
		// A single connection keeps in-memory databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Schema returns the DDL statements for the post and execution log tables.
func (d Dialect) Schema(postTable, logTable string) []string {
	if d.Name == MySQL.Name {
		return []string{
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
				"forum_post_id BIGINT NOT NULL PRIMARY KEY, "+
				"title VARCHAR(255) NOT NULL DEFAULT '', "+
				"url VARCHAR(512) NOT NULL DEFAULT '', "+
				"user_id BIGINT NULL, "+
				"username VARCHAR(100) NOT NULL DEFAULT '', "+
				"avatar_url VARCHAR(512) NULL, "+
				"publish_time VARCHAR(64) NULL, "+
				"reply_count INT NOT NULL DEFAULT 0, "+
				"view_count INT NOT NULL DEFAULT 0, "+
				"images TEXT NULL, "+
				"category VARCHAR(100) NOT NULL DEFAULT '', "+
				"is_sticky TINYINT(1) NOT NULL DEFAULT 0, "+
				"is_essence TINYINT(1) NOT NULL DEFAULT 0, "+
				"crawl_time DATETIME NULL, "+
				"section_id VARCHAR(50) NOT NULL DEFAULT '', "+
				"is_crawl TINYINT(1) NOT NULL DEFAULT 1, "+
				"content MEDIUMTEXT NULL, "+
				"created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP, "+
				"updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP"+
				") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4", d.quote(postTable)),
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
				"id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, "+
				"start_time DATETIME NOT NULL, "+
				"end_time DATETIME NULL, "+
				"status ENUM('running','success','failed','timeout','error') NOT NULL, "+
				"execution_type ENUM('manual','scheduled') NOT NULL, "+
				"environment VARCHAR(32) NOT NULL DEFAULT '', "+
				"command TEXT NULL, "+
				"parameters JSON NULL, "+
				"pages INT NOT NULL DEFAULT 0, "+
				"posts_count INT NOT NULL DEFAULT 0, "+
				"message VARCHAR(500) NOT NULL DEFAULT '', "+
				"created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP, "+
				"updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP"+
				") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4", d.quote(logTable)),
		}
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			forum_post_id INTEGER PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			user_id INTEGER,
			username TEXT NOT NULL DEFAULT '',
			avatar_url TEXT,
			publish_time TEXT,
			reply_count INTEGER NOT NULL DEFAULT 0,
			view_count INTEGER NOT NULL DEFAULT 0,
			images TEXT NOT NULL DEFAULT '[]',
			category TEXT NOT NULL DEFAULT '',
			is_sticky BOOLEAN NOT NULL DEFAULT 0,
			is_essence BOOLEAN NOT NULL DEFAULT 0,
			crawl_time DATETIME,
			section_id TEXT NOT NULL DEFAULT '',
			is_crawl BOOLEAN NOT NULL DEFAULT 1,
			content TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, d.quote(postTable)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			status TEXT NOT NULL,
			execution_type TEXT NOT NULL,
			environment TEXT NOT NULL DEFAULT '',
			command TEXT NOT NULL DEFAULT '',
			parameters TEXT,
			pages INTEGER NOT NULL DEFAULT 0,
			posts_count INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, d.quote(logTable)),
	}
}

// InitSchema creates the tables when they do not exist yet.
func InitSchema(ctx context.Context, db *sql.DB, d Dialect, postTable, logTable string) error {
	for _, stmt := range d.Schema(postTable, logTable) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
