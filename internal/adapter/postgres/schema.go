package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Schema returns reference DDL for the post and execution log tables.
func Schema(postTable, logTable string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	forum_post_id BIGINT PRIMARY KEY,
	title VARCHAR(255) NOT NULL DEFAULT '',
	url VARCHAR(512) NOT NULL DEFAULT '',
	user_id BIGINT,
	username VARCHAR(100) NOT NULL DEFAULT '',
	avatar_url TEXT,
	publish_time VARCHAR(64),
	reply_count INTEGER NOT NULL DEFAULT 0,
	view_count INTEGER NOT NULL DEFAULT 0,
	images JSONB NOT NULL DEFAULT '[]',
	category VARCHAR(100) NOT NULL DEFAULT '',
	is_sticky BOOLEAN NOT NULL DEFAULT FALSE,
	is_essence BOOLEAN NOT NULL DEFAULT FALSE,
	crawl_time TIMESTAMPTZ,
	section_id VARCHAR(50) NOT NULL DEFAULT '',
	is_crawl BOOLEAN NOT NULL DEFAULT TRUE,
	content TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS %[2]s (
	id BIGSERIAL PRIMARY KEY,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ,
	status VARCHAR(16) NOT NULL,
	execution_type VARCHAR(16) NOT NULL,
	environment VARCHAR(32) NOT NULL DEFAULT '',
	command TEXT NOT NULL DEFAULT '',
	parameters JSONB,
	pages INTEGER NOT NULL DEFAULT 0,
	posts_count INTEGER NOT NULL DEFAULT 0,
	message VARCHAR(500) NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`, ident(postTable), ident(logTable))
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
