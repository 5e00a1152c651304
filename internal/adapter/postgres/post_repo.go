package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/forum-crawler/internal/entity"
)

// postColumns is the insert column order; forum_post_id must stay first.
var postColumns = []string{
	"forum_post_id", "title", "url", "user_id", "username", "avatar_url",
	"publish_time", "reply_count", "view_count", "images", "category",
	"is_sticky", "is_essence", "crawl_time", "section_id", "is_crawl", "content",
}

// PostRepoImpl implements repository.PostRepository on PostgreSQL.
type PostRepoImpl struct {
	db    *pgxpool.Pool
	table string
}

// NewPostRepo creates a new instance of PostRepoImpl.
func NewPostRepo(db *pgxpool.Pool, table string) *PostRepoImpl {
	return &PostRepoImpl{db: db, table: table}
}

// ExistingIDs loads every stored post id.
func (r *PostRepoImpl) ExistingIDs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT forum_post_id FROM %s WHERE forum_post_id IS NOT NULL", ident(r.table))
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return ids, rows.Err()
}

// Upsert writes all rows in a single multi-row INSERT ... ON CONFLICT statement.
func (r *PostRepoImpl) Upsert(ctx context.Context, rows []entity.PostRow) error {
	if len(rows) == 0 {
		return nil
	}
	query, args := buildUpsert(r.table, rows)
	_, err := r.db.Exec(ctx, query, args...)
	return err
}

// UpdateContent sends one UPDATE per row as a single batch inside a transaction.
func (r *PostRepoImpl) UpdateContent(ctx context.Context, rows []entity.PostRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.SendBatch(ctx, buildContentBatch(r.table, rows)).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ping checks the connection pool.
func (r *PostRepoImpl) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func buildUpsert(table string, rows []entity.PostRow) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", ident(table), strings.Join(postColumns, ", "))

	args := make([]any, 0, len(rows)*len(postColumns))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range postColumns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+j+1)
		}
		sb.WriteByte(')')
		args = append(args, rowArgs(row)...)
	}

	sb.WriteString(" ON CONFLICT (forum_post_id) DO UPDATE SET ")
	for i, col := range postColumns[1:] {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s = EXCLUDED.%s", col, col)
	}
	sb.WriteString(", updated_at = NOW()")
	return sb.String(), args
}

func buildContentBatch(table string, rows []entity.PostRow) *pgx.Batch {
	query := fmt.Sprintf(
		"UPDATE %s SET title = $1, content = $2, images = $3, updated_at = NOW() WHERE forum_post_id = $4",
		ident(table),
	)
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query, row.Title, row.Content, row.ImagesJSON, row.ForumPostID)
	}
	return batch
}

func rowArgs(row entity.PostRow) []any {
	return []any{
		row.ForumPostID,
		row.Title,
		row.URL,
		row.UserID,
		row.Username,
		row.AvatarURL,
		row.PublishTime,
		row.ReplyCount,
		row.ViewCount,
		row.ImagesJSON,
		row.Category,
		row.IsSticky,
		row.IsEssence,
		row.CrawlTime,
		row.SectionID,
		row.IsCrawl,
		row.Content,
	}
}
