package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/forum-crawler/internal/entity"
)

// postColumns is the insert column order; forum_post_id must stay first.
var postColumns = []string{
	"forum_post_id", "title", "url", "user_id", "username", "avatar_url",
	"publish_time", "reply_count", "view_count", "images", "category",
	"is_sticky", "is_essence", "crawl_time", "section_id", "is_crawl", "content",
}

// PostRepo implements repository.PostRepository.
type PostRepo struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// NewPostRepo creates a post repository over db.
func NewPostRepo(db *sql.DB, d Dialect, table string) *PostRepo {
	return &PostRepo{db: db, dialect: d, table: table}
}

// ExistingIDs loads every stored post id.
func (r *PostRepo) ExistingIDs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT forum_post_id FROM %s WHERE forum_post_id IS NOT NULL", r.dialect.quote(r.table))
	rows, err := r.db.QueryContext(ctx, query)
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

// Upsert writes rows with one multi-row INSERT that updates existing ids in place.
func (r *PostRepo) Upsert(ctx context.Context, rows []entity.PostRow) error {
	if len(rows) == 0 {
		return nil
	}
	query, args := r.buildUpsert(rows)
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// UpdateContent rewrites title, content and images of rows with one CASE-keyed UPDATE.
func (r *PostRepo) UpdateContent(ctx context.Context, rows []entity.PostRow) error {
	if len(rows) == 0 {
		return nil
	}
	query, args := r.buildContentUpdate(rows)
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// Ping checks connectivity.
func (r *PostRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostRepo) buildUpsert(rows []entity.PostRow) (string, []any) {
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(postColumns)), ", ") + ")"
	values := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(postColumns))
	for i, row := range rows {
		values[i] = placeholders
		args = append(args, rowArgs(row)...)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s %s, updated_at = %s",
		r.dialect.quote(r.table),
		strings.Join(postColumns, ", "),
		strings.Join(values, ", "),
		r.dialect.upsert(postColumns[1:]),
		r.dialect.now,
	)
	return query, args
}

// buildContentUpdate renders
//
//	UPDATE t SET title = CASE forum_post_id WHEN ? THEN ? ... END, content = ..., images = ...,
//	updated_at = now WHERE forum_post_id IN (?, ...)
func (r *PostRepo) buildContentUpdate(rows []entity.PostRow) (string, []any) {
	fields := []struct {
		col   string
		value func(entity.PostRow) any
	}{
		{"title", func(p entity.PostRow) any { return p.Title }},
		{"content", func(p entity.PostRow) any { return p.Content }},
		{"images", func(p entity.PostRow) any { return p.ImagesJSON }},
	}

	var sb strings.Builder
	args := make([]any, 0, len(rows)*(2*len(fields)+1))
	fmt.Fprintf(&sb, "UPDATE %s SET ", r.dialect.quote(r.table))
	for _, f := range fields {
		fmt.Fprintf(&sb, "%s = CASE forum_post_id", f.col)
		for _, row := range rows {
			sb.WriteString(" WHEN ? THEN ?")
			args = append(args, row.ForumPostID, f.value(row))
		}
		sb.WriteString(" END, ")
	}
	fmt.Fprintf(&sb, "updated_at = %s WHERE forum_post_id IN (%s)",
		r.dialect.now, strings.TrimSuffix(strings.Repeat("?, ", len(rows)), ", "))
	for _, row := range rows {
		args = append(args, row.ForumPostID)
	}
	return sb.String(), args
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
