package sqlstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/forum-crawler/internal/entity"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(ctx, db, SQLite, "forum_posts", "crawler_log"))
	return db
}

func row(id int64, title string, replies int, content string) entity.PostRow {
	return entity.PostRow{
		ForumPostID: id,
		Title:       title,
		URL:         "https://bbs.example.com/thread-1-1-1.html",
		Username:    "alice",
		ReplyCount:  replies,
		ViewCount:   10,
		ImagesJSON:  "[]",
		CrawlTime:   time.Date(2025, 9, 11, 10, 0, 0, 0, time.UTC),
		SectionID:   "89",
		IsCrawl:     true,
		Content:     content,
	}
}

type storedPost struct {
	title, content, images string
	replies                int
	userID                 sql.NullInt64
}

func loadPost(t *testing.T, db *sql.DB, id int64) storedPost {
	t.Helper()
	var p storedPost
	err := db.QueryRow(`SELECT title, content, images, reply_count, user_id FROM forum_posts WHERE forum_post_id = ?`, id).
		Scan(&p.title, &p.content, &p.images, &p.replies, &p.userID)
	require.NoError(t, err)
	return p
}

func TestSQLiteUpsertIsIdempotent(t *testing.T) {
	db := openSQLite(t)
	repo := NewPostRepo(db, SQLite, "forum_posts")
	ctx := context.Background()

	uid := int64(7788)
	first := row(100, "v1", 1, "body")
	first.UserID = &uid
	require.NoError(t, repo.Upsert(ctx, []entity.PostRow{first, row(101, "other", 0, "")}))
	require.NoError(t, repo.Upsert(ctx, []entity.PostRow{row(100, "v2", 5, "body2")}))

	p := loadPost(t, db, 100)
	require.Equal(t, "v2", p.title)
	require.Equal(t, 5, p.replies)
	require.False(t, p.userID.Valid, "a full upsert rewrites every column")

	ids, err := repo.ExistingIDs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"100", "101"}, ids)
}

func TestSQLiteUpdateContentLeavesListingFields(t *testing.T) {
	db := openSQLite(t)
	repo := NewPostRepo(db, SQLite, "forum_posts")
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []entity.PostRow{row(100, "old", 3, "old body"), row(101, "keep", 4, "keep")}))

	update := row(100, "new", 99, "new body")
	update.ImagesJSON = `["images/boniu/2025/9/11/a.jpg"]`
	require.NoError(t, repo.UpdateContent(ctx, []entity.PostRow{update}))

	p := loadPost(t, db, 100)
	require.Equal(t, "new", p.title)
	require.Equal(t, "new body", p.content)
	require.Equal(t, `["images/boniu/2025/9/11/a.jpg"]`, p.images)
	require.Equal(t, 3, p.replies)

	untouched := loadPost(t, db, 101)
	require.Equal(t, "keep", untouched.title)
}

func TestSQLiteUpdateContentIgnoresUnknownIDs(t *testing.T) {
	db := openSQLite(t)
	repo := NewPostRepo(db, SQLite, "forum_posts")
	require.NoError(t, repo.UpdateContent(context.Background(), []entity.PostRow{row(555, "x", 0, "y")}))

	ids, err := repo.ExistingIDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestSQLiteExecutionLog(t *testing.T) {
	db := openSQLite(t)
	repo := NewExecutionLogRepo(db, SQLite, "crawler_log")
	ctx := context.Background()

	id, err := repo.Start(ctx, &entity.ExecutionLog{
		StartTime:     time.Now(),
		ExecutionType: entity.ExecutionScheduled,
		Environment:   "dev",
		Command:       "crawler crawl --max-pages 2",
		Parameters:    map[string]any{"max_pages": 2, "overwrite": false},
		Pages:         2,
	})
	require.NoError(t, err)
	require.Positive(t, id)

	logs, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, entity.RunStatusRunning, logs[0].Status)
	require.Nil(t, logs[0].EndTime)

	require.NoError(t, repo.Finish(ctx, id, entity.RunStatusSuccess, "ok", 5))

	logs, err = repo.Recent(ctx, 10)
	require.NoError(t, err)
	l := logs[0]
	require.Equal(t, entity.RunStatusSuccess, l.Status)
	require.Equal(t, entity.ExecutionScheduled, l.ExecutionType)
	require.Equal(t, 5, l.PostsCount)
	require.Equal(t, 2, l.Pages)
	require.Equal(t, "ok", l.Message)
	require.NotNil(t, l.EndTime)
	require.Equal(t, float64(2), l.Parameters["max_pages"])
}
