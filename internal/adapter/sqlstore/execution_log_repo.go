package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/user/forum-crawler/internal/entity"
)

// ExecutionLogRepo implements repository.ExecutionLogRepository.
type ExecutionLogRepo struct {
	db      *sql.DB
	dialect Dialect
	table   string
	now     func() time.Time
}

// NewExecutionLogRepo creates an execution log repository over db.
func NewExecutionLogRepo(db *sql.DB, d Dialect, table string) *ExecutionLogRepo {
	return &ExecutionLogRepo{db: db, dialect: d, table: table, now: func() time.Time { return time.Now().UTC() }}
}

// Start inserts a running entry and returns its id.
func (r *ExecutionLogRepo) Start(ctx context.Context, log *entity.ExecutionLog) (int64, error) {
	var params any
	if log.Parameters != nil {
		b, err := json.Marshal(log.Parameters)
		if err != nil {
			return 0, err
		}
		params = string(b)
	}
	now := r.now()
	query := fmt.Sprintf(`INSERT INTO %s
		(start_time, status, execution_type, environment, command, parameters, pages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.dialect.quote(r.table))
	res, err := r.db.ExecContext(ctx, query,
		log.StartTime.UTC(),
		string(entity.RunStatusRunning),
		string(log.ExecutionType),
		log.Environment,
		log.Command,
		params,
		log.Pages,
		now,
		now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Finish records the terminal state of an entry.
func (r *ExecutionLogRepo) Finish(ctx context.Context, id int64, status entity.RunStatus, message string, postsCount int) error {
	now := r.now()
	query := fmt.Sprintf(`UPDATE %s
		SET end_time = ?, status = ?, message = ?, posts_count = ?, updated_at = ?
		WHERE id = ?`, r.dialect.quote(r.table))
	_, err := r.db.ExecContext(ctx, query, now, string(status), message, postsCount, now, id)
	return err
}

// Recent returns the newest entries first.
func (r *ExecutionLogRepo) Recent(ctx context.Context, limit int) ([]entity.ExecutionLog, error) {
	query := fmt.Sprintf(`SELECT id, start_time, end_time, status, execution_type, environment,
		command, parameters, pages, posts_count, message, created_at, updated_at
		FROM %s ORDER BY id DESC LIMIT ?`, r.dialect.quote(r.table))
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []entity.ExecutionLog
	for rows.Next() {
		var (
			l       entity.ExecutionLog
			endTime sql.NullTime
			command sql.NullString
			params  sql.NullString
		)
		if err := rows.Scan(
			&l.ID, &l.StartTime, &endTime, &l.Status, &l.ExecutionType, &l.Environment,
			&command, &params, &l.Pages, &l.PostsCount, &l.Message, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if endTime.Valid {
			t := endTime.Time
			l.EndTime = &t
		}
		l.Command = command.String
		if params.Valid && params.String != "" {
			if err := json.Unmarshal([]byte(params.String), &l.Parameters); err != nil {
				return nil, fmt.Errorf("invalid parameters for run %d: %w", l.ID, err)
			}
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
