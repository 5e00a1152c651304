package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/forum-crawler/internal/entity"
)

// ExecutionLogRepoImpl implements repository.ExecutionLogRepository on PostgreSQL.
type ExecutionLogRepoImpl struct {
	db    *pgxpool.Pool
	table string
}

// NewExecutionLogRepo creates a new instance of ExecutionLogRepoImpl.
func NewExecutionLogRepo(db *pgxpool.Pool, table string) *ExecutionLogRepoImpl {
	return &ExecutionLogRepoImpl{db: db, table: table}
}

// Start inserts a running entry and returns its id.
func (r *ExecutionLogRepoImpl) Start(ctx context.Context, log *entity.ExecutionLog) (int64, error) {
	params, err := json.Marshal(log.Parameters)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (start_time, status, execution_type, environment, command, parameters, pages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id;
	`, ident(r.table))

	var id int64
	err = r.db.QueryRow(ctx, query,
		log.StartTime,
		entity.RunStatusRunning,
		log.ExecutionType,
		log.Environment,
		log.Command,
		params,
		log.Pages,
	).Scan(&id)
	return id, err
}

// Finish records the terminal state of an entry.
func (r *ExecutionLogRepoImpl) Finish(ctx context.Context, id int64, status entity.RunStatus, message string, postsCount int) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET end_time = NOW(), status = $1, message = $2, posts_count = $3, updated_at = NOW()
		WHERE id = $4;
	`, ident(r.table))
	_, err := r.db.Exec(ctx, query, status, message, postsCount, id)
	return err
}

// Recent returns the newest entries first.
func (r *ExecutionLogRepoImpl) Recent(ctx context.Context, limit int) ([]entity.ExecutionLog, error) {
	query := fmt.Sprintf(`
		SELECT id, start_time, end_time, status, execution_type, environment, command, parameters,
			pages, posts_count, message, created_at, updated_at
		FROM %s
		ORDER BY id DESC
		LIMIT $1;
	`, ident(r.table))
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []entity.ExecutionLog
	for rows.Next() {
		var l entity.ExecutionLog
		var params []byte
		if err := rows.Scan(
			&l.ID, &l.StartTime, &l.EndTime, &l.Status, &l.ExecutionType, &l.Environment, &l.Command, &params,
			&l.Pages, &l.PostsCount, &l.Message, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &l.Parameters); err != nil {
				return nil, err
			}
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
