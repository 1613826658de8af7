package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/pagination"
)

type QueryLogPageResult struct {
	Items      []*domain.QueryLog
	NextCursor string
	HasMore    bool
}

// QueryLogRepository stores one row per question asked.
type QueryLogRepository struct {
	db dbtx
}

func NewQueryLogRepository(pool *pgxpool.Pool) *QueryLogRepository {
	return &QueryLogRepository{db: pool}
}

func newQueryLogRepository(db dbtx) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

// Record inserts entry and sets its ID.
func (r *QueryLogRepository) Record(ctx context.Context, entry *domain.QueryLog) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO query_logs (user_id, query, top_k, passages, duration_ms, failed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		entry.UserID, entry.Query, entry.TopK, entry.Passages, entry.DurationMs, entry.Failed, entry.CreatedAt,
	).Scan(&entry.ID)
}

// ListRecent returns one page of the user's queries, newest first.
func (r *QueryLogRepository) ListRecent(ctx context.Context, userID string, cursor *pagination.Cursor, limit int) (*QueryLogPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, user_id, query, top_k, passages, duration_ms, failed, created_at
			 FROM query_logs
			 WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			userID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, user_id, query, top_k, passages, duration_ms, failed, created_at
			 FROM query_logs
			 WHERE user_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			userID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.QueryLog
	for rows.Next() {
		var l domain.QueryLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Query, &l.TopK, &l.Passages, &l.DurationMs, &l.Failed, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(logs) > limit
	if hasMore {
		logs = logs[:limit]
	}

	var nextCursor string
	if hasMore && len(logs) > 0 {
		last := logs[len(logs)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &QueryLogPageResult{
		Items:      logs,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func (r *QueryLogRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM query_logs WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}
