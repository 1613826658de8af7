package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// DocumentRepository is the Postgres ledger of uploaded PDFs.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func newDocumentRepository(db dbtx) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create records an upload. Uploading the same file name again replaces the row.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if err := domain.ValidateDocument(doc); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, user_id, filename, storage_key, size_bytes, sha256, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, filename) DO UPDATE
		 SET id = EXCLUDED.id,
		     storage_key = EXCLUDED.storage_key,
		     size_bytes = EXCLUDED.size_bytes,
		     sha256 = EXCLUDED.sha256,
		     uploaded_at = EXCLUDED.uploaded_at`,
		doc.ID, doc.UserID, doc.Filename, doc.StorageKey, doc.SizeBytes, doc.SHA256, doc.UploadedAt,
	)
	return err
}

func (r *DocumentRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, filename, storage_key, size_bytes, sha256, uploaded_at
		 FROM documents WHERE user_id = $1 ORDER BY uploaded_at DESC, filename`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*domain.Document{}
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.Filename, &d.StorageKey, &d.SizeBytes, &d.SHA256, &d.UploadedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// DeleteByUser removes the user's documents and query history in one
// transaction and returns the number of documents removed.
func (r *DocumentRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	pool, ok := r.db.(*pgxpool.Pool)
	if !ok {
		return r.deleteByUser(ctx, userID)
	}

	var deleted int64
	err := NewTxRunner(pool).WithTx(ctx, func(repos TxRepositories) error {
		if _, err := repos.QueryLogs.DeleteByUser(ctx, userID); err != nil {
			return err
		}
		n, err := repos.Documents.deleteByUser(ctx, userID)
		deleted = n
		return err
	})
	return deleted, err
}

func (r *DocumentRepository) deleteByUser(ctx context.Context, userID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}
