package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/quartzlab/depot/internal/depot/domain"
)

type filesRepo struct {
	db dbtx
}

func (r *filesRepo) UpsertFileMeta(ctx context.Context, m domain.FileMeta) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO file_meta (id, bucket, key, owner_id, owner_name, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (bucket, key) DO UPDATE SET
		   owner_id = excluded.owner_id,
		   owner_name = excluded.owner_name,
		   updated_at = excluded.updated_at`,
		m.ID, m.Bucket, m.Key, mapOptionalString(m.OwnerID), mapOptionalString(m.OwnerName), time.Now().UTC())
	return err
}

func (r *filesRepo) GetFileMeta(ctx context.Context, bucket, key string) (domain.FileMeta, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, bucket, key, owner_id, owner_name, updated_at
		 FROM file_meta WHERE bucket = ? AND key = ?`, bucket, key)

	m, err := scanFileMeta(row)
	if err != nil {
		return domain.FileMeta{}, mapNotFound(err)
	}
	return m, nil
}

func (r *filesRepo) GetFileMetaBatch(
	ctx context.Context,
	bucket string,
	keys []string,
) (map[string]domain.FileMeta, error) {
	if len(keys) == 0 {
		return map[string]domain.FileMeta{}, nil
	}

	args := make([]any, 0, len(keys)+1)
	args = append(args, bucket)
	for _, k := range keys {
		args = append(args, k)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, bucket, key, owner_id, owner_name, updated_at
		 FROM file_meta WHERE bucket = ? AND key IN (`+placeholders(len(keys))+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectFileMeta(rows)
}

func (r *filesRepo) ListFileMetaByBucket(
	ctx context.Context,
	bucket string,
) (map[string]domain.FileMeta, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, bucket, key, owner_id, owner_name, updated_at
		 FROM file_meta WHERE bucket = ?`, bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectFileMeta(rows)
}

func (r *filesRepo) DeleteFileMeta(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	args := make([]any, 0, len(keys)+1)
	args = append(args, bucket)
	for _, k := range keys {
		args = append(args, k)
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM file_meta WHERE bucket = ? AND key IN (`+placeholders(len(keys))+`)`,
		args...)
	return err
}

func (r *filesRepo) DeleteFileMetaByBucket(ctx context.Context, bucket string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM file_meta WHERE bucket = ?`, bucket)
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func scanFileMeta(row rowScanner) (domain.FileMeta, error) {
	var (
		m                  domain.FileMeta
		ownerID, ownerName sql.NullString
	)
	if err := row.Scan(&m.ID, &m.Bucket, &m.Key, &ownerID, &ownerName, &m.UpdatedAt); err != nil {
		return domain.FileMeta{}, err
	}
	m.OwnerID = mapNullStringPtr(ownerID)
	m.OwnerName = mapNullStringPtr(ownerName)
	return m, nil
}

func collectFileMeta(rows *sql.Rows) (map[string]domain.FileMeta, error) {
	out := make(map[string]domain.FileMeta)
	for rows.Next() {
		m, err := scanFileMeta(rows)
		if err != nil {
			return nil, err
		}
		out[m.Key] = m
	}
	return out, rows.Err()
}

func mapNullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		val := ns.String
		return &val
	}
	return nil
}

func mapOptionalString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}
