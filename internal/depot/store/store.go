package store

import (
	"context"
	"errors"

	"github.com/quartzlab/depot/internal/depot/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns
// tidy and testable, and to actively stop people from accidently doing
// transactions within transactions.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	Files() Files

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., refresh rotation).
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// This is the recommended way to handle transactions as it automatically
	// handles commit/rollback logic.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during password login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// DeleteUser cascades to refresh_tokens (per schema).
	DeleteUser(ctx context.Context, userID string) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// DeleteRefreshToken removes a single token by its fingerprint. Returns
	// ErrNotFound when no row was deleted, which is how concurrent rotation
	// losers are detected.
	DeleteRefreshToken(ctx context.Context, hash string) error

	// DeleteUserRefreshTokens bulk removal for a user (e.g., password reset).
	DeleteUserRefreshTokens(ctx context.Context, userID string) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}

type Files interface {
	// UpsertFileMeta records or replaces the ownership record for bucket/key.
	UpsertFileMeta(ctx context.Context, m domain.FileMeta) error

	// GetFileMeta returns the ownership record for bucket/key.
	GetFileMeta(ctx context.Context, bucket, key string) (domain.FileMeta, error)

	// GetFileMetaBatch returns the records present for the given keys in one
	// bucket. Keys with no record are simply absent from the result.
	GetFileMetaBatch(ctx context.Context, bucket string, keys []string) (map[string]domain.FileMeta, error)

	// ListFileMetaByBucket returns all records for a bucket, keyed by object key.
	ListFileMetaByBucket(ctx context.Context, bucket string) (map[string]domain.FileMeta, error)

	// DeleteFileMeta removes the records for the given keys in one bucket.
	// Missing records are not an error.
	DeleteFileMeta(ctx context.Context, bucket string, keys []string) error

	// DeleteFileMetaByBucket removes every record for a bucket.
	DeleteFileMetaByBucket(ctx context.Context, bucket string) error
}
