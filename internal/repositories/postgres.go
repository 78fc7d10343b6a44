package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/db"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, credits, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, user.ID, user.Email, user.Password, user.Credits, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, credits, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.Password, &user.Credits, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by email: %w", err)
	}

	return user, nil
}

// Update modifies an existing user record. Credits are excluded; balances
// change only through the ledger.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET email = $2, password_hash = $3, updated_at = $4
        WHERE id = $1
    `, user.ID, user.Email, user.Password, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresCreditLedger implements the atomic credit balance operations on the
// users table. The debit is a single conditional UPDATE so two concurrent
// requests can never both spend the last credit.
type PostgresCreditLedger struct {
	pool db.Pool
}

// NewPostgresCreditLedger constructs a credit ledger backed by PostgreSQL.
func NewPostgresCreditLedger(pool db.Pool) *PostgresCreditLedger {
	return &PostgresCreditLedger{pool: pool}
}

// ConsumeOne debits a single credit and returns the remaining balance, or the
// models.CreditsExhausted sentinel when the balance is already zero.
func (l *PostgresCreditLedger) ConsumeOne(ctx context.Context, userID string) (int, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var remaining int
	err = conn.QueryRow(ctx, `
        UPDATE users
        SET credits = credits - 1, updated_at = NOW()
        WHERE id = $1 AND credits > 0
        RETURNING credits
    `, userID).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("debit credit: %w", err)
	}

	// No row matched: either the user is unknown or the balance is empty.
	// Nothing was debited in either case.
	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check user existence: %w", err)
	}
	if !exists {
		return 0, ErrNotFound
	}

	return models.CreditsExhausted, nil
}

// Balance returns the user's current credit balance.
func (l *PostgresCreditLedger) Balance(ctx context.Context, userID string) (int, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var balance int
	if err := conn.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("select credits: %w", err)
	}

	return balance, nil
}

// Grant adds credits to the user's balance and returns the new total.
func (l *PostgresCreditLedger) Grant(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", amount)
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var balance int
	err = conn.QueryRow(ctx, `
        UPDATE users
        SET credits = credits + $2, updated_at = NOW()
        WHERE id = $1
        RETURNING credits
    `, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("grant credits: %w", err)
	}

	return balance, nil
}

// PostgresTryOnRepository provides PostgreSQL-backed persistence for generation records.
type PostgresTryOnRepository struct {
	pool db.Pool
}

// NewPostgresTryOnRepository constructs a try-on repository backed by PostgreSQL.
func NewPostgresTryOnRepository(pool db.Pool) *PostgresTryOnRepository {
	return &PostgresTryOnRepository{pool: pool}
}

// Create stores a new generation record.
func (r *PostgresTryOnRepository) Create(ctx context.Context, record models.TryOn) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	status := record.Status
	if status == "" {
		status = models.TryOnStatusPending
	}
	archiveStatus := record.ArchiveStatus
	if archiveStatus == "" {
		archiveStatus = models.ArchiveStatusPending
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO tryons (id, user_id, with_video, status, image_url, video_url, elapsed_ms, created_at, completed_at, archive_status, archive_image_url, archive_video_url)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `, record.ID, record.UserID, record.WithVideo, status, record.ImageURL, record.VideoURL, record.ElapsedMs, record.CreatedAt, record.CompletedAt, archiveStatus, record.ArchiveImageURL, record.ArchiveVideoURL)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert tryon: %w", err)
	}

	return nil
}

// Complete records a successful generation outcome.
func (r *PostgresTryOnRepository) Complete(ctx context.Context, id, imageURL, videoURL string, elapsedMs int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE tryons
        SET status = $2, image_url = $3, video_url = $4, elapsed_ms = $5, completed_at = NOW()
        WHERE id = $1
    `, id, models.TryOnStatusCompleted, imageURL, videoURL, elapsedMs)
	if err != nil {
		return fmt.Errorf("complete tryon: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkFailed records a failed generation. The credit stays spent; the record
// is the audit trail for billed-but-failed attempts.
func (r *PostgresTryOnRepository) MarkFailed(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE tryons
        SET status = $2, completed_at = NOW()
        WHERE id = $1
    `, id, models.TryOnStatusFailed)
	if err != nil {
		return fmt.Errorf("mark tryon failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListForUser returns the user's generation history, newest first.
func (r *PostgresTryOnRepository) ListForUser(ctx context.Context, userID string) ([]models.TryOn, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, with_video, status, image_url, video_url, elapsed_ms, created_at, completed_at, archive_status, archive_image_url, archive_video_url
        FROM tryons
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT 100
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query tryons: %w", err)
	}
	defer rows.Close()

	var records []models.TryOn
	for rows.Next() {
		var (
			record      models.TryOn
			completedAt sql.NullTime
		)

		if err := rows.Scan(&record.ID, &record.UserID, &record.WithVideo, &record.Status, &record.ImageURL, &record.VideoURL, &record.ElapsedMs, &record.CreatedAt, &completedAt, &record.ArchiveStatus, &record.ArchiveImageURL, &record.ArchiveVideoURL); err != nil {
			return nil, fmt.Errorf("scan tryon: %w", err)
		}

		if completedAt.Valid {
			t := completedAt.Time.UTC()
			record.CompletedAt = &t
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tryons: %w", err)
	}

	return records, nil
}

// MarkArchiveReady records the re-homed asset locations after archiving.
func (r *PostgresTryOnRepository) MarkArchiveReady(ctx context.Context, id, imageLocation, videoLocation string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE tryons
        SET archive_status = $2, archive_image_url = $3, archive_video_url = $4
        WHERE id = $1
    `, id, models.ArchiveStatusReady, imageLocation, videoLocation)
	if err != nil {
		return fmt.Errorf("update tryon archive ready: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkArchiveFailed records a failed archive attempt for the provided record.
func (r *PostgresTryOnRepository) MarkArchiveFailed(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE tryons
        SET archive_status = $2, archive_image_url = '', archive_video_url = ''
        WHERE id = $1
    `, id, models.ArchiveStatusFailed)
	if err != nil {
		return fmt.Errorf("update tryon archive failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ CreditLedger = (*PostgresCreditLedger)(nil)
var _ TryOnRepository = (*PostgresTryOnRepository)(nil)
