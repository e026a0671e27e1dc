package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
)

type SocialAccountRepository interface {
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
	ListActive(ctx context.Context) ([]*models.SocialAccount, error)
	Deactivate(ctx context.Context, id int64) (bool, error)
	TouchLastSync(ctx context.Context, id int64, at time.Time) error
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const accountColumns = `id, user_id, remote_user_id, username, access_token, is_active,
	last_sync_at, deactivated_at, created_at, updated_at`

func scanAccount(row scanner) (*models.SocialAccount, error) {
	var sa models.SocialAccount
	err := row.Scan(&sa.ID, &sa.UserID, &sa.RemoteUserID, &sa.Username, &sa.AccessToken, &sa.IsActive,
		&sa.LastSyncAt, &sa.DeactivatedAt, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts WHERE id = $1`

	sa, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return sa, nil
}

func (r *socialAccountRepository) ListActive(ctx context.Context) ([]*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts WHERE is_active ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, sa)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Deactivate switches an active account off. Reactivation only happens
// through a manual reconnect, never here.
func (r *socialAccountRepository) Deactivate(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE social_accounts
		SET is_active = FALSE,
			deactivated_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND is_active
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *socialAccountRepository) TouchLastSync(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE social_accounts SET last_sync_at = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return err
}
