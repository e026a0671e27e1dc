package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/pkg/utils"
	"go.uber.org/zap"
)

var (
	ErrAccountInactive = errors.New("social account is inactive")
	ErrMockToken       = errors.New("access token carries a mock prefix")
	ErrTokenTooShort   = errors.New("access token is shorter than the minimum length")
)

// SecretStore decrypts persisted credentials.
type SecretStore interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

// TokenValidator decides whether a decrypted token is usable.
type TokenValidator interface {
	Validate(token string) error
}

// ShapeValidator rejects tokens by their shape alone: placeholder tokens left
// behind by development tooling and truncated values.
type ShapeValidator struct {
	MinLength  int
	MockPrefix string
}

func (v ShapeValidator) Validate(token string) error {
	if v.MockPrefix != "" && strings.HasPrefix(token, v.MockPrefix) {
		return ErrMockToken
	}
	if len(token) < v.MinLength {
		return ErrTokenTooShort
	}
	return nil
}

type TokenGuard interface {
	// Resolve returns the plaintext access token of acc. When the token is
	// unusable the account is deactivated and an InvalidCredential error is
	// returned.
	Resolve(ctx context.Context, acc *models.SocialAccount) (string, error)
	// Revoke deactivates acc after the platform refused its token and
	// returns the InvalidCredential error to report for the job.
	Revoke(ctx context.Context, acc *models.SocialAccount, cause error) error
}

type tokenGuard struct {
	secrets   SecretStore
	validator TokenValidator
	sa        repository.SocialAccountRepository
	logger    *zap.Logger
}

func NewTokenGuard(
	secrets SecretStore,
	validator TokenValidator,
	sa repository.SocialAccountRepository,
	logger *zap.Logger) TokenGuard {
	return &tokenGuard{
		secrets:   secrets,
		validator: validator,
		sa:        sa,
		logger:    logger,
	}
}

func (g *tokenGuard) Resolve(ctx context.Context, acc *models.SocialAccount) (string, error) {
	const op = "token guard"

	if !acc.IsActive {
		return "", InvalidCredential(op, fmt.Errorf("account %d: %w", acc.ID, ErrAccountInactive))
	}

	token, err := g.secrets.Decrypt(acc.AccessToken)
	switch {
	case errors.Is(err, utils.ErrNotEncrypted):
		// Rows written before encryption was introduced.
		token = acc.AccessToken
	case err != nil:
		return "", g.reject(ctx, acc, err)
	}

	if err := g.validator.Validate(token); err != nil {
		return "", g.reject(ctx, acc, err)
	}

	return token, nil
}

func (g *tokenGuard) Revoke(ctx context.Context, acc *models.SocialAccount, cause error) error {
	return g.reject(ctx, acc, cause)
}

func (g *tokenGuard) reject(ctx context.Context, acc *models.SocialAccount, cause error) error {
	g.logger.Warn("rejecting access token",
		zap.Int64("account_id", acc.ID),
		zap.String("username", acc.Username),
		zap.Error(cause),
	)

	if _, err := g.sa.Deactivate(ctx, acc.ID); err != nil {
		return Transient("deactivate account", err)
	}
	acc.IsActive = false

	return InvalidCredential("token guard", fmt.Errorf("account %d: %w", acc.ID, cause))
}
