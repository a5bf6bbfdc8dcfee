package account

import (
	"context"
	"errors"

	domain "hear/internal/domain/account"
)

// ErrNotFound is returned when no account or token matches.
var ErrNotFound = errors.New("account not found")

// Store persists local-backend accounts and their issued tokens.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	Create(ctx context.Context, value domain.Account) error
	SaveLoginState(ctx context.Context, value domain.Account) error
	SaveToken(ctx context.Context, token domain.Token) error
	GetToken(ctx context.Context, accessToken string) (domain.Token, error)
	GetTokenByRefresh(ctx context.Context, refreshToken string) (domain.Token, error)
	DeleteToken(ctx context.Context, accessToken string) error
}
