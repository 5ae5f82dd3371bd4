// Package guard authenticates access tokens against the live account and
// authorizes principals for module actions.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mahalle/mahalle-api/internal/account"
	"github.com/mahalle/mahalle-api/internal/apperr"
	"github.com/mahalle/mahalle-api/internal/permission"
	"github.com/mahalle/mahalle-api/internal/token"
)

var (
	ErrAccountNotFound = apperr.New(apperr.KindUnauthenticated, "account not found")
	ErrNoGrant         = apperr.New(apperr.KindForbidden, "no grant for module")
	ErrActionDenied    = apperr.New(apperr.KindForbidden, "action not granted")
	ErrStaffOnly       = apperr.New(apperr.KindForbidden, "staff only")
)

// Principal is an authenticated caller resolved to its current account.
type Principal struct {
	Account account.Account
	Claims  token.Claims
}

// Guard runs the identity and permission stages.
type Guard struct {
	tokens   *token.Issuer
	accounts account.Repository
	grants   permission.Repository
	timeout  time.Duration
	logger   *slog.Logger
}

// New constructs a Guard. Store lookups are bounded by timeout.
func New(tokens *token.Issuer, accounts account.Repository, grants permission.Repository, timeout time.Duration, logger *slog.Logger) *Guard {
	return &Guard{tokens: tokens, accounts: accounts, grants: grants, timeout: timeout, logger: logger}
}

// Authenticate verifies an access token and reloads the account it names.
// Roles come from the live account, not the token.
func (g *Guard) Authenticate(ctx context.Context, bearer string) (Principal, error) {
	claims, err := g.tokens.VerifyAccess(bearer)
	if err != nil {
		return Principal{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	acc, err := g.accounts.FindByID(ctx, claims.SubjectID())
	if errors.Is(err, account.ErrNotFound) {
		return Principal{}, ErrAccountNotFound
	}
	if err != nil {
		return Principal{}, fmt.Errorf("load principal: %w", err)
	}
	if err := acc.Standing(); err != nil {
		return Principal{}, err
	}
	return Principal{Account: acc, Claims: claims}, nil
}

// Authorize decides whether p may perform action in module. Admins and above
// pass unconditionally; moderators need a grant with the action's flag set.
func (g *Guard) Authorize(ctx context.Context, p Principal, module string, action permission.Action) error {
	role := p.Account.Role
	if role.BypassesGrants() {
		return nil
	}
	if !role.IsStaff() {
		g.logger.InfoContext(ctx, "authorization denied",
			slog.String("reason", "staff only"),
			slog.String("account_id", p.Account.ID),
			slog.String("role", string(role)),
			slog.String("module", module))
		return ErrStaffOnly
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	grant, err := g.grants.Find(ctx, p.Account.ID, module)
	if errors.Is(err, permission.ErrNotFound) {
		g.logger.InfoContext(ctx, "authorization denied: no grant for module",
			slog.String("account_id", p.Account.ID),
			slog.String("module", module),
			slog.String("action", string(action)))
		return ErrNoGrant
	}
	if err != nil {
		return fmt.Errorf("load grant: %w", err)
	}
	if !grant.Allows(action) {
		g.logger.InfoContext(ctx, "authorization denied: action not granted",
			slog.String("account_id", p.Account.ID),
			slog.String("module", module),
			slog.String("action", string(action)))
		return ErrActionDenied
	}
	return nil
}
