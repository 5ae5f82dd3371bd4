package permission

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/mahalle/mahalle-api/internal/account"
	"github.com/mahalle/mahalle-api/internal/apperr"
)

var modulePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,31}$`)

var (
	ErrInvalidModule   = apperr.Invalid("module must be 2-32 lowercase letters, digits or underscores")
	ErrNotModerator    = apperr.Invalid("grants can only be assigned to moderators")
	ErrAccountNotFound = apperr.New(apperr.KindNotFound, "account not found")
	ErrGrantNotFound   = apperr.New(apperr.KindNotFound, "grant not found")
)

// Flags is the capability set written by an administrator.
type Flags struct {
	CanRead    bool `json:"can_read"`
	CanCreate  bool `json:"can_create"`
	CanUpdate  bool `json:"can_update"`
	CanDelete  bool `json:"can_delete"`
	CanApprove bool `json:"can_approve"`
}

// Service administers moderator grants.
type Service struct {
	grants   Repository
	accounts account.Repository
	timeout  time.Duration
	now      func() time.Time
}

// NewService creates a grant administration service. Store calls are bounded by timeout.
func NewService(grants Repository, accounts account.Repository, timeout time.Duration) *Service {
	return &Service{grants: grants, accounts: accounts, timeout: timeout, now: time.Now}
}

// List returns every grant held by accountID.
func (s *Service) List(ctx context.Context, accountID string) ([]Grant, error) {
	if _, err := s.target(ctx, accountID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	grants, err := s.grants.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if grants == nil {
		grants = []Grant{}
	}
	return grants, nil
}

// Put creates or replaces the grant for (accountID, module).
func (s *Service) Put(ctx context.Context, accountID, module string, flags Flags) (Grant, error) {
	if !modulePattern.MatchString(module) {
		return Grant{}, ErrInvalidModule
	}
	acc, err := s.target(ctx, accountID)
	if err != nil {
		return Grant{}, err
	}
	if acc.Role != account.RoleModerator {
		return Grant{}, ErrNotModerator
	}

	g := Grant{
		AccountID:  accountID,
		Module:     module,
		CanRead:    flags.CanRead,
		CanCreate:  flags.CanCreate,
		CanUpdate:  flags.CanUpdate,
		CanDelete:  flags.CanDelete,
		CanApprove: flags.CanApprove,
		UpdatedAt:  s.now().UTC(),
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.grants.Upsert(ctx, g); err != nil {
		return Grant{}, err
	}
	return g, nil
}

// Remove deletes the grant for (accountID, module).
func (s *Service) Remove(ctx context.Context, accountID, module string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.grants.Delete(ctx, accountID, module)
	if errors.Is(err, ErrNotFound) {
		return ErrGrantNotFound
	}
	return err
}

func (s *Service) target(ctx context.Context, accountID string) (account.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	acc, err := s.accounts.FindByID(ctx, accountID)
	if errors.Is(err, account.ErrNotFound) {
		return account.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return account.Account{}, fmt.Errorf("load grant target: %w", err)
	}
	return acc, nil
}
