// Package auth implements the phone sign-in flow: code request, code
// verification, first-time registration, access refresh and logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mahalle/mahalle-api/internal/account"
	"github.com/mahalle/mahalle-api/internal/apperr"
	"github.com/mahalle/mahalle-api/internal/challenge"
	"github.com/mahalle/mahalle-api/internal/neighborhood"
	"github.com/mahalle/mahalle-api/internal/otp"
	"github.com/mahalle/mahalle-api/internal/phone"
	"github.com/mahalle/mahalle-api/internal/token"
)

const usedRegistrationPrefix = "reg:used:"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

var (
	ErrCodeRequired         = apperr.Invalid("otp is required")
	ErrInvalidUsername      = apperr.Invalid("username must be 3-30 letters, digits or underscores")
	ErrFullNameTooLong      = apperr.Invalid("full_name must be at most 100 characters")
	ErrNeighborhoodRequired = apperr.Invalid("neighborhood_id is required")
	ErrUsernameTaken        = apperr.New(apperr.KindUsernameTaken, "username is already taken")
	ErrInvalidNeighborhood  = apperr.New(apperr.KindInvalidReference, "neighborhood does not exist or is inactive")
	ErrAccountExists        = apperr.New(apperr.KindAccountExists, "an account already exists for this phone")
	ErrRegistrationUsed     = apperr.New(apperr.KindUnauthenticated, "registration token already used")
	ErrInvalidRefresh       = apperr.New(apperr.KindUnauthenticated, "invalid refresh token")
)

// Profile is the data a new user supplies at registration.
type Profile struct {
	Username       string
	FullName       string
	NeighborhoodID string
	FCMToken       string
}

// Outcome is the result of a successful code verification. Exactly one of
// RegistrationToken (new phone) or Session (known account) is set.
type Outcome struct {
	NewIdentity       bool
	RegistrationToken string
	Session           token.Session
	Account           account.View
}

// Registered is the result of a completed registration.
type Registered struct {
	Session token.Session
	Account account.View
}

// AccessGrant is a refreshed access token.
type AccessGrant struct {
	AccessToken string
	ExpiresIn   int64
}

// Service orchestrates the OTP manager, token issuer and account store.
type Service struct {
	codes         *otp.Manager
	tokens        *token.Issuer
	accounts      account.Repository
	neighborhoods neighborhood.Repository
	markers       challenge.Store
	timeout       time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewService wires the sign-in flow. Account and neighborhood calls are bounded by timeout.
func NewService(codes *otp.Manager, tokens *token.Issuer, accounts account.Repository,
	neighborhoods neighborhood.Repository, markers challenge.Store, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		codes:         codes,
		tokens:        tokens,
		accounts:      accounts,
		neighborhoods: neighborhoods,
		markers:       markers,
		timeout:       timeout,
		logger:        logger,
		now:           time.Now,
	}
}

// RequestCode canonicalizes rawPhone and issues a code for it.
func (s *Service) RequestCode(ctx context.Context, rawPhone string) (otp.Challenge, error) {
	p, err := phone.Normalize(rawPhone)
	if err != nil {
		return otp.Challenge{}, err
	}
	ch, err := s.codes.RequestCode(ctx, p)
	if err != nil {
		return otp.Challenge{}, err
	}
	s.logger.InfoContext(ctx, "otp issued", slog.String("phone", phone.Mask(p)))
	return ch, nil
}

// VerifyCode checks code and either signs the caller in or hands out a registration token.
func (s *Service) VerifyCode(ctx context.Context, rawPhone, code string) (Outcome, error) {
	p, err := phone.Normalize(rawPhone)
	if err != nil {
		return Outcome{}, err
	}
	if code == "" {
		return Outcome{}, ErrCodeRequired
	}
	if err := s.codes.Verify(ctx, p, code); err != nil {
		return Outcome{}, err
	}

	acc, err := s.findByPhone(ctx, p)
	if errors.Is(err, account.ErrNotFound) {
		reg, err := s.tokens.MintRegistration(p)
		if err != nil {
			return Outcome{}, fmt.Errorf("mint registration token: %w", err)
		}
		return Outcome{NewIdentity: true, RegistrationToken: reg}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if err := acc.Standing(); err != nil {
		return Outcome{}, err
	}

	sess, err := s.tokens.MintSession(ctx, subjectOf(acc))
	if err != nil {
		return Outcome{}, fmt.Errorf("mint session: %w", err)
	}
	s.logger.InfoContext(ctx, "signed in", slog.String("account_id", acc.ID))
	return Outcome{Session: sess, Account: acc.View()}, nil
}

// CompleteRegistration creates the account for the phone a registration token
// was issued to. A token creates at most one account.
func (s *Service) CompleteRegistration(ctx context.Context, registrationToken string, profile Profile) (Registered, error) {
	claims, err := s.tokens.VerifyRegistration(registrationToken)
	if err != nil {
		return Registered{}, err
	}
	marker := usedRegistrationPrefix + claims.ID
	used, err := s.markers.Exists(ctx, marker)
	if err != nil {
		return Registered{}, fmt.Errorf("check registration marker: %w", err)
	}
	if used {
		return Registered{}, ErrRegistrationUsed
	}

	profile.Username = strings.TrimSpace(profile.Username)
	profile.FullName = strings.TrimSpace(profile.FullName)
	if err := validateProfile(profile); err != nil {
		return Registered{}, err
	}
	if err := s.checkReferences(ctx, claims.Phone, profile); err != nil {
		return Registered{}, err
	}

	consumed, err := s.markers.SetNX(ctx, marker, claims.Phone, s.tokens.Remaining(claims))
	if err != nil {
		return Registered{}, fmt.Errorf("consume registration token: %w", err)
	}
	if !consumed {
		return Registered{}, ErrRegistrationUsed
	}

	now := s.now().UTC()
	acc := account.Account{
		ID:             uuid.NewString(),
		Phone:          claims.Phone,
		Username:       profile.Username,
		FullName:       profile.FullName,
		Role:           account.RoleUser,
		IsActive:       true,
		NeighborhoodID: profile.NeighborhoodID,
		FCMToken:       profile.FCMToken,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.create(ctx, acc); err != nil {
		switch {
		case errors.Is(err, account.ErrPhoneTaken):
			return Registered{}, ErrAccountExists
		case errors.Is(err, account.ErrUsernameTaken):
			err = ErrUsernameTaken
		}
		if delErr := s.markers.Del(context.WithoutCancel(ctx), marker); delErr != nil {
			s.logger.ErrorContext(ctx, "release registration marker", slog.Any("error", delErr))
		}
		return Registered{}, err
	}

	sess, err := s.tokens.MintSession(ctx, subjectOf(acc))
	if err != nil {
		return Registered{}, fmt.Errorf("mint session: %w", err)
	}
	s.logger.InfoContext(ctx, "account registered", slog.String("account_id", acc.ID), slog.String("phone", phone.Mask(acc.Phone)))
	return Registered{Session: sess, Account: acc.View()}, nil
}

// Refresh mints a new access token from a refresh token. The refresh token
// itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AccessGrant, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return AccessGrant{}, ErrInvalidRefresh
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	acc, err := s.accounts.FindByID(ctx, claims.SubjectID())
	if errors.Is(err, account.ErrNotFound) {
		return AccessGrant{}, ErrInvalidRefresh
	}
	if err != nil {
		return AccessGrant{}, fmt.Errorf("load account: %w", err)
	}
	if acc.Standing() != nil {
		return AccessGrant{}, ErrInvalidRefresh
	}

	access, expiresIn, err := s.tokens.MintAccess(subjectOf(acc))
	if err != nil {
		return AccessGrant{}, fmt.Errorf("mint access token: %w", err)
	}
	return AccessGrant{AccessToken: access, ExpiresIn: expiresIn}, nil
}

// Logout forgets the device push token when one is given. Tokens stay valid until they expire.
func (s *Service) Logout(ctx context.Context, accountID, pushToken string) error {
	if pushToken == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.accounts.ClearPushToken(ctx, accountID, pushToken); err != nil && !errors.Is(err, account.ErrNotFound) {
		return fmt.Errorf("clear push token: %w", err)
	}
	return nil
}

func (s *Service) checkReferences(ctx context.Context, p string, profile Profile) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if profile.Username != "" {
		taken, err := s.accounts.UsernameExists(ctx, profile.Username)
		if err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if taken {
			return ErrUsernameTaken
		}
	}

	n, err := s.neighborhoods.FindByID(ctx, profile.NeighborhoodID)
	if errors.Is(err, neighborhood.ErrNotFound) || (err == nil && !n.IsActive) {
		return ErrInvalidNeighborhood
	}
	if err != nil {
		return fmt.Errorf("load neighborhood: %w", err)
	}

	_, err = s.accounts.FindByPhone(ctx, p)
	if err == nil {
		return ErrAccountExists
	}
	if !errors.Is(err, account.ErrNotFound) {
		return fmt.Errorf("load account: %w", err)
	}
	return nil
}

func (s *Service) findByPhone(ctx context.Context, p string) (account.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.accounts.FindByPhone(ctx, p)
}

func (s *Service) create(ctx context.Context, acc account.Account) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.accounts.Create(ctx, acc)
}

func validateProfile(p Profile) error {
	if p.Username != "" && !usernamePattern.MatchString(p.Username) {
		return ErrInvalidUsername
	}
	if utf8.RuneCountInString(p.FullName) > 100 {
		return ErrFullNameTooLong
	}
	if p.NeighborhoodID == "" {
		return ErrNeighborhoodRequired
	}
	return nil
}

func subjectOf(acc account.Account) token.Subject {
	return token.Subject{ID: acc.ID, Role: string(acc.Role), Phone: acc.Phone}
}
