// Package token mints and verifies the registration, access and refresh
// tokens. Access and registration tokens are signed by the primary signer;
// refresh tokens by a separate refresh signer with its own secret.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mahalle/mahalle-api/internal/apperr"
)

// Token types carried in the "type" claim.
const (
	TypeRegistration = "registration"
	TypeAccess       = "access"
	TypeRefresh      = "refresh"
)

var (
	// ErrInvalidToken covers bad signatures, wrong secrets, malformed input and expiry alike.
	ErrInvalidToken = apperr.New(apperr.KindUnauthenticated, "invalid or expired token")
	// ErrInvalidTokenType is returned when a verified token is not of the expected kind.
	ErrInvalidTokenType = apperr.New(apperr.KindInvalidTokenType, "token is not a registration token")
)

// Claims is the payload shared by all three token kinds.
type Claims struct {
	jwt.RegisteredClaims
	Type  string `json:"type"`
	Role  string `json:"role,omitempty"`
	Phone string `json:"phone"`
}

// SubjectID returns the account id of an access or refresh token.
func (c Claims) SubjectID() string {
	return c.Subject
}

// Subject is the identity snapshot embedded in session tokens.
type Subject struct {
	ID    string
	Role  string
	Phone string
}

// Session is an access/refresh pair.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type signer struct {
	key    []byte
	issuer string
	now    func() time.Time
}

func (s signer) sign(claims Claims, ttl time.Duration) (string, error) {
	now := s.now()
	claims.Issuer = s.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Type, err)
	}
	return signed, nil
}

func (s signer) verify(tokenString string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// PrimarySigner holds the access-token secret. It signs access and registration tokens.
type PrimarySigner struct{ s signer }

// Verify checks signature and expiry against the primary secret.
func (p PrimarySigner) Verify(tokenString string) (Claims, error) {
	return p.s.verify(tokenString)
}

// RefreshSigner holds the refresh-token secret and signs nothing else.
type RefreshSigner struct{ s signer }

// Verify checks signature and expiry against the refresh secret.
func (r RefreshSigner) Verify(tokenString string) (Claims, error) {
	return r.s.verify(tokenString)
}

// Config configures an Issuer.
type Config struct {
	AccessSecret    string
	RefreshSecret   string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RegistrationTTL time.Duration
	Issuer          string
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.primary.s.now = now
		i.refresh.s.now = now
	}
}

// Issuer mints and verifies tokens.
type Issuer struct {
	primary         PrimarySigner
	refresh         RefreshSigner
	accessTTL       time.Duration
	refreshTTL      time.Duration
	registrationTTL time.Duration
}

// NewIssuer builds an Issuer from two distinct secrets.
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token: both signing secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.RegistrationTTL <= 0 {
		return nil, errors.New("token: lifetimes must be positive")
	}

	i := &Issuer{
		primary:         PrimarySigner{s: signer{key: []byte(cfg.AccessSecret), issuer: cfg.Issuer, now: time.Now}},
		refresh:         RefreshSigner{s: signer{key: []byte(cfg.RefreshSecret), issuer: cfg.Issuer, now: time.Now}},
		accessTTL:       cfg.AccessTTL,
		refreshTTL:      cfg.RefreshTTL,
		registrationTTL: cfg.RegistrationTTL,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Primary returns the primary signer.
func (i *Issuer) Primary() PrimarySigner { return i.primary }

// Refresh returns the refresh signer.
func (i *Issuer) Refresh() RefreshSigner { return i.refresh }

// AccessTTL is the lifetime of access tokens.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// MintRegistration signs a single-purpose registration token for phone.
func (i *Issuer) MintRegistration(phone string) (string, error) {
	return i.primary.s.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{ID: uuid.NewString()},
		Type:             TypeRegistration,
		Phone:            phone,
	}, i.registrationTTL)
}

// MintAccess signs a new access token for sub and returns its lifetime in seconds.
func (i *Issuer) MintAccess(sub Subject) (string, int64, error) {
	signed, err := i.primary.s.sign(sessionClaims(sub, TypeAccess), i.accessTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(i.accessTTL.Seconds()), nil
}

// MintSession signs the access and refresh tokens for sub concurrently.
func (i *Issuer) MintSession(ctx context.Context, sub Subject) (Session, error) {
	var access, refresh string
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		access, err = i.primary.s.sign(sessionClaims(sub, TypeAccess), i.accessTTL)
		return err
	})
	g.Go(func() error {
		var err error
		refresh, err = i.refresh.s.sign(sessionClaims(sub, TypeRefresh), i.refreshTTL)
		return err
	})
	if err := g.Wait(); err != nil {
		return Session{}, err
	}
	return Session{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(i.accessTTL.Seconds())}, nil
}

// VerifyAccess verifies an access token.
func (i *Issuer) VerifyAccess(tokenString string) (Claims, error) {
	claims, err := i.primary.Verify(tokenString)
	if err != nil {
		return Claims{}, err
	}
	if claims.Type != TypeAccess || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh verifies a refresh token.
func (i *Issuer) VerifyRefresh(tokenString string) (Claims, error) {
	claims, err := i.refresh.Verify(tokenString)
	if err != nil {
		return Claims{}, err
	}
	if claims.Type != TypeRefresh || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRegistration verifies a registration token. Any validly signed token
// whose type is not exactly "registration" fails with ErrInvalidTokenType.
func (i *Issuer) VerifyRegistration(tokenString string) (Claims, error) {
	claims, err := i.primary.Verify(tokenString)
	if err != nil {
		return Claims{}, err
	}
	if claims.Type != TypeRegistration {
		return Claims{}, ErrInvalidTokenType
	}
	if claims.Phone == "" || claims.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Remaining returns how long claims stay valid from now.
func (i *Issuer) Remaining(claims Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	d := claims.ExpiresAt.Time.Sub(i.primary.s.now())
	if d < 0 {
		return 0
	}
	return d
}

func sessionClaims(sub Subject, typ string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub.ID},
		Type:             typ,
		Role:             sub.Role,
		Phone:            sub.Phone,
	}
}
