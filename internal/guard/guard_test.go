package guard

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahalle/mahalle-api/internal/account"
	"github.com/mahalle/mahalle-api/internal/apperr"
	"github.com/mahalle/mahalle-api/internal/permission"
	"github.com/mahalle/mahalle-api/internal/token"
)

type fixture struct {
	guard  *Guard
	tokens *token.Issuer
	logs   *bytes.Buffer
}

func newFixture(t *testing.T, accounts []account.Account, grants ...permission.Grant) fixture {
	t.Helper()
	tokens, err := token.NewIssuer(token.Config{
		AccessSecret:    "primary-secret-primary-secret-00",
		RefreshSecret:   "refresh-secret-refresh-secret-00",
		AccessTTL:       time.Hour,
		RefreshTTL:      24 * time.Hour,
		RegistrationTTL: 30 * time.Minute,
		Issuer:          "mahalle-auth",
	})
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	g := New(tokens, account.NewMemoryRepository(accounts...), permission.NewMemoryRepository(grants...), time.Second,
		slog.New(slog.NewTextHandler(logs, nil)))
	return fixture{guard: g, tokens: tokens, logs: logs}
}

func accessFor(t *testing.T, f fixture, acc account.Account) string {
	t.Helper()
	sess, err := f.tokens.MintSession(context.Background(), token.Subject{ID: acc.ID, Role: string(acc.Role), Phone: acc.Phone})
	require.NoError(t, err)
	return sess.AccessToken
}

func TestAuthenticate(t *testing.T) {
	active := account.Account{ID: uuid.NewString(), Phone: "05550000001", Role: account.RoleUser, IsActive: true}
	inactive := account.Account{ID: uuid.NewString(), Phone: "05550000002", Role: account.RoleUser}
	banned := account.Account{ID: uuid.NewString(), Phone: "05550000003", Role: account.RoleUser, IsActive: true, IsBanned: true}
	ghost := account.Account{ID: uuid.NewString(), Phone: "05550000004", Role: account.RoleUser, IsActive: true}
	f := newFixture(t, []account.Account{active, inactive, banned})
	ctx := context.Background()

	p, err := f.guard.Authenticate(ctx, accessFor(t, f, active))
	require.NoError(t, err)
	assert.Equal(t, active.ID, p.Account.ID)

	tests := []struct {
		name string
		acc  account.Account
		want error
	}{
		{"inactive", inactive, account.ErrInactive},
		{"banned", banned, account.ErrBanned},
		{"missing", ghost, ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.guard.Authenticate(ctx, accessFor(t, f, tt.acc))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
		})
	}
}

func TestAuthenticate_RejectsOtherTokenKinds(t *testing.T) {
	acc := account.Account{ID: uuid.NewString(), Phone: "05550000001", Role: account.RoleUser, IsActive: true}
	f := newFixture(t, []account.Account{acc})

	sess, err := f.tokens.MintSession(context.Background(), token.Subject{ID: acc.ID, Role: "user", Phone: acc.Phone})
	require.NoError(t, err)
	_, err = f.guard.Authenticate(context.Background(), sess.RefreshToken)
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	reg, err := f.tokens.MintRegistration(acc.Phone)
	require.NoError(t, err)
	_, err = f.guard.Authenticate(context.Background(), reg)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestAuthenticate_UsesLiveRole(t *testing.T) {
	acc := account.Account{ID: uuid.NewString(), Phone: "05550000001", Role: account.RoleAdmin, IsActive: true}
	f := newFixture(t, []account.Account{acc})

	sess, err := f.tokens.MintSession(context.Background(), token.Subject{ID: acc.ID, Role: "user", Phone: acc.Phone})
	require.NoError(t, err)
	p, err := f.guard.Authenticate(context.Background(), sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.RoleAdmin, p.Account.Role)
}

func TestAuthorize(t *testing.T) {
	mod := account.Account{ID: uuid.NewString(), Role: account.RoleModerator, IsActive: true}
	f := newFixture(t, nil, permission.Grant{AccountID: mod.ID, Module: "ads", CanRead: true})
	ctx := context.Background()

	tests := []struct {
		name   string
		role   account.Role
		module string
		action permission.Action
		want   error
	}{
		{"super admin bypass", account.RoleSuperAdmin, "ads", permission.ActionDelete, nil},
		{"admin bypass", account.RoleAdmin, "campaigns", permission.ActionApprove, nil},
		{"moderator granted", account.RoleModerator, "ads", permission.ActionRead, nil},
		{"moderator flag off", account.RoleModerator, "ads", permission.ActionDelete, ErrActionDenied},
		{"moderator no row", account.RoleModerator, "pharmacies", permission.ActionRead, ErrNoGrant},
		{"business", account.RoleBusiness, "ads", permission.ActionRead, ErrStaffOnly},
		{"user", account.RoleUser, "ads", permission.ActionRead, ErrStaffOnly},
		{"unknown role", account.Role("root"), "ads", permission.ActionRead, ErrStaffOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Principal{Account: account.Account{ID: mod.ID, Role: tt.role}}
			err := f.guard.Authorize(ctx, p, tt.module, tt.action)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
		})
	}

	assert.Contains(t, f.logs.String(), "no grant for module")
	assert.Contains(t, f.logs.String(), "action not granted")
}
