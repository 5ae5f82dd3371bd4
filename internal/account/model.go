package account

import (
	"time"

	"github.com/mahalle/mahalle-api/internal/apperr"
)

var (
	ErrInactive = apperr.New(apperr.KindUnauthenticated, "account is inactive")
	ErrBanned   = apperr.New(apperr.KindUnauthenticated, "account is banned")
)

// Role is an ordered account tier.
type Role string

const (
	RoleUser       Role = "user"
	RoleTaxiDriver Role = "taxi_driver"
	RoleBusiness   Role = "business"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Tier values. taxi_driver and business share a tier.
const (
	TierUser = iota
	TierProvider
	TierModerator
	TierAdmin
	TierSuperAdmin
)

var tiers = map[Role]int{
	RoleUser:       TierUser,
	RoleTaxiDriver: TierProvider,
	RoleBusiness:   TierProvider,
	RoleModerator:  TierModerator,
	RoleAdmin:      TierAdmin,
	RoleSuperAdmin: TierSuperAdmin,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := tiers[r]
	return ok
}

// Tier returns the ordering rank of r. Unknown roles rank lowest.
func (r Role) Tier() int {
	return tiers[r]
}

// IsStaff reports whether r is moderator or above.
func (r Role) IsStaff() bool {
	return r.Valid() && r.Tier() >= TierModerator
}

// BypassesGrants reports whether r is authorized without a permission grant.
func (r Role) BypassesGrants() bool {
	return r.Valid() && r.Tier() >= TierAdmin
}

// Account represents a registered phone identity.
type Account struct {
	ID             string
	Phone          string
	Username       string
	FullName       string
	Role           Role
	IsActive       bool
	IsBanned       bool
	NeighborhoodID string
	FCMToken       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Standing returns ErrBanned or ErrInactive when a may not hold a session.
func (a Account) Standing() error {
	if a.IsBanned {
		return ErrBanned
	}
	if !a.IsActive {
		return ErrInactive
	}
	return nil
}

// View is the trimmed public representation returned to clients.
type View struct {
	ID             string `json:"id"`
	Phone          string `json:"phone"`
	Username       string `json:"username,omitempty"`
	Role           Role   `json:"role"`
	NeighborhoodID string `json:"neighborhood_id"`
}

// View returns the public view of a.
func (a Account) View() View {
	return View{
		ID:             a.ID,
		Phone:          a.Phone,
		Username:       a.Username,
		Role:           a.Role,
		NeighborhoodID: a.NeighborhoodID,
	}
}
