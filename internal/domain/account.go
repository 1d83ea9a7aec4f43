package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the account's single role. Values match the stored strings.
type Role string

const (
	RoleCustomer    Role = "Customer"
	RoleVendor      Role = "Vendor"
	RoleDeliveryMan Role = "Delivery_Man"
	RoleAdmin       Role = "Admin"
	RoleSuperAdmin  Role = "Super_Admin"
)

// Roles lists every known role.
var Roles = []Role{RoleCustomer, RoleVendor, RoleDeliveryMan, RoleAdmin, RoleSuperAdmin}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Account is the identity root. Email is stored normalized (see NormalizeEmail).
type Account struct {
	AccountID    string    `json:"id" dynamodbav:"account_id"`
	Name         string    `json:"name" dynamodbav:"name"`
	Email        string    `json:"email" dynamodbav:"email"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	Role         Role      `json:"role" dynamodbav:"role"`
	Active       bool      `json:"is_active" dynamodbav:"active"`
	Verified     bool      `json:"is_verified" dynamodbav:"verified"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated" dynamodbav:"updated_at"`
}

// NormalizeEmail makes email comparisons case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// creatable holds the roles a brand new account may start with.
var creatable = map[Role]bool{
	RoleCustomer:    true,
	RoleVendor:      true,
	RoleDeliveryMan: true,
	RoleAdmin:       true,
}

// upgrades is the precondition table for in-place role changes: upgrades[current][target].
// Same-role and missing entries are rejected.
var upgrades = map[Role]map[Role]bool{
	RoleCustomer: {
		RoleVendor:      true,
		RoleDeliveryMan: true,
		RoleAdmin:       true,
	},
}

// CanCreate reports whether a new account may be created holding target.
func CanCreate(target Role) error {
	if !creatable[target] {
		return Errorf(KindBadRequest, "role %s cannot be assigned at registration", target)
	}
	return nil
}

// UpgradeRole returns a copy of a holding target, or a Conflict when the
// transition is not an allowed monotonic upgrade.
func UpgradeRole(a Account, target Role) (Account, error) {
	if !target.Valid() {
		return a, Errorf(KindBadRequest, "unknown role %q", target)
	}
	if a.Role == target {
		return a, Errorf(KindConflict, "%s already exists", target.Label())
	}
	if !upgrades[a.Role][target] {
		return a, Errorf(KindConflict, "account already holds role %s", a.Role)
	}
	a.Role = target
	return a, nil
}

// Label is the role name used in user-facing messages.
func (r Role) Label() string {
	switch r {
	case RoleDeliveryMan:
		return "DeliveryMan"
	case RoleSuperAdmin:
		return "SuperAdmin"
	}
	return string(r)
}

// String is used in log lines.
func (a *Account) String() string {
	return fmt.Sprintf("account(%s, %s, %s)", a.AccountID, a.Email, a.Role)
}
