package users

import (
	"fmt"
	"slices"
	"unicode"

	"github.com/jrsteele09/equiptrack-client/internal/glob"
	"golang.org/x/crypto/bcrypt"
)

// RoleType is a role held by an EquipTrack user
type RoleType string

const (
	RoleAdmin   RoleType = "admin"   // Manages users and the equipment catalogue
	RoleTeacher RoleType = "teacher" // Borrows equipment and supervises usage
	RoleStudent RoleType = "student" // Borrows equipment
)

// Profile is the user as returned by /auth/me and /users
type Profile struct {
	ID          string     `json:"id,omitempty"`
	Username    string     `json:"username,omitempty"`
	Email       string     `json:"email,omitempty"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Department  string     `json:"department,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Role        RoleType   `json:"role,omitempty"`        // Primary role
	Roles       []RoleType `json:"roles,omitempty"`       // All roles, including the primary one
	Permissions []string   `json:"permissions,omitempty"` // May contain * wildcards
	Active      bool       `json:"active"`
}

// FullName joins first and last name, falling back to the username.
func (p *Profile) FullName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	}
	return p.Username
}

// AllRoles returns Roles plus Role when it is not already listed.
func (p *Profile) AllRoles() []RoleType {
	roles := slices.Clone(p.Roles)
	if p.Role != "" && !slices.Contains(roles, p.Role) {
		roles = append(roles, p.Role)
	}
	return roles
}

// HasRole reports whether the user holds at least one of roles
func (p *Profile) HasRole(roles ...RoleType) bool {
	if p == nil {
		return false
	}
	held := p.AllRoles()
	for _, r := range roles {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}

// Can reports whether every requested permission is granted. A permission is granted when it
// is held verbatim, when "*" is held, or when a wildcard on either side matches the other.
// An empty request grants nothing.
func (p *Profile) Can(permissions ...string) bool {
	if p == nil || len(permissions) == 0 {
		return false
	}
	for _, want := range permissions {
		if !p.grants(want) {
			return false
		}
	}
	return true
}

func (p *Profile) grants(want string) bool {
	for _, held := range p.Permissions {
		if held == want || held == "*" {
			return true
		}
		if glob.HasWildcard(want) && glob.Match(want, held) {
			return true
		}
		if glob.HasWildcard(held) && glob.Match(held, want) {
			return true
		}
	}
	return false
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
