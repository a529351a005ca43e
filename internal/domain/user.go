package domain

import "strings"

type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// User is owned by the identity subsystem; messaging only reads it.
type User struct {
	ID          int64   `json:"id"`
	Email       string  `json:"email"`
	DisplayName *string `json:"display_name,omitempty"`
	Role        Role    `json:"role"`
	ImagePath   *string `json:"image_path,omitempty"`
}

// Username is the display name, falling back to the local part of the email.
func (u *User) Username() string {
	if u.DisplayName != nil {
		if name := strings.TrimSpace(*u.DisplayName); name != "" {
			return name
		}
	}
	return EmailLocalPart(u.Email)
}

// Identity is what a verified credential tells us about the caller.
type Identity struct {
	UserID int64
	Role   Role
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func EmailLocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}
