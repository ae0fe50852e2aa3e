package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

const DefaultCredits = 5

// User is an authenticated account. Role is empty until the user picks one on
// first login.
type User struct {
	ID            string
	GoogleSubject string
	Email         string
	FirstName     string
	LastName      string
	Role          string
	Credits       int
	CreatedAt     time.Time
}

func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(u.GoogleSubject) == "" {
		return errors.New("google subject is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("email is required")
	}
	if u.Role != "" && !ValidRole(u.Role) {
		return errors.New("role must be student or admin")
	}
	return nil
}

func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

func ValidRole(role string) bool {
	return role == RoleStudent || role == RoleAdmin
}
