package model

import (
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// User is the authenticated account as the backend returns it. The same
// struct is cached next to the tokens as the user snapshot, so Role must
// always mirror the backend's value: it gates admin access.
type User struct {
	ID        string     `json:"_id"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"isActive"`
	Avatar    string     `json:"avatar,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Address   *Address   `json:"address,omitempty"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (u User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ProfileUpdate is a partial user; nil fields are left untouched by the backend.
type ProfileUpdate struct {
	FirstName *string  `json:"firstName,omitempty"`
	LastName  *string  `json:"lastName,omitempty"`
	Phone     *string  `json:"phone,omitempty"`
	Avatar    *string  `json:"avatar,omitempty"`
	Address   *Address `json:"address,omitempty"`
}
