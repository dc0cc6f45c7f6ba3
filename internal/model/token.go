package model

import "time"

// TokenRecord is the client's view of an authenticated session.
// AccessToken and ExpiresAt are always set and cleared together.
type TokenRecord struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         *User     `json:"user,omitempty"`
}

func (r TokenRecord) Empty() bool {
	return r.AccessToken == ""
}

// AuthPayload is the data section of login, register and refresh responses.
type AuthPayload struct {
	User         *User  `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
