package domain

import "time"

type User struct {
	ID           string
	Username     string // unique, never changes
	PasswordHash string // argon2id PHC string
	Scopes       []string
	TOTPSecret   *string // base32, nil when no second factor is enrolled
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RestrictsScopes reports whether the user narrows the client's scopes.
// Users without explicit scopes may receive anything the client may.
func (u User) RestrictsScopes() bool {
	return len(u.Scopes) > 0
}
