package models

import "time"

// Token — OAuth2-токен amoCRM в том виде, в котором он лежит в хранилище.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    int64  `json:"expires_at"`

	// старый TOKEN.txt хранил абсолютное время истечения под этим ключом
	LegacyExpiresIn int64 `json:"expires_in,omitempty"`
}

// Expiry returns the absolute expiration instant.
func (t *Token) Expiry() time.Time {
	if t.ExpiresAt == 0 && t.LegacyExpiresIn != 0 {
		return time.Unix(t.LegacyExpiresIn, 0)
	}
	return time.Unix(t.ExpiresAt, 0)
}

// Expired reports whether now is at or past the expiry instant.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.Expiry())
}
