package domain

// TokenPair holds the session tokens. A refresh replaces both tokens or
// leaves both untouched; they are never partially updated.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
