package models

import "time"

// TokenKind is the capability an access token grants.
type TokenKind string

const (
	TokenDownload TokenKind = "download"
	TokenPublic   TokenKind = "public"
	TokenOneTime  TokenKind = "one-time"
	TokenVideo    TokenKind = "video-stream"
)

// IsLink reports whether tokens of this kind are file links.
func (k TokenKind) IsLink() bool {
	return k == TokenPublic || k == TokenOneTime
}

// AccessToken is a stored capability. Subject is the file id for link
// tokens and the user id otherwise. ExpiresAt is nil for tokens that never
// expire.
type AccessToken struct {
	Token     string
	Kind      TokenKind
	UserID    string
	Subject   string
	ClientID  string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// ExpiredAt reports whether the token is past its expiry at instant now.
func (t *AccessToken) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}
