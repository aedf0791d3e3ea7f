// Package auth signs and verifies the HS256 JWTs used by the server: the
// principal token minted by the identity layer and the short-lived download
// and video-stream tokens issued by the token manager.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the registered claims plus the fields we put in every token.
// Kind is empty for principal tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID        string
	Email         string `json:",omitempty"`
	EmailVerified bool   `json:",omitempty"`
	S3Enabled     bool   `json:",omitempty"`
	Kind          string `json:",omitempty"`
	ClientID      string `json:",omitempty"`
}

func sign(claims Claims, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(validityDuration))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
}

// GenerateToken issues a principal token carrying only the user id.
func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	return sign(Claims{UserID: userID}, secretKey, validityDuration)
}

// GeneratePrincipalToken issues a principal token for p.
func GeneratePrincipalToken(p models.Principal, secretKey []byte, validityDuration time.Duration) (string, error) {
	return sign(Claims{UserID: p.ID, Email: p.Email, EmailVerified: p.EmailVerified, S3Enabled: p.S3Enabled}, secretKey, validityDuration)
}

// GenerateScopedToken issues a token of the given kind. jti makes every
// token unique even when issued within the same second.
func GenerateScopedToken(userID string, kind models.TokenKind, clientID, jti string, secretKey []byte, validityDuration time.Duration) (string, error) {
	c := Claims{UserID: userID, Kind: string(kind), ClientID: clientID}
	c.ID = jti
	return sign(c, secretKey, validityDuration)
}

// ParseToken verifies signature and expiry. Expired tokens yield
// common.ErrTokenExpired, any other failure common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// GetUserIDFromToken returns the user id of a valid token.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims, err := ParseToken(tokenString, secretKey)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Principal converts principal claims to a models.Principal.
func (c *Claims) Principal() models.Principal {
	return models.Principal{ID: c.UserID, Email: c.Email, EmailVerified: c.EmailVerified, S3Enabled: c.S3Enabled}
}
