package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// DefaultTokenTTL applies when GenerateToken is asked for a zero lifetime.
	DefaultTokenTTL = 24 * time.Hour

	// TokenIssuer is stamped into the iss claim of locally minted tokens.
	TokenIssuer = "ChatRelay"
)

var (
	errMissingSubject    = errors.New("token carries no user id")
	errUnexpectedSigning = errors.New("token is not signed with HMAC")
	errTokenRejected     = errors.New("token failed validation")
)

// GenerateToken mints an HS256 token for payload that lives for ttl, or for
// DefaultTokenTTL when ttl is zero. Real clients get their tokens from the
// auth service; tests and local tooling use this.
func GenerateToken(payload *Payload, secretKey string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	issued := time.Now()
	payload.StandardClaims = jwt.StandardClaims{
		Issuer:    TokenIssuer,
		IssuedAt:  issued.Unix(),
		ExpiresAt: issued.Add(ttl).Unix(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString([]byte(secretKey))
}

// ParseToken verifies the signature and claims of tokenString and returns the
// identity it carries.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	payload := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, payload, hmacKey(secretKey))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errTokenRejected
	}

	return payload, nil
}

// hmacKey refuses any algorithm outside the HMAC family before handing the
// secret to the verifier.
func hmacKey(secretKey string) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigning
		}
		return []byte(secretKey), nil
	}
}
