package jwt

import "github.com/golang-jwt/jwt"

// Payload is the identity carried by tokens from the external auth service.
// The service trusts ID as the user identifier and Name as the display name
// to record the first time the user connects.
type Payload struct {
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the user identifier.
	ID string `json:"id"`

	// Name is the user's display name at issuance time.
	Name string `json:"name"`
}

// Valid adds the identity check to the standard claim validation.
func (p *Payload) Valid() error {
	if err := p.StandardClaims.Valid(); err != nil {
		return err
	}
	if p.ID == "" {
		return errMissingSubject
	}
	return nil
}
