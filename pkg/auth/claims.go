package auth

import (
	"errors"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwt"
)

// ErrMissingSubject is returned for tokens without oid, sub or email claim
var ErrMissingSubject = errors.New("token missing required user identifier claims (oid, sub, or email)")

// UserIDFromToken derives the user id from the oid, sub or email claim, in that order.
// Identifiers that are not UUIDs are mapped to a stable name-based UUID.
func UserIDFromToken(token jwt.Token) (uuid.UUID, error) {
	var subject string
	for _, claim := range []string{"oid", jwt.SubjectKey, "email"} {
		if v, ok := token.Get(claim); ok {
			if s, ok := v.(string); ok && s != "" {
				subject = s
				break
			}
		}
	}
	if subject == "" {
		return uuid.Nil, ErrMissingSubject
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		userID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(subject))
	}
	return userID, nil
}
