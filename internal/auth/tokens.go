package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const rolesClaim = "roles"

// Claims is what a verified access token asserts about the caller.
type Claims struct {
	UserID uuid.UUID
	Roles  []string
}

// Tokens signs and verifies the shop's access tokens. HS256 with a shared
// secret; the algorithm in the token header is checked against the
// expectation before the signature is verified.
type Tokens struct {
	Secret    []byte
	Issuer    string
	TTL       time.Duration
	ClockSkew time.Duration
	Now       func() time.Time
}

func (t *Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Sign issues an access token for the user.
func (t *Tokens) Sign(userID uuid.UUID, roles []string) (string, time.Time, error) {
	now := t.now()
	ttl := t.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	expiresAt := now.Add(ttl)
	builder := jwt.NewBuilder().
		Subject(userID.String()).
		Issuer(t.Issuer).
		IssuedAt(now).
		Expiration(expiresAt).
		Claim(rolesClaim, roles)
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, t.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// Verify parses and validates a token string and returns its claims.
func (t *Tokens) Verify(raw string) (Claims, error) {
	alg, err := tokenAlgorithm(raw)
	if err != nil {
		return Claims{}, err
	}
	if alg != jwa.HS256 {
		return Claims{}, fmt.Errorf("unexpected token algorithm %s", alg)
	}
	options := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, t.Secret),
		jwt.WithClock(jwt.ClockFunc(t.now)),
		jwt.WithValidate(true),
	}
	if t.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(t.ClockSkew))
	}
	if t.Issuer != "" {
		options = append(options, jwt.WithIssuer(t.Issuer))
	}
	parsed, err := jwt.ParseString(raw, options...)
	if err != nil {
		return Claims{}, err
	}

	userID, err := uuid.Parse(parsed.Subject())
	if err != nil {
		return Claims{}, fmt.Errorf("token subject: %w", err)
	}
	claims := Claims{UserID: userID}
	if v, ok := parsed.Get(rolesClaim); ok {
		switch roles := v.(type) {
		case []string:
			claims.Roles = roles
		case []any:
			for _, r := range roles {
				if s, ok := r.(string); ok {
					claims.Roles = append(claims.Roles, s)
				}
			}
		}
	}
	return claims, nil
}

func tokenAlgorithm(raw string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(raw)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("token contains no signatures")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", errors.New("token missing algorithm")
	}
	return alg, nil
}
