// Package decisiontoken issues and verifies the signed links a customer
// uses to accept or reject a quote. A token is a bearer grant for one
// action on one document and nothing else; it is never persisted, only
// its verified claims are.
package decisiontoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is returned for every verification failure. Callers surface
// it to the customer as a single generic "invalid or expired link" so the
// response never reveals which check failed.
var ErrInvalid = errors.New("invalid or expired decision token")

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

func (a Action) Valid() bool { return a == ActionAccept || a == ActionReject }

// DefaultTTL matches the review window quoted in customer emails.
const DefaultTTL = 14 * 24 * time.Hour

// Claims are the decoded assertions of a decision token.
type Claims struct {
	DocumentID  string `json:"doc_id"`
	Action      Action `json:"action"`
	QuoteNumber string `json:"quote_number,omitempty"`
	jwt.RegisteredClaims
}

type Codec struct {
	secret []byte
	ttl    time.Duration

	// now is swappable in tests to exercise expiry.
	now func() time.Time
}

func New(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token allowing action on the given document until the
// codec's TTL elapses.
func (c *Codec) Issue(documentID string, action Action, quoteNumber string) (string, error) {
	return c.IssueWithTTL(documentID, action, quoteNumber, c.ttl)
}

func (c *Codec) IssueWithTTL(documentID string, action Action, quoteNumber string, ttl time.Duration) (string, error) {
	if !action.Valid() {
		return "", ErrInvalid
	}
	now := c.now()
	claims := Claims{
		DocumentID:  documentID,
		Action:      action,
		QuoteNumber: quoteNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify decodes and validates a token. Malformed encoding, a bad
// signature, expiry and an unknown action all collapse into ErrInvalid.
func (c *Codec) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalid
	}
	if claims.DocumentID == "" || !claims.Action.Valid() {
		return Claims{}, ErrInvalid
	}
	return claims, nil
}
