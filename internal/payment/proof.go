// Package payment verifies payment proofs: HS256-signed, time-limited tokens
// binding a transaction id to a holder and optionally to an event. The
// booking core only verifies; Signer exists for the payment-simulation
// collaborator and for tests.
package payment

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/ticket-booking-core/internal/apperr"
	"github.com/iliyamo/ticket-booking-core/internal/model"
)

// claims is the fixed wire shape of a proof token. Subject carries the
// holder id.
type claims struct {
	TransactionID string `json:"txn"`
	EventID       string `json:"evt,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks proof tokens against a shared secret. It holds no mutable
// state and is safe for concurrent use.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier returns a Verifier. When issuer is non-empty tokens must carry
// a matching iss claim.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func invalid(reason string) error {
	return apperr.New(apperr.KindInvalidPaymentProof, "payment proof is invalid: %s", reason)
}

// Verify parses token and checks its signature, expiry and bindings. An
// event bound in the token must equal expectedEventID; a token without an
// event binding is accepted for any event.
func (v *Verifier) Verify(token, expectedHolderID, expectedTransactionID, expectedEventID string) (model.PaymentProof, error) {
	if token == "" {
		return model.PaymentProof{}, invalid("missing token")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.PaymentProof{}, invalid("expired")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return model.PaymentProof{}, invalid("bad signature")
	case err != nil:
		return model.PaymentProof{}, invalid("malformed token")
	}

	if c.TransactionID == "" || c.Subject == "" || c.IssuedAt == nil || c.ExpiresAt == nil {
		return model.PaymentProof{}, invalid("missing required fields")
	}
	if c.TransactionID != expectedTransactionID {
		return model.PaymentProof{}, invalid("transaction mismatch")
	}
	if c.Subject != expectedHolderID {
		return model.PaymentProof{}, invalid("holder mismatch")
	}
	if c.EventID != "" && c.EventID != expectedEventID {
		return model.PaymentProof{}, invalid("event mismatch")
	}
	return model.PaymentProof{
		TransactionID: c.TransactionID,
		HolderID:      c.Subject,
		EventID:       c.EventID,
		IssuedAt:      c.IssuedAt.Time.UTC(),
		ExpiresAt:     c.ExpiresAt.Time.UTC(),
	}, nil
}

// Signer issues proof tokens. It belongs to the payment authority side.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner returns a Signer sharing secret with the Verifier.
func NewSigner(secret, issuer string) *Signer {
	return &Signer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Sign returns a token for the transaction valid for ttl.
func (s *Signer) Sign(transactionID, holderID, eventID string, ttl time.Duration) (string, model.PaymentProof, error) {
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	c := claims{
		TransactionID: transactionID,
		EventID:       eventID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   holderID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", model.PaymentProof{}, err
	}
	return signed, model.PaymentProof{
		TransactionID: transactionID,
		HolderID:      holderID,
		EventID:       eventID,
		IssuedAt:      now,
		ExpiresAt:     exp,
	}, nil
}
