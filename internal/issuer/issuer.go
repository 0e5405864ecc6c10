// Package issuer derives the verification payload printed on a ticket and
// renders it as a QR code. The payload is a canonical encoding of the
// ticket's immutable fields followed by a keyed BLAKE2b MAC, so a scanner
// holding the key can tell a genuine ticket from an edited one.
package issuer

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/blake2b"

	"github.com/iliyamo/ticket-booking-core/internal/model"
)

const version = "v1"

var (
	// ErrNotIssuable is returned for tickets without an issue time.
	ErrNotIssuable = errors.New("issuer: ticket has no issue time")
	// ErrBadPayload is returned by Verify for malformed or forged payloads.
	ErrBadPayload = errors.New("issuer: payload failed verification")
)

// Claims is the content of a verification payload. Field order is the
// canonical serialization order.
type Claims struct {
	TicketID string `json:"tid"`
	EventID  string `json:"eid"`
	HolderID string `json:"hid"`
	SeatID   string `json:"sid"`
	IssuedAt string `json:"iat"`
}

// Encoder renders a payload as an image.
type Encoder func(payload string) ([]byte, error)

// QREncoder renders payload as a 256px PNG QR code.
func QREncoder(payload string) ([]byte, error) {
	return qrcode.Encode(payload, qrcode.Medium, 256)
}

// Issued is the result of Issue. Image is nil when rendering failed; the
// payload is still valid in that case.
type Issued struct {
	Payload  string
	Image    []byte
	ImageErr error
}

// Issuer signs and verifies payloads.
type Issuer struct {
	key    [32]byte
	encode Encoder
}

// New returns an Issuer keyed from secret. A nil encoder selects QREncoder.
func New(secret string, encode Encoder) *Issuer {
	if encode == nil {
		encode = QREncoder
	}
	return &Issuer{key: blake2b.Sum256([]byte(secret)), encode: encode}
}

// Payload derives the verification payload of t. The result depends only on
// the ticket id, event, holder, seat and issue time, so calling it again for
// the same ticket yields the same string.
func (is *Issuer) Payload(t model.Ticket) (string, error) {
	if t.IssuedAt == nil {
		return "", ErrNotIssuable
	}
	body, err := json.Marshal(Claims{
		TicketID: t.ID,
		EventID:  t.EventID,
		HolderID: t.HolderID,
		SeatID:   t.SeatID,
		IssuedAt: t.IssuedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	b := enc.EncodeToString(body)
	return version + "." + b + "." + enc.EncodeToString(is.mac(b)), nil
}

// Issue returns the payload and its image. A payload already stored on the
// ticket is reused as is and never recomputed.
func (is *Issuer) Issue(t model.Ticket) (Issued, error) {
	payload := t.VerificationPayload
	if payload == "" {
		var err error
		if payload, err = is.Payload(t); err != nil {
			return Issued{}, err
		}
	}
	out := Issued{Payload: payload}
	img, err := is.encode(payload)
	if err != nil {
		out.ImageErr = fmt.Errorf("issuer: render image: %w", err)
		return out, nil
	}
	out.Image = img
	return out, nil
}

// Verify checks the MAC of payload and returns its claims.
func (is *Issuer) Verify(payload string) (Claims, error) {
	parts := strings.Split(payload, ".")
	if len(parts) != 3 || parts[0] != version {
		return Claims{}, ErrBadPayload
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, ErrBadPayload
	}
	if subtle.ConstantTimeCompare(sig, is.mac(parts[1])) != 1 {
		return Claims{}, ErrBadPayload
	}
	body, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrBadPayload
	}
	var c Claims
	if err := json.Unmarshal(body, &c); err != nil || c.TicketID == "" {
		return Claims{}, ErrBadPayload
	}
	return c, nil
}

func (is *Issuer) mac(body string) []byte {
	h, _ := blake2b.New256(is.key[:]) // only errors for keys over 64 bytes
	h.Write([]byte(version))
	h.Write([]byte{'.'})
	h.Write([]byte(body))
	return h.Sum(nil)
}
