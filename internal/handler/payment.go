package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-booking-core/internal/middleware"
	"github.com/iliyamo/ticket-booking-core/internal/payment"
)

// PaymentSimHandler stands in for the external payment authority in
// development: it signs a proof for the caller without moving money.
type PaymentSimHandler struct {
	signer *payment.Signer
	ttl    time.Duration
}

func NewPaymentSimHandler(signer *payment.Signer, ttl time.Duration) *PaymentSimHandler {
	if signer == nil {
		panic("nil signer passed to NewPaymentSimHandler")
	}
	return &PaymentSimHandler{signer: signer, ttl: ttl}
}

// Simulate handles POST /v1/payments/simulate. An event_id in the body
// binds the proof to that event.
func (h *PaymentSimHandler) Simulate(c echo.Context) error {
	holder := middleware.UserID(c)
	if holder == "" {
		return unauthorized(c)
	}
	var body struct {
		EventID string `json:"event_id"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	txn := uuid.NewString()
	token, proof, err := h.signer.Sign(txn, holder, body.EventID, h.ttl)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"token":          token,
		"transaction_id": proof.TransactionID,
		"event_id":       proof.EventID,
		"expires_at":     proof.ExpiresAt.Format(time.RFC3339),
	})
}
