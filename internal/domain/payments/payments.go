// Package payments provides the checkout flow: the PIX countdown state machine,
// the gateway that verifies payments and the registry of open sessions.
package payments

import (
	"context"
	"fmt"
	"net/url"
)

// PaymentGateway verifies payments and renders what the payer must scan.
// A real PIX provider would implement this; SimulatedPixGateway stands in for it.
type PaymentGateway interface {
	// PaymentPayload returns the content encoded in the payer's QR code
	PaymentPayload(view SessionView) string
	// Verify reports whether the payment behind the session has cleared
	Verify(ctx context.Context, view SessionView) (bool, error)
}

// SimulatedPixGateway trusts every confirmation. No funds are checked.
type SimulatedPixGateway struct{}

// NewSimulatedGateway returns the placeholder gateway
func NewSimulatedGateway() PaymentGateway {
	return &SimulatedPixGateway{}
}

func (g *SimulatedPixGateway) PaymentPayload(view SessionView) string {
	q := url.Values{}
	q.Set("amount", view.Amount.StringFixed(2))
	q.Set("ref", view.ID)
	return fmt.Sprintf("pix:%s?%s", url.PathEscape(view.PixKey), q.Encode())
}

func (g *SimulatedPixGateway) Verify(ctx context.Context, view SessionView) (bool, error) {
	return true, nil
}
