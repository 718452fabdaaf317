package payments

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// QRCodeSize is the edge length in pixels of generated PIX codes
const QRCodeSize = 256

// QRCodePNG renders the gateway payload for a session as a PNG
func QRCodePNG(gateway PaymentGateway, view SessionView) ([]byte, error) {
	png, err := qrcode.Encode(gateway.PaymentPayload(view), qrcode.Medium, QRCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return png, nil
}
