package booth

import (
	"errors"
	"strings"

	"github.com/skip2/go-qrcode"
)

// QREncoder renders URLs as PNG QR codes.
type QREncoder struct {
	Size int
}

// NewQREncoder returns an encoder producing size x size pixel PNGs.
func NewQREncoder(size int) *QREncoder {
	return &QREncoder{Size: size}
}

// Encode generates a PNG image of a QR code for url with medium error
// recovery. The output is deterministic for a given url and size.
func (e *QREncoder) Encode(url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("qr: url is empty")
	}
	return qrcode.Encode(url, qrcode.Medium, e.Size)
}
