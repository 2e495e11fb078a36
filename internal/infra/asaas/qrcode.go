package asaas

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

const pngDataURIPrefix = "data:image/png;base64,"

// DataURI prefixes a bare base64 PNG so browsers can render it directly.
func DataURI(encoded string) string {
	if strings.HasPrefix(encoded, "data:") {
		return encoded
	}
	return pngDataURIPrefix + encoded
}

// RenderQRCode draws the PIX copy-paste payload as a PNG data URI.
func RenderQRCode(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("render pix qr code: %w", err)
	}
	return pngDataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}
