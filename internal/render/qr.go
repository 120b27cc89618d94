package render

import (
	"encoding/json"
	"image"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const defaultQRSize = 200

// qrImage renders the signed token as a scannable code. The payload is a JSON
// envelope so scanners can grow extra fields without breaking old ones.
func qrImage(signedToken string, size int) (image.Image, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	payload, err := json.Marshal(map[string]string{"token": signedToken})
	if err != nil {
		return nil, err
	}
	code, err := qr.Encode(string(payload), qr.M, qr.Auto)
	if err != nil {
		return nil, err
	}
	scaled, err := barcode.Scale(code, size, size)
	if err != nil {
		return nil, err
	}
	return scaled, nil
}
