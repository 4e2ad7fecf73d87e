package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"shotreview/pkg/domain"
)

// JPEGQuality is the encoding quality for stored screenshots.
const JPEGQuality = 80

const jpegContentType = "image/jpeg"

// Encode serializes img as JPEG. quality <= 0 selects JPEGQuality.
func Encode(img image.Image, quality int) (domain.ImageData, error) {
	if img == nil {
		return domain.ImageData{}, errors.New("encode: nil image")
	}
	if quality <= 0 || quality > 100 {
		quality = JPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return domain.ImageData{}, fmt.Errorf("encode jpeg: %w", err)
	}
	b := img.Bounds()
	return domain.ImageData{
		Bytes:       buf.Bytes(),
		ContentType: jpegContentType,
		Width:       b.Dx(),
		Height:      b.Dy(),
	}, nil
}

// EncodeResult encodes a capture result.
func EncodeResult(res Result) (domain.ImageData, error) {
	return Encode(res.Image, JPEGQuality)
}

// DataURI builds the inline reference used when the image store is unavailable.
func DataURI(data domain.ImageData) string {
	ct := data.ContentType
	if ct == "" {
		ct = jpegContentType
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data.Bytes)
}
