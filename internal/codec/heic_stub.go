//go:build !heic

package codec

import (
	"errors"
	"image"
)

const heicSupported = false

func decodeHEIC(raw []byte) (image.Image, error) {
	return nil, errors.New("HEIC codec not compiled in")
}
