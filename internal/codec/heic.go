//go:build heic

package codec

import (
	"bytes"
	"image"

	"github.com/jdeng/goheif"
)

// HEIC decoding needs libde265 at link time, so it sits behind the "heic"
// build tag and the default build stays cgo-free.

const heicSupported = true

func decodeHEIC(raw []byte) (image.Image, error) {
	return goheif.Decode(bytes.NewReader(raw))
}
