// Package codec normalizes uploaded images for the e-paper panel: decode,
// aspect-preserving resize + center crop, JPEG re-encode, and thumbnailing.
package codec

import (
	"bytes"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	// Formats accepted on upload beyond JPEG.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/asetapen/picinplace/internal/models"
)

// Codec converts uploaded bytes into display-ready pixel buffers.
type Codec struct {
	targetW int
	targetH int
}

// New creates a Codec targeting the given display resolution.
func New(targetW, targetH int) *Codec {
	return &Codec{targetW: targetW, targetH: targetH}
}

// TargetSize returns the display resolution this codec normalizes to.
func (c *Codec) TargetSize() (w, h int) { return c.targetW, c.targetH }

// HEICSupported reports whether the optional HEIC/HEIF codec is compiled in.
// Resolved once at build time via the "heic" build tag.
func HEICSupported() bool { return heicSupported }

func isHEIC(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".heic", ".heif":
		return true
	}
	return false
}

// Decode decodes raw upload bytes into an image. The filename hint selects
// the HEIC path; all other formats go through image.Decode with the
// registered decoders (jpeg, png, gif, webp).
func Decode(raw []byte, filename string) (image.Image, error) {
	if isHEIC(filename) {
		if !heicSupported {
			return nil, models.ErrUnsupportedFormat(
				"HEIC files are not supported by this build; rebuild with -tags heic")
		}
		img, err := decodeHEIC(raw)
		if err != nil {
			return nil, models.ErrDecode("error processing HEIC file: " + err.Error())
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, models.ErrDecode("cannot decode image: " + err.Error())
	}
	return img, nil
}

// ResizeCrop scales img so it covers targetW x targetH while preserving
// aspect ratio, then center-crops to exactly that size. The wider dimension
// is cropped, never letterboxed, so the visual center always survives.
func ResizeCrop(img image.Image, targetW, targetH int) *image.NRGBA {
	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()

	imgRatio := float64(srcW) / float64(srcH)
	targetRatio := float64(targetW) / float64(targetH)

	var newW, newH int
	if imgRatio > targetRatio {
		// Wider than target: match height, crop width.
		newH = targetH
		newW = int(float64(targetH) * imgRatio)
	} else {
		// Taller than target: match width, crop height.
		newW = targetW
		newH = int(float64(targetW) / imgRatio)
	}

	scaled := imaging.Resize(img, newW, newH, imaging.Lanczos)
	return imaging.CropCenter(scaled, targetW, targetH)
}

// Normalize runs ResizeCrop against the configured display resolution.
func (c *Codec) Normalize(img image.Image) *image.NRGBA {
	return ResizeCrop(img, c.targetW, c.targetH)
}

// EncodeJPEG encodes img as JPEG at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Thumbnail scales img down to fit inside the thumbnail bounds, preserving
// aspect ratio, and encodes it as JPEG.
func Thumbnail(img image.Image) ([]byte, error) {
	thumb := imaging.Fit(img, models.ThumbWidth, models.ThumbHeight, imaging.Lanczos)
	return EncodeJPEG(thumb, models.ThumbJPEGQuality)
}
