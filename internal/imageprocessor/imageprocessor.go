package imageprocessor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// Asset is an image as received from the input source.
type Asset struct {
	Data      []byte
	MediaType string
	Filename  string
}

// NormalizedImage is JPEG data with orientation already applied to the pixels.
type NormalizedImage struct {
	Data   []byte
	Width  int
	Height int
	// SourceOrientation is the EXIF orientation that was corrected, 1 when none.
	SourceOrientation int
}

// DecodeError reports bytes that could not be interpreted as a supported image.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode image: %s: %v", e.Reason, e.Err)
	}
	return "decode image: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var supportedTypes = []string{"image/jpeg", "image/png"}

// Normalizer turns uploaded images into upright JPEGs.
type Normalizer struct {
	quality int
}

// NewNormalizer returns a Normalizer encoding at the given JPEG quality.
func NewNormalizer(quality int) *Normalizer {
	if quality < 1 || quality > 100 {
		quality = 90
	}
	return &Normalizer{quality: quality}
}

// Normalize decodes asset, rotates or flips it according to its orientation
// metadata and re-encodes it as JPEG without that metadata.
func (n *Normalizer) Normalize(asset Asset) (*NormalizedImage, error) {
	if len(asset.Data) == 0 {
		return nil, &DecodeError{Reason: "empty image"}
	}

	mtype := mimetype.Detect(asset.Data)
	if !mimetype.EqualsAny(mtype.String(), supportedTypes...) {
		return nil, &DecodeError{Reason: "unsupported media type " + mtype.String()}
	}

	img, _, err := image.Decode(bytes.NewReader(asset.Data))
	if err != nil {
		return nil, &DecodeError{Reason: "invalid " + mtype.String(), Err: err}
	}

	orientation := readOrientation(asset.Data, mtype.String())
	img = applyOrientation(img, orientation)
	if !isOpaque(img) {
		img = flatten(img)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(n.quality)); err != nil {
		return nil, &DecodeError{Reason: "re-encode as jpeg", Err: err}
	}

	bounds := img.Bounds()
	return &NormalizedImage{
		Data:              out.Bytes(),
		Width:             bounds.Dx(),
		Height:            bounds.Dy(),
		SourceOrientation: orientation,
	}, nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}
