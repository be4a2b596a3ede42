package imageprocessor

import (
	"bytes"
	"encoding/binary"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// EXIF orientation values (tag 0x0112).
const (
	orientationNormal     = 1
	orientationFlipH      = 2
	orientationRotate180  = 3
	orientationFlipV      = 4
	orientationTranspose  = 5
	orientationRotate90CW = 6
	orientationTransverse = 7
	orientationRotate90CC = 8
)

const pngSignature = "\x89PNG\r\n\x1a\n"

// readOrientation returns the orientation recorded in the image metadata.
// Missing or unreadable metadata is treated as already upright.
func readOrientation(data []byte, mediaType string) int {
	raw := data
	if mediaType == "image/png" {
		raw = pngEXIF(data)
		if raw == nil {
			return orientationNormal
		}
	}

	x, err := exif.Decode(bytes.NewReader(raw))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return orientationNormal
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return orientationNormal
	}
	value, err := tag.Int(0)
	if err != nil || value < orientationNormal || value > orientationRotate90CC {
		return orientationNormal
	}
	return value
}

// pngEXIF returns the payload of the eXIf chunk, or nil.
func pngEXIF(data []byte) []byte {
	if !bytes.HasPrefix(data, []byte(pngSignature)) {
		return nil
	}
	for off := len(pngSignature); off+8 <= len(data); {
		length := binary.BigEndian.Uint32(data[off:])
		kind := string(data[off+4 : off+8])
		start := off + 8
		if uint64(length) > uint64(len(data)-start) {
			return nil
		}
		end := start + int(length)
		switch kind {
		case "eXIf":
			return data[start:end]
		case "IEND":
			return nil
		}
		// skip payload and CRC
		off = end + 4
	}
	return nil
}

// applyOrientation transforms img so that its pixels are stored upright.
// imaging rotates counter-clockwise.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case orientationFlipH:
		return imaging.FlipH(img)
	case orientationRotate180:
		return imaging.Rotate180(img)
	case orientationFlipV:
		return imaging.FlipV(img)
	case orientationTranspose:
		return imaging.Transpose(img)
	case orientationRotate90CW:
		return imaging.Rotate270(img)
	case orientationTransverse:
		return imaging.Transverse(img)
	case orientationRotate90CC:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
