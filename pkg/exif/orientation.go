// Package exif reads the EXIF orientation flag from the head of a JPEG stream.
//
// The reader works on a bounded byte window and never fails: anything it
// cannot make sense of is reported as Unknown.
package exif

import (
	"encoding/binary"
	"io"
)

// DefaultWindow is how many leading bytes are scanned by default
const DefaultWindow = 256 << 10

// Orientation is the EXIF flag that specifies how the stored pixels must be
// transformed to display the image correctly.
type Orientation int

const (
	Unknown     Orientation = 0
	Normal      Orientation = 1
	FlipH       Orientation = 2
	Rotate180   Orientation = 3
	FlipV       Orientation = 4
	Transpose   Orientation = 5
	Rotate90CW  Orientation = 6
	Transverse  Orientation = 7
	Rotate90CCW Orientation = 8
)

// Valid reports whether o is one of the eight defined values
func (o Orientation) Valid() bool {
	return o >= Normal && o <= Rotate90CCW
}

// RotationDegrees is the clockwise rotation needed to display the image
// upright, ignoring any mirroring.
func (o Orientation) RotationDegrees() int {
	switch o {
	case Rotate180, FlipV:
		return 180
	case Rotate90CW, Transpose:
		return 90
	case Rotate90CCW, Transverse:
		return 270
	}
	return 0
}

// Mirrored reports whether the orientation includes a reflection
func (o Orientation) Mirrored() bool {
	switch o {
	case FlipH, FlipV, Transpose, Transverse:
		return true
	}
	return false
}

// NeedsTransform reports whether pixels must be changed to be upright
func (o Orientation) NeedsTransform() bool {
	return o.Valid() && o != Normal
}

// SwapsAxes reports whether the upright image has width and height swapped
func (o Orientation) SwapsAxes() bool {
	return o.RotationDegrees()%180 == 90
}

const (
	markerPrefix = 0xff
	markerSOI    = 0xd8
	markerEOI    = 0xd9
	markerSOS    = 0xda
	markerAPP1   = 0xe1
	markerTEM    = 0x01
	markerRST0   = 0xd0
	markerRST7   = 0xd7

	orientationTag = 0x0112
	typeShort      = 3
	tiffMagic      = 42
	ifdEntrySize   = 12
)

var exifSignature = []byte("Exif\x00\x00")

// Read scans at most window bytes of r. A non-positive window means
// DefaultWindow.
func Read(r io.Reader, window int) Orientation {
	if r == nil {
		return Unknown
	}
	if window <= 0 {
		window = DefaultWindow
	}
	buf, err := io.ReadAll(io.LimitReader(r, int64(window)))
	if err != nil && len(buf) == 0 {
		return Unknown
	}
	return Parse(buf)
}

// Parse returns the orientation stored in b, which must start at the JPEG
// SOI marker. Truncated or malformed data yields Unknown.
func Parse(b []byte) Orientation {
	if len(b) < 4 || b[0] != markerPrefix || b[1] != markerSOI {
		return Unknown
	}

	i := 2
	for i+2 <= len(b) {
		if b[i] != markerPrefix {
			return Unknown
		}
		marker := b[i+1]
		i += 2

		switch {
		case marker == markerPrefix:
			// fill byte; the next byte is the real marker code
			i--
			continue
		case marker == markerSOS || marker == markerEOI:
			return Unknown
		case marker == markerTEM || (marker >= markerRST0 && marker <= markerRST7):
			continue
		}

		if i+2 > len(b) {
			return Unknown
		}
		size := int(binary.BigEndian.Uint16(b[i : i+2]))
		if size < 2 || i+size > len(b) {
			return Unknown
		}
		payload := b[i+2 : i+size]
		i += size

		if marker != markerAPP1 || len(payload) < len(exifSignature) {
			continue
		}
		if string(payload[:len(exifSignature)]) != string(exifSignature) {
			// XMP and other APP1 users
			continue
		}
		return parseTIFF(payload[len(exifSignature):])
	}
	return Unknown
}

// parseTIFF looks for the orientation tag in IFD0 of a TIFF block
func parseTIFF(tiff []byte) Orientation {
	if len(tiff) < 8 {
		return Unknown
	}

	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return Unknown
	}
	if order.Uint16(tiff[2:4]) != tiffMagic {
		return Unknown
	}

	offset := uint64(order.Uint32(tiff[4:8]))
	if offset < 8 || offset+2 > uint64(len(tiff)) {
		return Unknown
	}
	ifd := int(offset)
	count := int(order.Uint16(tiff[ifd : ifd+2]))

	entry := ifd + 2
	for n := 0; n < count; n++ {
		if entry+ifdEntrySize > len(tiff) {
			return Unknown
		}
		tag := order.Uint16(tiff[entry : entry+2])
		if tag != orientationTag {
			entry += ifdEntrySize
			continue
		}
		typ := order.Uint16(tiff[entry+2 : entry+4])
		cnt := order.Uint32(tiff[entry+4 : entry+8])
		if typ != typeShort || cnt != 1 {
			return Unknown
		}
		val := Orientation(order.Uint16(tiff[entry+8 : entry+10]))
		if !val.Valid() {
			return Unknown
		}
		return val
	}
	return Unknown
}
