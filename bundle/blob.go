package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/unicode"
)

// Blob errors.
var (
	// ErrBlobFormat is returned for blobs whose contents do not match
	// their declared encoding.
	ErrBlobFormat = errors.New("bundle: bad blob")

	// ErrBlobType is returned for blob names with an unknown extension.
	ErrBlobType = errors.New("bundle: unknown blob type")
)

// Blob encodings, chosen by file extension. A trailing ".zst" marks a
// zstd-compressed file and is stripped before the encoding is chosen.
const (
	// ExtRaw holds 16-bit code units in little-endian order.
	ExtRaw = ".u16"
	// ExtText holds UTF-8 text whose UTF-16 code units are the data.
	ExtText = ".utf8"
	// ExtZstd marks compression.
	ExtZstd = ".zst"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// decodeBlob converts the file contents of blob name to code units.
func decodeBlob(name string, data []byte, zr *zstd.Decoder) ([]uint16, error) {
	base := name
	if strings.HasSuffix(base, ExtZstd) {
		out, err := zr.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBlobFormat, name, err)
		}
		data = out
		base = strings.TrimSuffix(base, ExtZstd)
	}

	switch path.Ext(base) {
	case ExtRaw:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("%w: %s: odd length %d", ErrBlobFormat, name, len(data))
		}
		return unitsFromLE(data), nil
	case ExtText:
		le, err := utf16le.NewEncoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBlobFormat, name, err)
		}
		return unitsFromLE(le), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrBlobType, name)
	}
}

func unitsFromLE(b []byte) []uint16 {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return units
}

// EncodeRaw returns the ".u16" file contents for units.
func EncodeRaw(units []uint16) []byte {
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return b
}

// EncodeText returns the ".utf8" file contents for units. Units in the
// surrogate range cannot be carried and produce an error.
func EncodeText(units []uint16) ([]byte, error) {
	for i, u := range units {
		if u >= 0xD800 && u <= 0xDFFF {
			return nil, fmt.Errorf("%w: surrogate %#04x at %d", ErrBlobFormat, u, i)
		}
	}
	out, err := utf16le.NewDecoder().Bytes(EncodeRaw(units))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBlobFormat, err)
	}
	return out, nil
}
