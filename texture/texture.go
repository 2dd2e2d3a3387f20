// Package texture acquires the diffuse textures of draw groups.
//
// Textures come in three kinds. Compressed textures are ETC1 payloads in a
// PKM container and are passed through opaque. Raster textures (PNG, JPEG,
// WebP) are decoded to RGBA8. Groups without a texture get a synthesized
// 1×1 Solid texture from their diffuse color.
package texture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
)

// Errors returned by the texture package.
var (
	// ErrBadPKM is returned for truncated or invalid PKM containers.
	ErrBadPKM = errors.New("texture: invalid PKM container")

	// ErrUnsupported is returned for resource types the loader cannot decode.
	ErrUnsupported = errors.New("texture: unsupported format")
)

// Kind classifies a Payload.
type Kind uint8

const (
	// Solid is a synthesized 1×1 RGBA8 texture.
	Solid Kind = iota
	// Compressed is an ETC1 payload.
	Compressed
	// Raster is a decoded RGBA8 image.
	Raster
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Solid:
		return "solid"
	case Compressed:
		return "etc1"
	case Raster:
		return "raster"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Payload is texture data ready for upload. Payloads may be shared through
// the loader cache and must not be modified.
type Payload struct {
	Kind Kind

	// Width and Height are the image dimensions.
	Width, Height int

	// Padded is the block-aligned size of a Compressed payload.
	Padded image.Point

	// Data holds ETC1 blocks for Compressed payloads and tightly packed
	// RGBA8 pixels otherwise.
	Data []byte

	// Source is the resource path, empty for Solid payloads.
	Source string
}

// Size returns the payload size in bytes.
func (p *Payload) Size() int {
	return len(p.Data)
}

// channel converts a [0,1] component to 8 bits with rounding.
func channel(c float32) uint8 {
	v := int(c*255 + 0.5)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

// SolidRGBA returns the 8-bit color for a diffuse color.
func SolidRGBA(c [3]float32) color.RGBA {
	return color.RGBA{R: channel(c[0]), G: channel(c[1]), B: channel(c[2]), A: 0xFF}
}

// SolidRGB565 returns the 16-bit 5:6:5 packing of a diffuse color, the
// format used for solid textures on GLES2 targets.
func SolidRGB565(c [3]float32) uint16 {
	rgba := SolidRGBA(c)
	return uint16(rgba.R>>3)<<11 | uint16(rgba.G>>2)<<5 | uint16(rgba.B>>3)
}

// SolidColor synthesizes the 1×1 texture for a diffuse color.
func SolidColor(c [3]float32) *Payload {
	rgba := SolidRGBA(c)
	return &Payload{
		Kind:   Solid,
		Width:  1,
		Height: 1,
		Data:   []byte{rgba.R, rgba.G, rgba.B, rgba.A},
	}
}

const (
	pkmHeaderSize = 16
	etc1BlockSize = 8
	etc1RGBNoMips = 0
)

// ParsePKM validates a PKM container and returns its ETC1 payload.
func ParsePKM(data []byte) (*Payload, error) {
	if len(data) < pkmHeaderSize {
		return nil, fmt.Errorf("%w: %d byte header", ErrBadPKM, len(data))
	}
	if string(data[0:4]) != "PKM " || string(data[4:6]) != "10" {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadPKM, data[0:6])
	}
	be := binary.BigEndian
	if typ := be.Uint16(data[6:8]); typ != etc1RGBNoMips {
		return nil, fmt.Errorf("%w: data type %d", ErrBadPKM, typ)
	}
	padW, padH := int(be.Uint16(data[8:10])), int(be.Uint16(data[10:12]))
	w, h := int(be.Uint16(data[12:14])), int(be.Uint16(data[14:16]))
	if padW%4 != 0 || padH%4 != 0 || w > padW || h > padH || w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: size %dx%d padded %dx%d", ErrBadPKM, w, h, padW, padH)
	}
	size := (padW / 4) * (padH / 4) * etc1BlockSize
	body := data[pkmHeaderSize:]
	if len(body) < size {
		return nil, fmt.Errorf("%w: %d of %d payload bytes", ErrBadPKM, len(body), size)
	}
	return &Payload{
		Kind:   Compressed,
		Width:  w,
		Height: h,
		Padded: image.Pt(padW, padH),
		Data:   body[:size:size],
	}, nil
}

// EncodePKMHeader returns the 16-byte PKM header for an ETC1 image of
// the given size.
func EncodePKMHeader(w, h int) []byte {
	hdr := make([]byte, pkmHeaderSize)
	copy(hdr, "PKM 10")
	be := binary.BigEndian
	be.PutUint16(hdr[6:], etc1RGBNoMips)
	be.PutUint16(hdr[8:], uint16((w+3)&^3))
	be.PutUint16(hdr[10:], uint16((h+3)&^3))
	be.PutUint16(hdr[12:], uint16(w))
	be.PutUint16(hdr[14:], uint16(h))
	return hdr
}
