package selection

import (
	"errors"
	"fmt"
)

// ErrIndexRange is returned by Stamp when a draw range or a vertex index
// falls outside its buffer.
var ErrIndexRange = errors.New("selection: index out of range")

// Stamp writes color into every vertex referenced by
// indices[offset:offset+count]. Vertices not referenced by that range keep
// their previous value.
func Stamp(colors, indices []uint16, offset, count int, color uint16) error {
	if offset < 0 || count < 0 || offset+count > len(indices) {
		return fmt.Errorf("range [%d,%d) of %d indices: %w", offset, offset+count, len(indices), ErrIndexRange)
	}
	for _, idx := range indices[offset : offset+count] {
		if int(idx) >= len(colors) {
			return fmt.Errorf("vertex %d of %d: %w", idx, len(colors), ErrIndexRange)
		}
		colors[idx] = color
	}
	return nil
}
