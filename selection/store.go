// Package selection assigns picking colors to draw entries and records what
// each color identifies.
//
// A color is a 16-bit value in [1, 65535]. Zero is reserved for "nothing
// here" because the picking surface is cleared to black. Colors are handed
// out in strictly increasing order and never reused for the lifetime of a
// [Store]; once the range is exhausted the store stays exhausted.
package selection

import (
	"errors"
	"sync"
)

// MaxColor is the largest assignable color.
const MaxColor = 0xFFFF

// ErrColorOverflow is returned once every color in [1, MaxColor] has been
// handed out. The condition is permanent for the store.
var ErrColorOverflow = errors.New("selection: color space exhausted")

// Entry describes the draw identified by a color.
type Entry struct {
	Layer    int
	Group    int
	Draw     int
	Geometry string
	Offset   int
	Count    int
}

// Store is the live, growing color table. It is owned by one loading
// session at a time and may outlive sessions so colors stay unique across
// reloads.
//
// Store is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	entries   []Entry // entries[c-1] describes color c
	exhausted bool
}

// NewStore returns an empty store whose first color is 1.
func NewStore() *Store {
	return &Store{}
}

// Assign records e and returns its color.
func (s *Store) Assign(e Entry) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exhausted || len(s.entries) >= MaxColor {
		s.exhausted = true
		return 0, ErrColorOverflow
	}
	s.entries = append(s.entries, e)
	return uint16(len(s.entries)), nil
}

// Next returns the color the next successful Assign would return, or 0 if
// the store is exhausted.
func (s *Store) Next() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exhausted || len(s.entries) >= MaxColor {
		return 0
	}
	return uint16(len(s.entries) + 1)
}

// MaxAssigned returns the highest color handed out so far, 0 if none.
func (s *Store) MaxAssigned() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint16(len(s.entries))
}

// Snapshot returns an immutable copy of the table.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &Snapshot{entries: append([]Entry(nil), s.entries...)}
}

// Snapshot is a frozen view of a Store. Later assignments never show up in
// an existing snapshot.
type Snapshot struct {
	entries []Entry
}

// Lookup returns the entry for color c.
func (sn *Snapshot) Lookup(c uint32) (Entry, bool) {
	if sn == nil || c == 0 || c > uint32(len(sn.entries)) {
		return Entry{}, false
	}
	return sn.entries[c-1], true
}

// MaxAssigned returns the highest color present in the snapshot.
func (sn *Snapshot) MaxAssigned() uint32 {
	if sn == nil {
		return 0
	}
	return uint32(len(sn.entries))
}

// Len returns the number of colors present.
func (sn *Snapshot) Len() int {
	if sn == nil {
		return 0
	}
	return len(sn.entries)
}

// Each calls fn for every color in ascending order until fn returns false.
func (sn *Snapshot) Each(fn func(color uint16, e Entry) bool) {
	if sn == nil {
		return
	}
	for i, e := range sn.entries {
		if !fn(uint16(i+1), e) {
			return
		}
	}
}
