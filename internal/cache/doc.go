// Package cache provides a generic LRU cache bounded by entry cost.
//
// Each entry carries a caller-supplied cost (bytes of decoded texture
// data, for instance). When the total exceeds the budget, least recently
// used entries are evicted until it fits again. An entry larger than the
// whole budget is still stored; it simply evicts everything else.
//
//	c := cache.New[string, []byte](64 << 20)
//	c.Set("textures/skin.pkm", data, len(data))
//	data, ok := c.Get("textures/skin.pkm")
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
