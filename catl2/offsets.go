package catl2

// Self-relative offset helpers (spec §4.2). A child pointer slot stores a
// signed 64-bit value relative to the slot's own file position, so that any
// contiguous byte range (e.g. a subtree shared by two ledgers) can be
// relocated without rewriting pointers.

// slotFileOffset returns the absolute offset of the i'th pointer slot in a
// popcount-compressed child array starting at base.
func slotFileOffset(base uint64, i int) uint64 {
	return base + uint64(i)*RelOffsetSize
}

// absoluteOf resolves a self-relative value stored at slotOffset to an
// absolute file offset.
func absoluteOf(slotOffset uint64, rel int64) uint64 {
	return uint64(int64(slotOffset) + rel)
}

// relativeTo computes the self-relative value to store at slotOffset so
// that it resolves to targetAbsolute.
func relativeTo(targetAbsolute, slotOffset uint64) int64 {
	return int64(targetAbsolute) - int64(slotOffset)
}
