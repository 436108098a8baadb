package catl2

import "math/bits"

// childRef describes one non-empty branch of an inner node as resolved to
// an absolute file offset (spec §4.3.2).
type childRef struct {
	Branch int
	Type   ChildType
	Offset uint64
}

// readInnerHeader parses and validates the inner-node header at offset.
func readInnerHeader(data []byte, offset uint64) (InnerNodeHeader, error) {
	if offset+InnerNodeHeaderSize > uint64(len(data)) {
		return InnerNodeHeader{}, malformed(offset, "inner header extends past EOF")
	}
	h, err := DecodeInnerNodeHeader(data[offset:])
	if err != nil {
		return InnerNodeHeader{}, malformed(offset, "truncated inner header")
	}
	if h.OverlayMask != 0 {
		return InnerNodeHeader{}, malformed(offset, "nonzero overlay_mask (reserved, unimplemented)")
	}
	if h.Depth() > MaxDepth {
		return InnerNodeHeader{}, malformed(offset, "depth exceeds 63")
	}
	if h.PopCount() == 0 {
		return InnerNodeHeader{}, malformed(offset, "inner node has zero non-empty branches")
	}
	return h, nil
}

// readLeafHeader parses and validates the leaf-node header at offset,
// bounds-checking that its payload does not run past EOF.
func readLeafHeader(data []byte, offset uint64) (LeafHeader, error) {
	if offset+LeafHeaderSize > uint64(len(data)) {
		return LeafHeader{}, malformed(offset, "leaf header extends past EOF")
	}
	h, err := DecodeLeafHeader(data[offset:])
	if err != nil {
		return LeafHeader{}, malformed(offset, "truncated leaf header")
	}
	if h.CompressionType() != CompressionNone {
		return LeafHeader{}, malformed(offset, "unsupported compression tag")
	}
	payloadEnd := offset + LeafHeaderSize + uint64(h.DataSize())
	if payloadEnd > uint64(len(data)) {
		return LeafHeader{}, malformed(offset, "leaf payload extends past EOF")
	}
	return h, nil
}

// leafPayload returns a zero-copy view of the leaf's payload bytes.
func leafPayload(data []byte, offset uint64, h LeafHeader) []byte {
	start := offset + LeafHeaderSize
	return data[start : start+uint64(h.DataSize())]
}

// occupancyMask collapses a 2-bit-per-branch child-type bitmap into a
// 1-bit-per-branch occupancy mask (bit set iff the branch is non-empty).
func occupancyMask(childTypes uint32) uint16 {
	var mask uint16
	for b := 0; b < branchCount; b++ {
		if ChildType((childTypes>>uint(b*2))&0x3) != ChildEmpty {
			mask |= 1 << uint(b)
		}
	}
	return mask
}

// popcountIndex converts a branch number to its index in the
// popcount-compressed child-pointer array, via a popcount primitive over
// the branches strictly below it (spec §4.3.2).
func popcountIndex(childTypes uint32, branch int) int {
	mask := occupancyMask(childTypes) & (uint16(1)<<uint(branch) - 1)
	return bits.OnesCount16(mask)
}

// childAt resolves the self-relative pointer for a single branch of an
// inner node, validating it lies within (lowBound, highBound).
func childAt(data []byte, innerOffset uint64, h InnerNodeHeader, branch int, lowBound, highBound uint64) (childRef, error) {
	ct := h.ChildType(branch)
	if ct == ChildEmpty {
		return childRef{}, malformed(innerOffset, "childAt called on empty branch")
	}
	if ct == ChildReserved {
		return childRef{}, malformed(innerOffset, "reserved child type")
	}
	base := innerOffset + InnerNodeHeaderSize
	idx := popcountIndex(h.ChildTypes, branch)
	slot := slotFileOffset(base, idx)
	if slot+RelOffsetSize > uint64(len(data)) {
		return childRef{}, malformed(innerOffset, "child pointer slot extends past EOF")
	}
	rel := int64(order.Uint64(data[slot : slot+RelOffsetSize]))
	abs := absoluteOf(slot, rel)
	if abs <= lowBound || abs >= highBound || abs >= uint64(len(data)) {
		return childRef{}, malformed(innerOffset, "child pointer out of bounds")
	}
	return childRef{Branch: branch, Type: ct, Offset: abs}, nil
}

// iterateChildren resolves every non-empty branch of an inner node in
// ascending branch order.
func iterateChildren(data []byte, innerOffset uint64, h InnerNodeHeader, lowBound, highBound uint64) ([]childRef, error) {
	refs := make([]childRef, 0, h.PopCount())
	for b := 0; b < branchCount; b++ {
		if h.ChildType(b) == ChildEmpty {
			continue
		}
		ref, err := childAt(data, innerOffset, h, b, lowBound, highBound)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// keyNibble extracts the depth-th hex nibble of key: the high nibble of
// byte depth/2 when depth is even, else the low nibble (spec §4.3.3).
func keyNibble(key Hash256, depth uint8) int {
	b := key[depth/2]
	if depth%2 == 0 {
		return int(b >> 4)
	}
	return int(b & 0x0F)
}

// lookupKey performs a point lookup starting at rootOffset (always an
// inner node for a writer-produced file), returning the matching leaf's
// payload, or found=false if the key is absent.
func lookupKey(data []byte, rootOffset uint64, key Hash256, lowBound, highBound uint64) (payload []byte, found bool, err error) {
	offset := rootOffset
	for {
		h, err := readInnerHeader(data, offset)
		if err != nil {
			return nil, false, err
		}
		nibble := keyNibble(key, h.Depth())
		ct := h.ChildType(nibble)
		if ct == ChildEmpty {
			return nil, false, nil
		}
		ref, err := childAt(data, offset, h, nibble, lowBound, highBound)
		if err != nil {
			return nil, false, err
		}
		switch ref.Type {
		case ChildLeaf:
			lh, err := readLeafHeader(data, ref.Offset)
			if err != nil {
				return nil, false, err
			}
			if lh.Key != key {
				return nil, false, nil
			}
			return leafPayload(data, ref.Offset, lh), true, nil
		case ChildInner:
			offset = ref.Offset
		default:
			return nil, false, malformed(offset, "reserved child type")
		}
	}
}

// LeafVisitor is invoked for each leaf during a walk. Returning false
// short-circuits the remainder of the traversal.
type LeafVisitor func(key Hash256, payload []byte) bool

// walkLeaves performs a single-threaded pre-order traversal of the subtree
// rooted at rootOffset (always an inner node), invoking visit for each
// leaf. It returns the number of leaves visited.
func walkLeaves(data []byte, rootOffset, lowBound, highBound uint64, visit LeafVisitor) (int, error) {
	count := 0
	stopped := false
	var rec func(offset uint64) error
	rec = func(offset uint64) error {
		if stopped {
			return nil
		}
		h, err := readInnerHeader(data, offset)
		if err != nil {
			return err
		}
		refs, err := iterateChildren(data, offset, h, lowBound, highBound)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if stopped {
				return nil
			}
			switch ref.Type {
			case ChildLeaf:
				lh, err := readLeafHeader(data, ref.Offset)
				if err != nil {
					return err
				}
				count++
				if !visit(lh.Key, leafPayload(data, ref.Offset, lh)) {
					stopped = true
					return nil
				}
			case ChildInner:
				if err := rec(ref.Offset); err != nil {
					return err
				}
			default:
				return malformed(offset, "reserved child type")
			}
		}
		return nil
	}
	if err := rec(rootOffset); err != nil {
		return count, err
	}
	return count, nil
}

// rootChildren returns the resolved non-empty children of the root inner
// node, used by the parallel walk to partition work by subtree (spec §4.6).
func rootChildren(data []byte, rootOffset, lowBound, highBound uint64) ([]childRef, error) {
	h, err := readInnerHeader(data, rootOffset)
	if err != nil {
		return nil, err
	}
	return iterateChildren(data, rootOffset, h, lowBound, highBound)
}
