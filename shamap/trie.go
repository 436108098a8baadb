package shamap

import "github.com/xahau/catl2/catl2"

// Trie is an immutable-by-convention 16-way radix trie: Set and Delete
// never mutate the receiver, they return a new *Trie whose root shares
// every untouched subtree with the receiver's. Calling Hash/Root on the
// receiver after a Set/Delete remains valid and still reflects the old
// state. This is the copy-on-write persistence catl2.Writer relies on to
// recognize unchanged subtrees across consecutive ledgers: an untouched
// node, shared with the receiver, keeps its catl2.TrieNode.Persisted()
// offset from the previous WriteLedger call, while every node on a mutated
// path is a fresh, unmarked copy.
type Trie struct {
	root   node
	hasher catl2.Hasher
}

// New returns an empty Trie using catl2.DefaultHasher.
func New() *Trie {
	return &Trie{hasher: catl2.DefaultHasher}
}

// NewWithHasher returns an empty Trie using the supplied Hasher, letting
// tests substitute a deterministic stand-in.
func NewWithHasher(h catl2.Hasher) *Trie {
	return &Trie{hasher: h}
}

// Root implements catl2.Trie. It returns nil only for a brand new,
// never-written-to Trie.
func (t *Trie) Root() catl2.TrieNode {
	if t.root == nil {
		return nil
	}
	return t.root
}

// Hash implements catl2.Trie: it forces recursive hash computation over
// every dirty node reachable from the root, then returns the root's hash.
// A fully clean trie (nothing changed since the last Hash call) does no
// work beyond reading the cached root hash.
func (t *Trie) Hash() catl2.Hash256 {
	if t.root == nil {
		return catl2.Hash256{}
	}
	t.root = t.hash(t.root)
	return t.root.Hash()
}

func (t *Trie) hash(n node) node {
	if !n.isDirty() {
		return n
	}
	if inner, ok := n.(*innerNode); ok {
		for i, c := range inner.children {
			if c == nil {
				continue
			}
			inner.children[i] = t.hash(c)
		}
		inner.setHash(t.hasher.Sum256(encodeInner(inner)))
	} else if leaf, ok := n.(*leafNode); ok {
		leaf.setHash(t.hasher.Sum256(encodeLeaf(leaf)))
	}
	n.clearDirty()
	return n
}

// Get performs a point lookup directly against the in-memory trie (as
// opposed to catl2's on-disk lookupKey, which this trie's serialized form
// must agree with).
func (t *Trie) Get(key catl2.Hash256) ([]byte, bool) {
	n := t.root
	for {
		switch cur := n.(type) {
		case nil:
			return nil, false
		case *leafNode:
			if cur.key == key {
				return cur.value, true
			}
			return nil, false
		case *innerNode:
			n = cur.children[nibble(key, cur.depth)]
		}
	}
}

// Set returns a new Trie with key mapped to value. value is copied.
func (t *Trie) Set(key catl2.Hash256, value []byte) *Trie {
	if t.root == nil {
		branch := newInnerNode(0)
		branch.children[nibble(key, 0)] = newLeafNode(key, value)
		return &Trie{root: branch, hasher: t.hasher}
	}
	if leaf, ok := t.root.(*leafNode); ok {
		// A bare-leaf root can only arise from a hand-built Trie; catl2
		// requires an inner root (spec's empty-ledger case is represented
		// as a root with exactly one leaf, never a bare leaf), so wrap it
		// the same way the nil-root case above does.
		return &Trie{root: splitLeaf(leaf, key, value), hasher: t.hasher}
	}
	return &Trie{root: t.set(t.root, key, value), hasher: t.hasher}
}

func (t *Trie) set(n node, key catl2.Hash256, value []byte) node {
	switch cur := n.(type) {
	case nil:
		return newLeafNode(key, value)
	case *leafNode:
		if cur.key == key {
			return newLeafNode(key, value)
		}
		return splitLeaf(cur, key, value)
	case *innerNode:
		cp := cur.copy()
		cp.dirty = true
		cp.hasOffset = false
		nb := nibble(key, cur.depth)
		cp.children[nb] = t.set(cp.children[nb], key, value)
		return cp
	}
	return n
}

// splitLeaf replaces a colliding leaf with a new inner node at the depth
// the two keys first diverge, holding both as direct children. Skipping
// straight to the diverging nibble (rather than growing one level at a
// time) is why an inner node's Depth() can skip several values between a
// parent and child.
func splitLeaf(existing *leafNode, key catl2.Hash256, value []byte) node {
	if existing.key == key {
		return newLeafNode(key, value)
	}
	depth := uint8(0)
	for nibble(existing.key, depth) == nibble(key, depth) {
		depth++
	}
	branch := newInnerNode(depth)
	branch.children[nibble(existing.key, depth)] = existing
	branch.children[nibble(key, depth)] = newLeafNode(key, value)
	return branch
}

// Delete returns a new Trie with key removed, or the receiver unchanged
// (by value, not by sharing the pointer) if key was absent.
func (t *Trie) Delete(key catl2.Hash256) *Trie {
	newRoot, _ := t.delete(t.root, key)
	return &Trie{root: newRoot, hasher: t.hasher}
}

func (t *Trie) delete(n node, key catl2.Hash256) (node, bool) {
	switch cur := n.(type) {
	case nil:
		return nil, false
	case *leafNode:
		if cur.key != key {
			return cur, false
		}
		return nil, true
	case *innerNode:
		nb := nibble(key, cur.depth)
		child, removed := t.delete(cur.children[nb], key)
		if !removed {
			return cur, false
		}
		cp := cur.copy()
		cp.dirty = true
		cp.hasOffset = false
		cp.children[nb] = child
		return cp, true
	}
	return n, false
}

// encodeLeaf and encodeInner are this reference implementation's node
// encoding for hashing. catl2 treats the hash algorithm as the trie
// collaborator's concern (spec §1); this is a concrete, internally
// consistent choice for the reference implementation and tests, not a
// wire format catl2 itself interprets.
func encodeLeaf(n *leafNode) []byte {
	buf := make([]byte, 0, 32+len(n.value))
	buf = append(buf, n.key[:]...)
	buf = append(buf, n.value...)
	return buf
}

func encodeInner(n *innerNode) []byte {
	buf := make([]byte, 1, 1+16*32)
	buf[0] = n.depth
	var zero catl2.Hash256
	for _, c := range n.children {
		if c == nil {
			buf = append(buf, zero[:]...)
			continue
		}
		h := c.Hash()
		buf = append(buf, h[:]...)
	}
	return buf
}
