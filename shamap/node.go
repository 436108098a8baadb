// Package shamap is a reference implementation of the external trie
// collaborator catl2.Writer and catl2.Reader are written against: a 16-way
// radix trie over fixed-width 256-bit keys, with copy-on-write mutation and
// a perma-cached node hash, mirroring the teacher trie package's
// fullNode/shortNode duality collapsed to this format's fixed-depth keys.
package shamap

import "github.com/xahau/catl2/catl2"

// node is implemented by innerNode and leafNode. Unlike the teacher's
// fullNode/shortNode/hashNode/valueNode quartet, there is no extension node
// and no inline hash/value wrapper: SHAMap keys are fixed-width 256-bit
// hashes, so a node is always either a 16-way branch or a terminal leaf,
// and both are always held by direct pointer rather than by lazily-loaded
// hash reference.
type node interface {
	catl2.TrieNode
	setHash(catl2.Hash256)
	clearDirty()
	isDirty() bool
}

// innerNode is a 16-way branch. depth is the nibble position this node
// switches on; it may skip several levels when a subtree has a single
// branch; depth matches the addressing catl2's codec uses to resolve a
// lookup path.
type innerNode struct {
	children [16]node
	depth    uint8

	hash  catl2.Hash256
	dirty bool

	offset    uint64
	hasOffset bool
}

func newInnerNode(depth uint8) *innerNode {
	return &innerNode{depth: depth, dirty: true}
}

// copy returns a shallow copy: the children array is copied by value (it
// holds pointers), so the new node can have one branch replaced without
// disturbing the original.
func (n *innerNode) copy() *innerNode {
	cp := *n
	return &cp
}

func (n *innerNode) IsLeaf() bool { return false }
func (n *innerNode) Depth() uint8 { return n.depth }
func (n *innerNode) Hash() catl2.Hash256 { return n.hash }

func (n *innerNode) Child(branch int) (catl2.TrieNode, bool) {
	c := n.children[branch]
	if c == nil {
		return nil, false
	}
	return c, true
}

func (n *innerNode) Key() catl2.Hash256 { return catl2.Hash256{} }
func (n *innerNode) Value() []byte      { return nil }

func (n *innerNode) Persisted() (uint64, bool)  { return n.offset, n.hasOffset }
func (n *innerNode) MarkPersisted(offset uint64) {
	n.offset = offset
	n.hasOffset = true
}

func (n *innerNode) setHash(h catl2.Hash256) { n.hash = h }
func (n *innerNode) clearDirty()             { n.dirty = false }
func (n *innerNode) isDirty() bool           { return n.dirty }

// leafNode is a terminal key/value pair.
type leafNode struct {
	key   catl2.Hash256
	value []byte

	hash  catl2.Hash256
	dirty bool

	offset    uint64
	hasOffset bool
}

func newLeafNode(key catl2.Hash256, value []byte) *leafNode {
	v := make([]byte, len(value))
	copy(v, value)
	return &leafNode{key: key, value: v, dirty: true}
}

func (n *leafNode) IsLeaf() bool         { return true }
func (n *leafNode) Depth() uint8         { return 0 }
func (n *leafNode) Hash() catl2.Hash256  { return n.hash }
func (n *leafNode) Child(int) (catl2.TrieNode, bool) { return nil, false }
func (n *leafNode) Key() catl2.Hash256   { return n.key }
func (n *leafNode) Value() []byte        { return n.value }

func (n *leafNode) Persisted() (uint64, bool) { return n.offset, n.hasOffset }
func (n *leafNode) MarkPersisted(offset uint64) {
	n.offset = offset
	n.hasOffset = true
}

func (n *leafNode) setHash(h catl2.Hash256) { n.hash = h }
func (n *leafNode) clearDirty()             { n.dirty = false }
func (n *leafNode) isDirty() bool           { return n.dirty }

// nibble extracts the depth-th hex nibble of key, matching catl2's own
// key-to-branch addressing so a trie built here is readable by the core.
func nibble(key catl2.Hash256, depth uint8) int {
	b := key[depth/2]
	if depth%2 == 0 {
		return int(b >> 4)
	}
	return int(b & 0x0F)
}
