package catl2

import (
	"errors"
	"os"

	"github.com/xahau/catl2/log"
)

// Stats reports cumulative bytes and node counts emitted by a Writer.
// NodesShared counts nodes that were already persisted from an earlier
// ledger and were therefore referenced rather than rewritten (spec's
// structural-sharing property, supplemented into the spec as a queryable
// counter rather than a log-only observation).
type Stats struct {
	InnerNodesWritten uint64
	LeafNodesWritten  uint64
	NodesShared       uint64
	TotalBytes        uint64
}

// Option configures a Writer at construction time.
type Option func(*Writer)

// WithLogger overrides the Writer's logger. The default is log.Default().
func WithLogger(l *log.Logger) Option {
	return func(w *Writer) { w.log = l }
}

// Writer appends ledgers to a new CATL v2 file (spec §4.4). A Writer is not
// safe for concurrent use: callers append ledgers one at a time, in
// ascending sequence order, then call Finalize exactly once.
type Writer struct {
	f         *os.File
	pos       uint64
	networkID uint32

	index       []IndexEntry
	ledgerCount uint64
	firstSeq    uint64
	lastSeq     uint64
	haveFirst   bool

	stats Stats
	log   *log.Logger

	invalid   bool
	finalized bool
}

// Create opens path for writing and emits a placeholder FileHeader. The
// header is rewritten with real totals by Finalize.
func Create(path string, networkID uint32, opts ...Option) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, writeErr("create", err)
	}
	w := &Writer{f: f, networkID: networkID, log: log.Default().Module("catl2")}
	for _, opt := range opts {
		opt(w)
	}

	var buf [FileHeaderSize]byte
	NewFileHeader(networkID).Encode(buf[:])
	if _, err := w.f.Write(buf[:]); err != nil {
		f.Close()
		return nil, writeErr("create", err)
	}
	w.pos = FileHeaderSize
	w.stats.TotalBytes = FileHeaderSize
	return w, nil
}

// WriteLedger appends one ledger: its LedgerInfo, a TreesHeader, the state
// trie, and (if txTrie is non-nil) the tx trie, then records an index
// entry. stateTrie must be non-nil with a non-nil root; an empty ledger is
// still represented as a trie with one leaf, never a nil root (spec §4.4's
// misuse list).
func (w *Writer) WriteLedger(info LedgerInfo, stateTrie, txTrie Trie) error {
	if w.invalid {
		return writeErr("write_ledger", errors.New("writer invalidated by a previous error"))
	}
	if w.finalized {
		return writeErr("write_ledger", errors.New("writer already finalized"))
	}
	if stateTrie == nil || stateTrie.Root() == nil {
		return misuse("nil state trie or root")
	}

	headerOffset := w.pos

	var infoBuf [LedgerInfoSize]byte
	info.Encode(infoBuf[:])
	if _, err := w.f.WriteAt(infoBuf[:], int64(headerOffset)); err != nil {
		w.invalid = true
		return writeErr("write_ledger", err)
	}
	w.pos += LedgerInfoSize

	treesHeaderOffset := w.pos
	var thPlaceholder [TreesHeaderSize]byte
	if _, err := w.f.WriteAt(thPlaceholder[:], int64(treesHeaderOffset)); err != nil {
		w.invalid = true
		return writeErr("write_ledger", err)
	}
	w.pos += TreesHeaderSize
	w.stats.TotalBytes += LedgerInfoSize + TreesHeaderSize

	// Force recursive hash computation before any bytes are emitted, so
	// every node's Hash() below reads a cached value.
	stateTrie.Hash()
	if txTrie != nil {
		txTrie.Hash()
	}

	stateStart := w.pos
	stateRoot, err := w.serializeTrie(stateTrie.Root())
	if err != nil {
		w.invalid = true
		return writeErr("write_ledger", err)
	}
	stateBytes := w.pos - stateStart

	var txStart, txBytes, txRoot uint64
	if txTrie != nil && txTrie.Root() != nil {
		txStart = w.pos
		txRoot, err = w.serializeTrie(txTrie.Root())
		if err != nil {
			w.invalid = true
			return writeErr("write_ledger", err)
		}
		txBytes = w.pos - txStart
	}

	th := TreesHeader{StateTreeSize: stateBytes, TxTreeSize: txBytes}
	var thBuf [TreesHeaderSize]byte
	th.Encode(thBuf[:])
	if _, err := w.f.WriteAt(thBuf[:], int64(treesHeaderOffset)); err != nil {
		w.invalid = true
		return writeErr("write_ledger", err)
	}

	entry := IndexEntry{Sequence: info.Seq, HeaderOffset: headerOffset, StateTreeOffset: stateRoot, TxTreeOffset: txRoot}
	w.index = append(w.index, entry)
	if !w.haveFirst {
		w.firstSeq = uint64(info.Seq)
		w.haveFirst = true
	}
	w.lastSeq = uint64(info.Seq)
	w.ledgerCount++

	w.log.Debug("wrote ledger", "seq", info.Seq, "state_bytes", stateBytes, "tx_bytes", txBytes)
	return nil
}

// serializeTrie emits the subtree rooted at root, which must be non-nil, and
// returns the root's absolute offset (an earlier ledger's offset when the
// root itself is already on disk).
func (w *Writer) serializeTrie(root TrieNode) (uint64, error) {
	if root == nil {
		return 0, misuse("nil trie root")
	}
	return w.serializeNode(root)
}

// serializeNode emits node (and, for an inner node, everything beneath it
// not already on disk) in pre-order, returning the absolute offset it now
// occupies. Per spec §4.4, a node already marked Persisted is referenced by
// offset rather than rewritten — this is the structural-sharing mechanism.
//
// The child-pointer array is written once, after every child has returned
// its offset, rather than patched slot-by-slot, so each inner node costs a
// single extra seek-and-write instead of one per child.
func (w *Writer) serializeNode(node TrieNode) (uint64, error) {
	if off, ok := node.Persisted(); ok {
		w.stats.NodesShared++
		return off, nil
	}

	if node.IsLeaf() {
		return w.serializeLeaf(node)
	}
	return w.serializeInner(node)
}

func (w *Writer) serializeLeaf(node TrieNode) (uint64, error) {
	value := node.Value()
	if len(value) > MaxLeafPayloadSize {
		return 0, misuse("leaf payload exceeds 16 MiB")
	}

	offset := w.pos
	lh := NewLeafHeader(node.Key(), node.Hash(), uint32(len(value)), CompressionNone)
	var buf [LeafHeaderSize]byte
	lh.Encode(buf[:])
	if _, err := w.f.WriteAt(buf[:], int64(offset)); err != nil {
		return 0, err
	}
	if len(value) > 0 {
		if _, err := w.f.WriteAt(value, int64(offset+LeafHeaderSize)); err != nil {
			return 0, err
		}
	}
	w.pos = offset + LeafHeaderSize + uint64(len(value))

	node.MarkPersisted(offset)
	w.stats.LeafNodesWritten++
	w.stats.TotalBytes += LeafHeaderSize + uint64(len(value))
	return offset, nil
}

type pendingChild struct {
	branch int
	node   TrieNode
}

func (w *Writer) serializeInner(node TrieNode) (uint64, error) {
	depth := node.Depth()
	if depth > MaxDepth {
		return 0, misuse("depth exceeds 63")
	}

	var header InnerNodeHeader
	header.SetDepth(depth)
	header.Hash = node.Hash()

	children := make([]pendingChild, 0, branchCount)
	for b := 0; b < branchCount; b++ {
		child, ok := node.Child(b)
		if !ok {
			continue
		}
		ct := ChildLeaf
		if !child.IsLeaf() {
			ct = ChildInner
		}
		header.SetChildType(b, ct)
		children = append(children, pendingChild{branch: b, node: child})
	}
	if len(children) == 0 {
		return 0, malformed(w.pos, "inner node has zero non-empty branches")
	}

	offset := w.pos
	var hbuf [InnerNodeHeaderSize]byte
	header.Encode(hbuf[:])
	if _, err := w.f.WriteAt(hbuf[:], int64(offset)); err != nil {
		return 0, err
	}
	w.pos = offset + InnerNodeHeaderSize

	slotBase := w.pos
	placeholder := make([]byte, len(children)*RelOffsetSize)
	if _, err := w.f.WriteAt(placeholder, int64(slotBase)); err != nil {
		return 0, err
	}
	w.pos = slotBase + uint64(len(placeholder))

	node.MarkPersisted(offset)
	w.stats.InnerNodesWritten++
	w.stats.TotalBytes += InnerNodeHeaderSize + uint64(len(placeholder))

	rels := make([]byte, len(children)*RelOffsetSize)
	for i, pc := range children {
		childOffset, err := w.serializeNode(pc.node)
		if err != nil {
			return 0, err
		}
		slot := slotFileOffset(slotBase, i)
		rel := relativeTo(childOffset, slot)
		order.PutUint64(rels[i*RelOffsetSize:(i+1)*RelOffsetSize], uint64(rel))
	}
	if _, err := w.f.WriteAt(rels, int64(slotBase)); err != nil {
		return 0, err
	}

	return offset, nil
}

// Finalize writes the trailing ledger index, rewrites the FileHeader with
// final totals, flushes, and closes the file. Finalize must be called
// exactly once; Go has no destructor that could do this implicitly, so
// unlike a dropped C++ writer, an un-finalized Writer leaves behind a file
// whose header still holds the zeroed placeholder totals (ledger count 0,
// index offset 0), which Open reads as a file with no ledgers.
func (w *Writer) Finalize() error {
	if w.invalid {
		return writeErr("finalize", errors.New("writer previously invalidated"))
	}
	if w.finalized {
		return writeErr("finalize", errors.New("writer already finalized"))
	}

	indexOffset := w.pos
	buf := make([]byte, len(w.index)*IndexEntrySize)
	for i, e := range w.index {
		e.Encode(buf[i*IndexEntrySize : (i+1)*IndexEntrySize])
	}
	if len(buf) > 0 {
		if _, err := w.f.WriteAt(buf, int64(indexOffset)); err != nil {
			w.invalid = true
			return writeErr("finalize", err)
		}
	}
	w.pos = indexOffset + uint64(len(buf))

	header := FileHeader{
		Version:           FormatVersion,
		NetworkID:         w.networkID,
		Endianness:        endianWitness,
		LedgerCount:       w.ledgerCount,
		FirstLedgerSeq:    w.firstSeq,
		LastLedgerSeq:     w.lastSeq,
		LedgerIndexOffset: indexOffset,
	}
	copy(header.Magic[:], Magic)
	var hbuf [FileHeaderSize]byte
	header.Encode(hbuf[:])
	if _, err := w.f.WriteAt(hbuf[:], 0); err != nil {
		w.invalid = true
		return writeErr("finalize", err)
	}

	if err := w.f.Sync(); err != nil {
		w.invalid = true
		return writeErr("finalize", err)
	}
	w.finalized = true
	w.stats.TotalBytes = w.pos

	if err := w.f.Close(); err != nil {
		return writeErr("finalize", err)
	}
	w.log.Info("finalized catl2 file", "ledgers", w.ledgerCount, "bytes", w.stats.TotalBytes)
	return nil
}

// Stats returns the writer's cumulative counters. Safe to call at any point,
// including after Finalize.
func (w *Writer) Stats() Stats { return w.stats }
