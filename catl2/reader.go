package catl2

import (
	"fmt"

	"github.com/xahau/catl2/log"
)

// Reader provides zero-copy, random-access reads over a memory-mapped
// CATL v2 file (spec §4.5). Multiple Readers may Share the same underlying
// mapping; each is independently safe for concurrent use by one goroutine
// at a time, and LedgerHandle lookups/walks taken from a shared mapping may
// run concurrently across goroutines since they only read.
type Reader struct {
	path   string
	m      *mapping
	header FileHeader
	index  *LedgerIndexView
	log    *log.Logger
}

// Open memory-maps path and validates its FileHeader and trailing ledger
// index.
func Open(path string) (*Reader, error) {
	m, err := newMapping(path)
	if err != nil {
		return nil, err
	}
	data := m.bytes()
	header, err := DecodeFileHeader(data)
	if err != nil {
		m.release()
		return nil, err
	}
	indexEnd := header.LedgerIndexOffset + header.LedgerCount*IndexEntrySize
	if indexEnd > uint64(len(data)) {
		m.release()
		return nil, ErrTruncated
	}
	idx, err := newLedgerIndexView(data, header.LedgerIndexOffset, header.LedgerCount)
	if err != nil {
		m.release()
		return nil, err
	}
	return &Reader{
		path:   path,
		m:      m,
		header: header,
		index:  idx,
		log:    log.Default().Module("catl2"),
	}, nil
}

// Share returns a new Reader over the same underlying mapping, without
// re-mapping the file. Useful for handing independent handles to a worker
// pool (spec §4.6) while only mapping the file once.
func (r *Reader) Share() *Reader {
	r.m.acquire()
	return &Reader{path: r.path, m: r.m, header: r.header, index: r.index, log: r.log}
}

// Close releases this Reader's reference to the mapping. The mapping is
// only unmapped once every Reader sharing it has closed.
func (r *Reader) Close() error { return r.m.release() }

// Header returns the file's parsed FileHeader.
func (r *Reader) Header() FileHeader { return r.header }

// Index returns the file's trailing ledger index.
func (r *Reader) Index() *LedgerIndexView { return r.index }

// SeekToLedger resolves seq via the index and returns a handle onto that
// ledger's info and trie roots. It returns ErrLedgerNotFound if seq is not
// indexed.
func (r *Reader) SeekToLedger(seq uint32) (*LedgerHandle, error) {
	entry, found, err := r.index.Find(seq)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %d", ErrLedgerNotFound, seq)
	}
	return r.handleFor(entry)
}

// handleFor parses a ledger's LedgerInfo and TreesHeader at entry's
// recorded offsets.
func (r *Reader) handleFor(entry IndexEntry) (*LedgerHandle, error) {
	data := r.m.bytes()
	if entry.HeaderOffset+LedgerInfoSize > uint64(len(data)) {
		return nil, malformed(entry.HeaderOffset, "ledger info extends past EOF")
	}
	info, err := DecodeLedgerInfo(data[entry.HeaderOffset:])
	if err != nil {
		return nil, err
	}
	thOffset := entry.HeaderOffset + LedgerInfoSize
	if thOffset+TreesHeaderSize > uint64(len(data)) {
		return nil, malformed(thOffset, "trees header extends past EOF")
	}
	th, err := DecodeTreesHeader(data[thOffset:])
	if err != nil {
		return nil, err
	}
	return &LedgerHandle{
		r:         r,
		Info:      info,
		trees:     th,
		stateRoot: entry.StateTreeOffset,
		txRoot:    entry.TxTreeOffset,
	}, nil
}

// LedgerHandle pins one ledger's parsed header and trie root offsets,
// obtained from Reader.SeekToLedger or by iterating Reader.Index.
type LedgerHandle struct {
	r     *Reader
	Info  LedgerInfo
	trees TreesHeader

	stateRoot uint64
	txRoot    uint64 // 0 => no tx tree
}

// SkipStateTrie returns the byte length of the state trie region, letting a
// caller jump directly past it without walking it (spec §4.5's sequential
// skip path, preserved for importer-style consumers that scan a file in
// order rather than via random lookup).
func (h *LedgerHandle) SkipStateTrie() uint64 { return h.trees.StateTreeSize }

// SkipTxTrie returns the byte length of the tx trie region (0 if absent).
func (h *LedgerHandle) SkipTxTrie() uint64 { return h.trees.TxTreeSize }

// HasTxTrie reports whether this ledger recorded a tx tree.
func (h *LedgerHandle) HasTxTrie() bool { return h.txRoot != 0 }

func (h *LedgerHandle) bounds() (data []byte, low, high uint64) {
	data = h.r.m.bytes()
	return data, 0, uint64(len(data))
}

// LookupState performs a point lookup in this ledger's state trie.
func (h *LedgerHandle) LookupState(key Hash256) ([]byte, bool, error) {
	data, low, high := h.bounds()
	return lookupKey(data, h.stateRoot, key, low, high)
}

// LookupTx performs a point lookup in this ledger's tx trie. It returns
// found=false, err=nil if this ledger has no tx tree.
func (h *LedgerHandle) LookupTx(key Hash256) ([]byte, bool, error) {
	if !h.HasTxTrie() {
		return nil, false, nil
	}
	data, low, high := h.bounds()
	return lookupKey(data, h.txRoot, key, low, high)
}

// WalkStateLeaves performs a single-threaded pre-order walk of the state
// trie, invoking visit for every leaf until it returns false or the trie is
// exhausted. It returns the number of leaves visited.
func (h *LedgerHandle) WalkStateLeaves(visit LeafVisitor) (int, error) {
	data, low, high := h.bounds()
	return walkLeaves(data, h.stateRoot, low, high, visit)
}

// WalkTxLeaves performs a single-threaded pre-order walk of the tx trie.
func (h *LedgerHandle) WalkTxLeaves(visit LeafVisitor) (int, error) {
	if !h.HasTxTrie() {
		return 0, nil
	}
	data, low, high := h.bounds()
	return walkLeaves(data, h.txRoot, low, high, visit)
}
