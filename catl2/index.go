package catl2

import "sort"

// LedgerIndexView is a read-only view over a file's trailing ledger index
// (spec's random-access-by-sequence component). Entries are assumed sorted
// ascending by Sequence. Writer records them in the order ledgers are
// written and does not check that order itself.
type LedgerIndexView struct {
	data   []byte
	offset uint64
	count  int
}

// newLedgerIndexView validates that [offset, offset+count*IndexEntrySize)
// lies within data.
func newLedgerIndexView(data []byte, offset uint64, count uint64) (*LedgerIndexView, error) {
	end := offset + count*IndexEntrySize
	if end > uint64(len(data)) {
		return nil, malformed(offset, "ledger index extends past EOF")
	}
	return &LedgerIndexView{data: data, offset: offset, count: int(count)}, nil
}

// Size returns the number of ledgers indexed.
func (v *LedgerIndexView) Size() int { return v.count }

// At decodes the i'th index entry (0-based, file order == ascending
// sequence order).
func (v *LedgerIndexView) At(i int) (IndexEntry, error) {
	if i < 0 || i >= v.count {
		return IndexEntry{}, malformed(v.offset, "index entry out of range")
	}
	start := v.offset + uint64(i)*IndexEntrySize
	return DecodeIndexEntry(v.data[start : start+IndexEntrySize])
}

// Front returns the first (lowest-sequence) entry.
func (v *LedgerIndexView) Front() (IndexEntry, error) { return v.At(0) }

// Back returns the last (highest-sequence) entry.
func (v *LedgerIndexView) Back() (IndexEntry, error) { return v.At(v.count - 1) }

// SequenceRange returns the lowest and highest indexed sequence numbers.
func (v *LedgerIndexView) SequenceRange() (first, last uint32, err error) {
	fe, err := v.Front()
	if err != nil {
		return 0, 0, err
	}
	le, err := v.Back()
	if err != nil {
		return 0, 0, err
	}
	return fe.Sequence, le.Sequence, nil
}

// Find returns the entry for the exact sequence, found=false if absent.
func (v *LedgerIndexView) Find(seq uint32) (entry IndexEntry, found bool, err error) {
	i, err := v.search(seq)
	if err != nil {
		return IndexEntry{}, false, err
	}
	if i >= v.count {
		return IndexEntry{}, false, nil
	}
	e, err := v.At(i)
	if err != nil {
		return IndexEntry{}, false, err
	}
	if e.Sequence != seq {
		return IndexEntry{}, false, nil
	}
	return e, true, nil
}

// FindOrBefore returns the entry for seq if present, otherwise the entry
// with the greatest sequence strictly less than seq. found=false if seq is
// below every indexed sequence.
func (v *LedgerIndexView) FindOrBefore(seq uint32) (entry IndexEntry, found bool, err error) {
	i, err := v.search(seq)
	if err != nil {
		return IndexEntry{}, false, err
	}
	if i < v.count {
		e, err := v.At(i)
		if err != nil {
			return IndexEntry{}, false, err
		}
		if e.Sequence == seq {
			return e, true, nil
		}
	}
	if i == 0 {
		return IndexEntry{}, false, nil
	}
	e, err := v.At(i - 1)
	if err != nil {
		return IndexEntry{}, false, err
	}
	return e, true, nil
}

// search returns the smallest index i such that entry[i].Sequence >= seq,
// via binary search (spec: O(log n) random access by sequence).
func (v *LedgerIndexView) search(seq uint32) (int, error) {
	var decodeErr error
	i := sort.Search(v.count, func(i int) bool {
		e, err := v.At(i)
		if err != nil {
			decodeErr = err
			return true
		}
		return e.Sequence >= seq
	})
	if decodeErr != nil {
		return 0, decodeErr
	}
	return i, nil
}
