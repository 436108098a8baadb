package catl2

import "testing"

func TestWireSizes(t *testing.T) {
	cases := []struct {
		name string
		got  int
		want int
	}{
		{"FileHeader", FileHeaderSize, 48},
		{"LedgerInfo", LedgerInfoSize, 118},
		{"TreesHeader", TreesHeaderSize, 16},
		{"InnerNodeHeader", InnerNodeHeaderSize, 40},
		{"LeafHeader", LeafHeaderSize, 68},
		{"IndexEntry", IndexEntrySize, 28},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s size = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestFileHeaderRoundTrip(t *testing.T) {
	h := NewFileHeader(7)
	h.LedgerCount = 3
	h.FirstLedgerSeq = 100
	h.LastLedgerSeq = 102
	h.LedgerIndexOffset = 4096

	var buf [FileHeaderSize]byte
	h.Encode(buf[:])

	got, err := DecodeFileHeader(buf[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestFileHeaderRejectsBadMagic(t *testing.T) {
	h := NewFileHeader(1)
	var buf [FileHeaderSize]byte
	h.Encode(buf[:])
	buf[0] ^= 0xFF

	if _, err := DecodeFileHeader(buf[:]); err == nil {
		t.Fatal("expected an error for corrupted magic")
	}
}

func TestFileHeaderRejectsEndianMismatch(t *testing.T) {
	h := NewFileHeader(1)
	var buf [FileHeaderSize]byte
	h.Encode(buf[:])
	order.PutUint32(buf[offEndianness:offEndianness+szEndianness], 0xFFFFFFFF)

	_, err := DecodeFileHeader(buf[:])
	if err != ErrEndianMismatch {
		t.Fatalf("got %v, want ErrEndianMismatch", err)
	}
}

func TestLedgerInfoRoundTrip(t *testing.T) {
	li := LedgerInfo{
		Seq:                 42,
		Drops:                100_000_000_000,
		ParentHash:           Hash256{1, 2, 3},
		TxHash:               Hash256{4, 5, 6},
		AccountHash:          Hash256{7, 8, 9},
		ParentCloseTime:      1000,
		CloseTime:            1010,
		CloseTimeResolution:  10,
		CloseFlags:           1,
	}
	var buf [LedgerInfoSize]byte
	li.Encode(buf[:])

	got, err := DecodeLedgerInfo(buf[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != li {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, li)
	}
}

func TestInnerNodeHeaderChildTypes(t *testing.T) {
	var h InnerNodeHeader
	h.SetDepth(5)
	h.SetChildType(0, ChildLeaf)
	h.SetChildType(3, ChildInner)
	h.SetChildType(15, ChildLeaf)

	if h.Depth() != 5 {
		t.Fatalf("depth = %d, want 5", h.Depth())
	}
	if h.ChildType(0) != ChildLeaf || h.ChildType(3) != ChildInner || h.ChildType(15) != ChildLeaf {
		t.Fatal("child type mismatch")
	}
	if h.ChildType(1) != ChildEmpty {
		t.Fatal("expected branch 1 to remain empty")
	}
	if h.PopCount() != 3 {
		t.Fatalf("popcount = %d, want 3", h.PopCount())
	}
}

func TestInnerNodeHeaderSetDepthPanicsOverMax(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for depth > 63")
		}
	}()
	var h InnerNodeHeader
	h.SetDepth(64)
}

func TestLeafHeaderDataSizeAndCompression(t *testing.T) {
	key := Hash256{0xAA}
	hash := Hash256{0xBB}
	lh := NewLeafHeader(key, hash, 1024, CompressionNone)

	if lh.DataSize() != 1024 {
		t.Fatalf("data size = %d, want 1024", lh.DataSize())
	}
	if lh.CompressionType() != CompressionNone {
		t.Fatalf("compression = %v, want CompressionNone", lh.CompressionType())
	}

	var buf [LeafHeaderSize]byte
	lh.Encode(buf[:])
	got, err := DecodeLeafHeader(buf[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != lh {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, lh)
	}
}

func TestIndexEntryRoundTrip(t *testing.T) {
	e := IndexEntry{Sequence: 55, HeaderOffset: 48, StateTreeOffset: 200, TxTreeOffset: 0}
	var buf [IndexEntrySize]byte
	e.Encode(buf[:])

	got, err := DecodeIndexEntry(buf[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != e {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
	}
}
