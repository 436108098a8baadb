package catl2_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/xahau/catl2/catl2"
	"github.com/xahau/catl2/shamap"
)

func key(b byte) catl2.Hash256 {
	var h catl2.Hash256
	h[0] = b
	return h
}

func writeThreeLedgers(t *testing.T, path string) (stats catl2.Stats) {
	t.Helper()
	w, err := catl2.Create(path, 42)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	state := shamap.New()
	tx := shamap.New()

	// Ledger 1: three accounts, no tx.
	state = state.Set(key(1), []byte("alice"))
	state = state.Set(key(2), []byte("bob"))
	state = state.Set(key(3), []byte("carol"))
	info1 := catl2.LedgerInfo{Seq: 1, Drops: 1000}
	if err := w.WriteLedger(info1, state, tx); err != nil {
		t.Fatalf("WriteLedger(1): %v", err)
	}

	// Ledger 2: only one account changes; the rest of the trie should be
	// shared with ledger 1.
	state2 := state.Set(key(2), []byte("bob2"))
	tx2 := tx.Set(key(100), []byte("tx-payload"))
	info2 := catl2.LedgerInfo{Seq: 2, Drops: 1100}
	if err := w.WriteLedger(info2, state2, tx2); err != nil {
		t.Fatalf("WriteLedger(2): %v", err)
	}

	// Ledger 3: identical state to ledger 2 (no mutation at all) -- every
	// node should be shared.
	info3 := catl2.LedgerInfo{Seq: 3, Drops: 1100}
	if err := w.WriteLedger(info3, state2, tx2); err != nil {
		t.Fatalf("WriteLedger(3): %v", err)
	}

	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return w.Stats()
}

func TestWriterReaderThreeLedgerOverlap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "three.catl2")
	stats := writeThreeLedgers(t, path)

	if stats.NodesShared == 0 {
		t.Fatal("expected nonzero structural sharing across overlapping ledgers")
	}

	r, err := catl2.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	h := r.Header()
	if h.LedgerCount != 3 || h.FirstLedgerSeq != 1 || h.LastLedgerSeq != 3 {
		t.Fatalf("unexpected header: %+v", h)
	}

	l2, err := r.SeekToLedger(2)
	if err != nil {
		t.Fatalf("SeekToLedger(2): %v", err)
	}
	payload, found, err := l2.LookupState(key(2))
	if err != nil || !found || string(payload) != "bob2" {
		t.Fatalf("LookupState(key(2)) on ledger 2 = %q, %v, %v", payload, found, err)
	}
	if _, found, _ := l2.LookupState(key(99)); found {
		t.Fatal("expected key(99) to be absent")
	}

	l1, err := r.SeekToLedger(1)
	if err != nil {
		t.Fatalf("SeekToLedger(1): %v", err)
	}
	payload, found, err = l1.LookupState(key(2))
	if err != nil || !found || string(payload) != "bob" {
		t.Fatalf("LookupState(key(2)) on ledger 1 = %q, %v, %v", payload, found, err)
	}
	if l1.HasTxTrie() {
		t.Fatal("ledger 1 should have no tx trie")
	}

	l3, err := r.SeekToLedger(3)
	if err != nil {
		t.Fatalf("SeekToLedger(3): %v", err)
	}
	txPayload, found, err := l3.LookupTx(key(100))
	if err != nil || !found || string(txPayload) != "tx-payload" {
		t.Fatalf("LookupTx on ledger 3 = %q, %v, %v", txPayload, found, err)
	}
}

func TestRandomAccessBySequence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx.catl2")
	writeThreeLedgers(t, path)

	r, err := catl2.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	idx := r.Index()
	first, last, err := idx.SequenceRange()
	if err != nil || first != 1 || last != 3 {
		t.Fatalf("SequenceRange = %d, %d, %v", first, last, err)
	}

	if _, found, err := idx.Find(2); err != nil || !found {
		t.Fatalf("Find(2): found=%v err=%v", found, err)
	}
	if _, found, err := idx.Find(99); err != nil || found {
		t.Fatalf("Find(99) should not be found")
	}

	e, found, err := idx.FindOrBefore(2)
	if err != nil || !found || e.Sequence != 2 {
		t.Fatalf("FindOrBefore(2) = %+v, %v, %v", e, found, err)
	}
	e, found, err = idx.FindOrBefore(0)
	if err != nil || found {
		t.Fatalf("FindOrBefore(0) should report not found, got %+v %v", e, found)
	}
}

func TestWalkLeavesVisitsEveryKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "walk.catl2")
	writeThreeLedgers(t, path)

	r, err := catl2.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	h, err := r.SeekToLedger(2)
	if err != nil {
		t.Fatalf("SeekToLedger(2): %v", err)
	}

	var got []byte
	n, err := h.WalkStateLeaves(func(k catl2.Hash256, payload []byte) bool {
		got = append(got, k[0])
		return true
	})
	if err != nil {
		t.Fatalf("WalkStateLeaves: %v", err)
	}
	if n != 3 {
		t.Fatalf("visited %d leaves, want 3", n)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := []byte{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("leaf keys = %v, want %v", got, want)
		}
	}
}

func TestParallelWalkMatchesSequentialWalk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parallel.catl2")
	writeThreeLedgers(t, path)

	r, err := catl2.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	h, err := r.SeekToLedger(2)
	if err != nil {
		t.Fatalf("SeekToLedger(2): %v", err)
	}

	var sequential []byte
	if _, err := h.WalkStateLeaves(func(k catl2.Hash256, _ []byte) bool {
		sequential = append(sequential, k[0])
		return true
	}); err != nil {
		t.Fatalf("WalkStateLeaves: %v", err)
	}

	var mu sortableMu
	n, err := h.ParallelWalkStateLeaves(context.Background(), catl2.ParallelWalkOptions{Workers: 4}, func(k catl2.Hash256, _ []byte) bool {
		mu.add(k[0])
		return true
	})
	if err != nil {
		t.Fatalf("ParallelWalkStateLeaves: %v", err)
	}
	if int(n) != len(sequential) {
		t.Fatalf("parallel walk visited %d leaves, sequential visited %d", n, len(sequential))
	}
	sort.Slice(sequential, func(i, j int) bool { return sequential[i] < sequential[j] })
	got := mu.sorted()
	for i := range sequential {
		if sequential[i] != got[i] {
			t.Fatalf("parallel walk keys = %v, want %v", got, sequential)
		}
	}
}

// sortableMu collects bytes from concurrent goroutines behind a mutex; a
// small test-only helper since ParallelWalkStateLeaves's visit callback may
// run on multiple goroutines at once.
type sortableMu struct {
	mu   sync.Mutex
	vals []byte
}

func (s *sortableMu) add(b byte) {
	s.mu.Lock()
	s.vals = append(s.vals, b)
	s.mu.Unlock()
}

func (s *sortableMu) sorted() []byte {
	sort.Slice(s.vals, func(i, j int) bool { return s.vals[i] < s.vals[j] })
	return s.vals
}

func TestRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trunc.catl2")
	writeThreeLedgers(t, path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	truncPath := filepath.Join(dir, "trunc-short.catl2")
	if err := os.WriteFile(truncPath, data[:len(data)-8], 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := catl2.Open(truncPath); err == nil {
		t.Fatal("expected an error opening a truncated file")
	}
}

func TestRejectsEndianMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endian.catl2")
	writeThreeLedgers(t, path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// Corrupt the endianness witness field (FileHeader bytes 12..16: after
	// the 4-byte magic, 4-byte version, and 4-byte network id).
	data[12] ^= 0xFF
	data[13] ^= 0xFF
	badPath := filepath.Join(dir, "endian-bad.catl2")
	if err := os.WriteFile(badPath, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = catl2.Open(badPath)
	if err == nil {
		t.Fatal("expected an error opening a file with a mismatched endianness witness")
	}
}
