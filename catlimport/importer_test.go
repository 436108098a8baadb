package catlimport

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xahau/catl2/catl2"
	"github.com/xahau/catl2/catlv1"
)

func hashOf(b byte) catl2.Hash256 {
	var h catl2.Hash256
	h[0] = b
	return h
}

func TestImporterRunProducesReadableFile(t *testing.T) {
	deltas := []catlv1.LedgerDelta{
		{
			Info:      catl2.LedgerInfo{Seq: 1, Drops: 1000},
			StateSets: []catlv1.KV{{Key: hashOf(1), Value: []byte("alice")}},
		},
		{
			Info:      catl2.LedgerInfo{Seq: 2, Drops: 1100},
			StateSets: []catlv1.KV{{Key: hashOf(2), Value: []byte("bob")}},
			TxSets:    []catlv1.KV{{Key: hashOf(100), Value: []byte("tx")}},
			StateDels: []catl2.Hash256{hashOf(1)},
		},
	}
	src := catlv1.NewSliceSource(catlv1.Header{MinLedger: 1, MaxLedger: 2}, deltas)

	path := filepath.Join(t.TempDir(), "out.catl2")
	w, err := catl2.Create(path, 7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	im := New(src, w)
	if err := im.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r, err := catl2.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Header().LedgerCount != 2 {
		t.Fatalf("ledger count = %d, want 2", r.Header().LedgerCount)
	}

	l2, err := r.SeekToLedger(2)
	if err != nil {
		t.Fatalf("SeekToLedger(2): %v", err)
	}
	if _, found, _ := l2.LookupState(hashOf(1)); found {
		t.Fatal("expected key(1) to be deleted by ledger 2")
	}
	payload, found, err := l2.LookupState(hashOf(2))
	if err != nil || !found || string(payload) != "bob" {
		t.Fatalf("LookupState(2) = %q, %v, %v", payload, found, err)
	}
	txPayload, found, err := l2.LookupTx(hashOf(100))
	if err != nil || !found || string(txPayload) != "tx" {
		t.Fatalf("LookupTx(100) = %q, %v, %v", txPayload, found, err)
	}

	l1, err := r.SeekToLedger(1)
	if err != nil {
		t.Fatalf("SeekToLedger(1): %v", err)
	}
	if _, found, _ := l1.LookupState(hashOf(1)); !found {
		t.Fatal("expected key(1) to still be present in ledger 1")
	}
}

func TestImporterRunCanceledContext(t *testing.T) {
	src := catlv1.NewSliceSource(catlv1.Header{}, []catlv1.LedgerDelta{
		{Info: catl2.LedgerInfo{Seq: 1}},
	})
	path := filepath.Join(t.TempDir(), "canceled.catl2")
	w, err := catl2.Create(path, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	im := New(src, w)
	if err := im.Run(ctx); err == nil {
		t.Fatal("expected an error for an already-canceled context")
	}
}
