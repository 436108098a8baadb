package catlv1

import (
	"strings"
	"testing"
)

func TestReadTextFixture(t *testing.T) {
	const doc = `
ledger 1 1000
state 0100000000000000000000000000000000000000000000000000000000000000 616c696365

ledger 2 1100
state 0200000000000000000000000000000000000000000000000000000000000000 626f62
tx 6400000000000000000000000000000000000000000000000000000000000000 7478
del 0100000000000000000000000000000000000000000000000000000000000000
`
	src, err := ReadTextFixture(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ReadTextFixture: %v", err)
	}

	header, err := src.Header()
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	if header.MinLedger != 1 || header.MaxLedger != 2 {
		t.Fatalf("header = %+v", header)
	}

	d1, ok, err := src.Next()
	if err != nil || !ok {
		t.Fatalf("Next(1): ok=%v err=%v", ok, err)
	}
	if d1.Info.Seq != 1 || d1.Info.Drops != 1000 || len(d1.StateSets) != 1 {
		t.Fatalf("ledger 1 = %+v", d1)
	}
	if string(d1.StateSets[0].Value) != "alice" {
		t.Fatalf("ledger 1 state value = %q", d1.StateSets[0].Value)
	}

	d2, ok, err := src.Next()
	if err != nil || !ok {
		t.Fatalf("Next(2): ok=%v err=%v", ok, err)
	}
	if len(d2.StateSets) != 1 || len(d2.TxSets) != 1 || len(d2.StateDels) != 1 {
		t.Fatalf("ledger 2 = %+v", d2)
	}

	if _, ok, err := src.Next(); err != nil || ok {
		t.Fatalf("expected stream exhausted, got ok=%v err=%v", ok, err)
	}
}

func TestReadTextFixtureRejectsBadHex(t *testing.T) {
	const doc = "ledger 1 1000\nstate zz 616263\n"
	if _, err := ReadTextFixture(strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for invalid hex key")
	}
}
