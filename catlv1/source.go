// Package catlv1 declares the collaborator contract catlimport consumes
// for the legacy CATL v1 ledger stream format. Decoding the v1 binary wire
// format is out of scope for this module (the CATL v2 core only concerns
// itself with a v1 source as an opaque sequence of ledger deltas); Source
// is the seam a real v1 decoder implements.
package catlv1

import "github.com/xahau/catl2/catl2"

// Header summarizes a v1 source's ledger range.
type Header struct {
	MinLedger uint32
	MaxLedger uint32
	NetworkID uint32
}

// KV is one key/value pair applied to a running trie.
type KV struct {
	Key   catl2.Hash256
	Value []byte
}

// LedgerDelta is one ledger's worth of mutations read from a v1 source: the
// canonical ledger header plus the account-state and transaction key/value
// pairs to apply on top of the running state and tx tries.
type LedgerDelta struct {
	Info      catl2.LedgerInfo
	StateSets []KV
	StateDels []catl2.Hash256
	TxSets    []KV
}

// Source streams ledger deltas in ascending sequence order. Next returns
// ok=false once the stream is exhausted.
type Source interface {
	Header() (Header, error)
	Next() (LedgerDelta, bool, error)
	Close() error
}
