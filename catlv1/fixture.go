package catlv1

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xahau/catl2/catl2"
)

// ReadTextFixture parses a line-oriented textual stand-in for a v1 ledger
// stream into a SliceSource. The real v1 binary wire format is out of
// scope for this module; this fixture format exists so catlimport's
// pipeline (and the catlimport CLI) can be exercised end to end without a
// v1 decoder.
//
// Grammar, one ledger per block, blocks separated by a blank line:
//
//	ledger <seq> <drops>
//	state <key-hex> <value-hex>
//	tx <key-hex> <value-hex>
//	del <key-hex>
func ReadTextFixture(r io.Reader) (*SliceSource, error) {
	scanner := bufio.NewScanner(r)
	var deltas []LedgerDelta
	var cur *LedgerDelta

	flush := func() {
		if cur != nil {
			deltas = append(deltas, *cur)
			cur = nil
		}
	}

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "ledger":
			flush()
			if len(fields) != 3 {
				return nil, fmt.Errorf("fixture line %d: want 'ledger <seq> <drops>'", lineNo)
			}
			seq, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("fixture line %d: %w", lineNo, err)
			}
			drops, err := strconv.ParseUint(fields[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("fixture line %d: %w", lineNo, err)
			}
			cur = &LedgerDelta{Info: catl2.LedgerInfo{Seq: uint32(seq), Drops: drops}}
		case "state", "tx":
			if cur == nil {
				return nil, fmt.Errorf("fixture line %d: %q before any 'ledger' line", lineNo, fields[0])
			}
			if len(fields) != 3 {
				return nil, fmt.Errorf("fixture line %d: want '%s <key-hex> <value-hex>'", lineNo, fields[0])
			}
			kv, err := parseKV(fields[1], fields[2])
			if err != nil {
				return nil, fmt.Errorf("fixture line %d: %w", lineNo, err)
			}
			if fields[0] == "state" {
				cur.StateSets = append(cur.StateSets, kv)
			} else {
				cur.TxSets = append(cur.TxSets, kv)
			}
		case "del":
			if cur == nil {
				return nil, fmt.Errorf("fixture line %d: 'del' before any 'ledger' line", lineNo)
			}
			if len(fields) != 2 {
				return nil, fmt.Errorf("fixture line %d: want 'del <key-hex>'", lineNo)
			}
			key, err := parseHash(fields[1])
			if err != nil {
				return nil, fmt.Errorf("fixture line %d: %w", lineNo, err)
			}
			cur.StateDels = append(cur.StateDels, key)
		default:
			return nil, fmt.Errorf("fixture line %d: unknown directive %q", lineNo, fields[0])
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var header Header
	if len(deltas) > 0 {
		header.MinLedger = deltas[0].Info.Seq
		header.MaxLedger = deltas[len(deltas)-1].Info.Seq
	}
	return NewSliceSource(header, deltas), nil
}

func parseKV(keyHex, valueHex string) (KV, error) {
	key, err := parseHash(keyHex)
	if err != nil {
		return KV{}, err
	}
	value, err := hex.DecodeString(valueHex)
	if err != nil {
		return KV{}, fmt.Errorf("invalid value hex: %w", err)
	}
	return KV{Key: key, Value: value}, nil
}

func parseHash(s string) (catl2.Hash256, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return catl2.Hash256{}, fmt.Errorf("invalid key hex: %w", err)
	}
	if len(b) != 32 {
		return catl2.Hash256{}, fmt.Errorf("key must be 32 bytes, got %d", len(b))
	}
	var h catl2.Hash256
	copy(h[:], b)
	return h, nil
}
