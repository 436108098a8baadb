// Command catlcat explores a CATL v2 file: its header, ledger index, and
// per-ledger state/tx tries.
//
// Usage:
//
//	catlcat header <file>
//	catlcat list <file>
//	catlcat lookup --ledger N --key <hex> [--tx] <file>
//	catlcat walk --ledger N [--tx] [--workers N] [--prefetch] <file>
//	catlcat verify <file>
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/xahau/catl2/catl2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "catlcat:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "catlcat",
		Usage: "inspect CATL v2 ledger-archive files",
		Commands: []*cli.Command{
			headerCmd,
			listCmd,
			lookupCmd,
			walkCmd,
			verifyCmd,
		},
	}
}

var headerCmd = &cli.Command{
	Name:      "header",
	Usage:     "print the file header",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		r, err := openArg(c)
		if err != nil {
			return err
		}
		defer r.Close()

		h := r.Header()
		fmt.Printf("version:       %d\n", h.Version)
		fmt.Printf("network id:    %d\n", h.NetworkID)
		fmt.Printf("ledger count:  %d\n", h.LedgerCount)
		fmt.Printf("first ledger:  %d\n", h.FirstLedgerSeq)
		fmt.Printf("last ledger:   %d\n", h.LastLedgerSeq)
		fmt.Printf("index offset:  %d\n", h.LedgerIndexOffset)
		return nil
	},
}

var listCmd = &cli.Command{
	Name:      "list",
	Usage:     "list indexed ledger sequences",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		r, err := openArg(c)
		if err != nil {
			return err
		}
		defer r.Close()

		idx := r.Index()
		for i := 0; i < idx.Size(); i++ {
			e, err := idx.At(i)
			if err != nil {
				return err
			}
			fmt.Printf("%d\theader=%d\tstate=%d\ttx=%d\n", e.Sequence, e.HeaderOffset, e.StateTreeOffset, e.TxTreeOffset)
		}
		return nil
	},
}

var lookupCmd = &cli.Command{
	Name:      "lookup",
	Usage:     "look up a key in one ledger's state or tx trie",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "ledger", Required: true, Usage: "ledger sequence"},
		&cli.StringFlag{Name: "key", Required: true, Usage: "32-byte key, hex"},
		&cli.BoolFlag{Name: "tx", Usage: "look up in the tx trie instead of state"},
	},
	Action: func(c *cli.Context) error {
		r, err := openArg(c)
		if err != nil {
			return err
		}
		defer r.Close()

		key, err := parseHash(c.String("key"))
		if err != nil {
			return err
		}
		h, err := r.SeekToLedger(uint32(c.Uint64("ledger")))
		if err != nil {
			return err
		}

		var payload []byte
		var found bool
		if c.Bool("tx") {
			payload, found, err = h.LookupTx(key)
		} else {
			payload, found, err = h.LookupState(key)
		}
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("not found")
			return nil
		}
		fmt.Println(hex.EncodeToString(payload))
		return nil
	},
}

var walkCmd = &cli.Command{
	Name:      "walk",
	Usage:     "count leaves in one ledger's state or tx trie",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "ledger", Required: true, Usage: "ledger sequence"},
		&cli.BoolFlag{Name: "tx", Usage: "walk the tx trie instead of state"},
		&cli.IntFlag{Name: "workers", Value: catl2.DefaultWalkWorkers, Usage: "parallel walk worker count"},
		&cli.BoolFlag{Name: "prefetch", Usage: "prefetch the mapped region before walking"},
	},
	Action: func(c *cli.Context) error {
		r, err := openArg(c)
		if err != nil {
			return err
		}
		defer r.Close()

		h, err := r.SeekToLedger(uint32(c.Uint64("ledger")))
		if err != nil {
			return err
		}
		opts := catl2.ParallelWalkOptions{Workers: c.Int("workers"), Prefetch: c.Bool("prefetch")}
		visit := func(catl2.Hash256, []byte) bool { return true }

		var n uint64
		if c.Bool("tx") {
			n, err = h.ParallelWalkTxLeaves(context.Background(), opts, visit)
		} else {
			n, err = h.ParallelWalkStateLeaves(context.Background(), opts, visit)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%d leaves\n", n)
		return nil
	},
}

var verifyCmd = &cli.Command{
	Name:      "verify",
	Usage:     "validate the header and ledger index of a file",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		r, err := openArg(c)
		if err != nil {
			return err
		}
		defer r.Close()

		idx := r.Index()
		first, last, err := idx.SequenceRange()
		if err != nil {
			return err
		}
		fmt.Printf("ok: %d ledgers, sequence %d..%d\n", idx.Size(), first, last)
		return nil
	},
}

func openArg(c *cli.Context) (*catl2.Reader, error) {
	if c.Args().Len() < 1 {
		return nil, cli.Exit("missing <file> argument", 2)
	}
	return catl2.Open(c.Args().First())
}

func parseHash(s string) (catl2.Hash256, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return catl2.Hash256{}, fmt.Errorf("invalid hex key: %w", err)
	}
	if len(b) != 32 {
		return catl2.Hash256{}, fmt.Errorf("key must be 32 bytes, got %d", len(b))
	}
	var h catl2.Hash256
	copy(h[:], b)
	return h, nil
}
