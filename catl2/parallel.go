package catl2

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Parallel leaf-walk tuning (spec §4.6): work is partitioned across the
// root's non-empty branches (at most 16 subtrees), so no more than 16
// workers ever run at once, whatever accepted worker count a caller sets.
const (
	DefaultWalkWorkers = 8
	MaxWalkWorkers     = 32

	// prefetchStride touches one byte per OS page, forcing the mapping's
	// pages resident before the real walk begins.
	prefetchStride = 4096
)

// ParallelWalkOptions tunes a parallel leaf walk.
type ParallelWalkOptions struct {
	// Workers bounds how many of the root's subtrees are walked
	// concurrently. Zero selects DefaultWalkWorkers; values above
	// MaxWalkWorkers are rejected as misuse.
	Workers int
	// Prefetch sequentially touches one byte per page of the whole mapped
	// file before partitioning work, trading one linear pass for fewer page
	// faults during the concurrent phase.
	Prefetch bool
}

// ParallelWalkStateLeaves walks the state trie's leaves concurrently,
// partitioning work over the root's subtrees (spec §4.6). visit may be
// called from multiple goroutines and must be safe for concurrent use. It
// returns the number of leaves visited before ctx was canceled, an error
// was returned by visit's caller, or the walk completed.
func (h *LedgerHandle) ParallelWalkStateLeaves(ctx context.Context, opts ParallelWalkOptions, visit LeafVisitor) (uint64, error) {
	return h.parallelWalk(ctx, h.stateRoot, opts, visit)
}

// ParallelWalkTxLeaves walks the tx trie's leaves concurrently. It returns
// 0, nil immediately if this ledger has no tx tree.
func (h *LedgerHandle) ParallelWalkTxLeaves(ctx context.Context, opts ParallelWalkOptions, visit LeafVisitor) (uint64, error) {
	if !h.HasTxTrie() {
		return 0, nil
	}
	return h.parallelWalk(ctx, h.txRoot, opts, visit)
}

func (h *LedgerHandle) parallelWalk(ctx context.Context, rootOffset uint64, opts ParallelWalkOptions, visit LeafVisitor) (uint64, error) {
	workers := opts.Workers
	switch {
	case workers == 0:
		workers = DefaultWalkWorkers
	case workers < 0:
		return 0, misuse("negative worker count")
	case workers > MaxWalkWorkers:
		return 0, misuse("worker count exceeds 32")
	}

	data, low, high := h.bounds()
	refs, err := rootChildren(data, rootOffset, low, high)
	if err != nil {
		return 0, err
	}

	if opts.Prefetch {
		prefetchRange(data, low, high)
	}

	var count uint64
	var stopped atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			if stopped.Load() || gctx.Err() != nil {
				return gctx.Err()
			}
			guarded := func(key Hash256, payload []byte) bool {
				if stopped.Load() {
					return false
				}
				if !visit(key, payload) {
					stopped.Store(true)
					return false
				}
				return true
			}
			switch ref.Type {
			case ChildLeaf:
				lh, err := readLeafHeader(data, ref.Offset)
				if err != nil {
					return err
				}
				if guarded(lh.Key, leafPayload(data, ref.Offset, lh)) {
					atomic.AddUint64(&count, 1)
				}
				return nil
			case ChildInner:
				n, err := walkLeaves(data, ref.Offset, low, high, guarded)
				atomic.AddUint64(&count, uint64(n))
				return err
			default:
				return malformed(ref.Offset, "reserved child type")
			}
		})
	}

	if err := g.Wait(); err != nil {
		return atomic.LoadUint64(&count), err
	}
	return atomic.LoadUint64(&count), nil
}

// prefetchRange sequentially touches one byte per page across [low, high),
// forcing the mapping's backing pages resident before concurrent readers
// fault them in one at a time.
func prefetchRange(data []byte, low, high uint64) {
	if high > uint64(len(data)) {
		high = uint64(len(data))
	}
	var sink byte
	for i := low; i < high; i += prefetchStride {
		sink += data[i]
	}
	_ = sink
}
