// Package catlimport wires a catlv1.Source, a shamap.Trie pair, and a
// catl2.Writer together into the component 7 "source-format importer":
// a one-directional pipeline that replays a v1 ledger stream's deltas into
// a fresh CATL v2 file, letting shamap's copy-on-write Set/Delete produce
// the structural sharing the writer then recognizes via TrieNode.Persisted.
package catlimport

import (
	"context"
	"time"

	"github.com/xahau/catl2/catl2"
	"github.com/xahau/catl2/catlv1"
	"github.com/xahau/catl2/log"
	"github.com/xahau/catl2/shamap"
)

// Option configures an Importer.
type Option func(*Importer)

// WithLogger overrides the Importer's logger.
func WithLogger(l *log.Logger) Option {
	return func(im *Importer) { im.log = l }
}

// WithMetrics attaches a Metrics recorder. Without one, metrics are a
// no-op.
func WithMetrics(m *Metrics) Option {
	return func(im *Importer) { im.metrics = m }
}

// Importer replays a catlv1.Source into a catl2.Writer.
type Importer struct {
	src catlv1.Source
	w   *catl2.Writer

	state *shamap.Trie
	tx    *shamap.Trie

	log     *log.Logger
	metrics *Metrics
}

// New builds an Importer over src and w. w must not have had WriteLedger
// called on it yet.
func New(src catlv1.Source, w *catl2.Writer, opts ...Option) *Importer {
	im := &Importer{
		src:   src,
		w:     w,
		state: shamap.New(),
		tx:    shamap.New(),
		log:   log.Default().Module("catlimport"),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Run drains src, applying every ledger delta's mutations to the running
// state and tx tries and appending the resulting ledger to the writer,
// until the source is exhausted or ctx is canceled. On success it calls
// w.Finalize.
func (im *Importer) Run(ctx context.Context) error {
	header, err := im.src.Header()
	if err != nil {
		return err
	}
	im.log.Info("starting import", "min_ledger", header.MinLedger, "max_ledger", header.MaxLedger)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		delta, ok, err := im.src.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		for _, kv := range delta.StateSets {
			im.state = im.state.Set(kv.Key, kv.Value)
		}
		for _, key := range delta.StateDels {
			im.state = im.state.Delete(key)
		}
		for _, kv := range delta.TxSets {
			im.tx = im.tx.Set(kv.Key, kv.Value)
		}

		before := im.w.Stats()
		start := time.Now()
		if err := im.w.WriteLedger(delta.Info, im.state, im.tx); err != nil {
			return err
		}
		elapsed := time.Since(start)
		after := im.w.Stats()

		if im.metrics != nil {
			im.metrics.observe(after, before, elapsed)
		}
		im.log.Debug("imported ledger",
			"seq", delta.Info.Seq,
			"state_sets", len(delta.StateSets),
			"tx_sets", len(delta.TxSets),
		)
	}

	if err := im.w.Finalize(); err != nil {
		return err
	}
	im.log.Info("import complete")
	return nil
}
