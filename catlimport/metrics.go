package catlimport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xahau/catl2/catl2"
)

// Metrics records import progress via prometheus/client_golang, the
// domain dependency the spec's original importer exposed only through log
// lines (LOGI'd cumulative stats in catl1-to-catl2.cpp); this turns the
// same counters into scrapeable series.
type Metrics struct {
	ledgersImported prometheus.Counter
	bytesWritten    prometheus.Counter
	nodesShared     prometheus.Counter
	importDuration  prometheus.Histogram
}

// NewMetrics registers and returns a Metrics instance against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ledgersImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "catl2",
			Subsystem: "import",
			Name:      "ledgers_total",
			Help:      "Ledgers appended to the output file.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "catl2",
			Subsystem: "import",
			Name:      "bytes_written_total",
			Help:      "Bytes appended to the output file.",
		}),
		nodesShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "catl2",
			Subsystem: "import",
			Name:      "nodes_shared_total",
			Help:      "Trie nodes referenced from a prior ledger instead of rewritten.",
		}),
		importDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "catl2",
			Subsystem: "import",
			Name:      "ledger_write_seconds",
			Help:      "WriteLedger latency per ledger.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.ledgersImported, m.bytesWritten, m.nodesShared, m.importDuration)
	return m
}

func (m *Metrics) observe(after, before catl2.Stats, elapsed time.Duration) {
	m.ledgersImported.Inc()
	m.bytesWritten.Add(float64(after.TotalBytes - before.TotalBytes))
	m.nodesShared.Add(float64(after.NodesShared - before.NodesShared))
	m.importDuration.Observe(elapsed.Seconds())
}
