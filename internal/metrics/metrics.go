// Package metrics collects Prometheus counters for tracking runs.
//
// A batch run has no scrape endpoint, so the registry is written once at the
// end of a run in the node-exporter textfile format. A nil *Collector is
// valid and records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bfftrace"

// Collector owns a private registry and the counters recorded into it.
type Collector struct {
	registry      *prometheus.Registry
	verifications *prometheus.CounterVec
	cacheHits     prometheus.Counter
	iterations    prometheus.Histogram
	candidates    *prometheus.CounterVec
	nodes         prometheus.Counter
	epochs        prometheus.Counter
}

// New creates a Collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Programs executed by the replication verifier, by result.",
		}, []string{"result"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifier_cache_hits_total",
			Help:      "Verifications answered from the program cache.",
		}),
		iterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "emulation_iterations",
			Help:      "Steps executed per emulation.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 8),
		}),
		candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Neighbour candidates examined, by outcome.",
		}, []string{"outcome"}),
		nodes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lineage_nodes_total",
			Help:      "Verified lineage nodes created.",
		}),
		epochs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epochs_processed_total",
			Help:      "Epoch transitions resolved.",
		}),
	}
}

// Verification records one oracle run.
func (c *Collector) Verification(replicator bool, iterations int) {
	if c == nil {
		return
	}
	result := "rejected"
	if replicator {
		result = "replicator"
	}
	c.verifications.WithLabelValues(result).Inc()
	c.iterations.Observe(float64(iterations))
}

// EmptyProgram records a verification skipped because the program was empty.
func (c *Collector) EmptyProgram() {
	if c == nil {
		return
	}
	c.verifications.WithLabelValues("empty").Inc()
}

// CacheHit records a verification served from cache.
func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// Candidate records the outcome of one neighbour candidate.
func (c *Collector) Candidate(outcome string) {
	if c == nil {
		return
	}
	c.candidates.WithLabelValues(outcome).Inc()
}

// NodesCreated adds n verified nodes.
func (c *Collector) NodesCreated(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.nodes.Add(float64(n))
}

// EpochProcessed records one resolved epoch transition.
func (c *Collector) EpochProcessed() {
	if c == nil {
		return
	}
	c.epochs.Inc()
}

// Gatherer exposes the registry, e.g. for tests.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.registry
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
