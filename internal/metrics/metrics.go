// ABOUTME: Prometheus metric definitions for the client sync core
// ABOUTME: Counters for stream processing, dedupe admissions, and cache activity

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_stream_messages_total",
		Help: "Total number of messages received on the realtime stream.",
	})

	StreamParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_stream_parse_failures_total",
		Help: "Total number of stream messages dropped as malformed.",
	})

	StreamDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_stream_duplicates_total",
		Help: "Total number of stream messages rejected by the dedupe gate.",
	})

	CacheUpserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_cache_upserts_total",
		Help: "Total number of entity snapshots upserted into cached lists.",
	})

	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_cache_invalidations_total",
		Help: "Total number of cache key invalidations, labelled by key.",
	}, []string{"key"})

	DedupeEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_dedupe_evictions_total",
		Help: "Total number of entries evicted from the dedupe gate at capacity.",
	})

	PrefetchLoads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_prefetch_loads_total",
		Help: "Total number of cache loads triggered by hover prefetch.",
	})
)
