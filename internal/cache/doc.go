// Package cache implements the shared read cache the realtime layer
// patches: stale-markable entries keyed by string, ordered id-keyed
// entity lists with upsert semantics, and a subscription-based
// invalidation fan-out for reactive consumers.
package cache
