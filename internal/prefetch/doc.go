// Package prefetch warms cache keys from user-hover triggers, rate
// limited per key so rapid repeated hovers collapse into one load.
package prefetch
