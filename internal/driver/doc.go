// Package driver runs dispatch cycles on a fixed cadence.
//
// A Ticker owns one goroutine, so cycles of the same cycler never overlap.
// After a failed cycle the cycler is skipped until its backoff expires; the
// mux core itself never retries.
package driver
