// Package collector holds the metrics that this exporter exposes.
//
// Unlike collectors that reach out to their targets at scrape time, values
// here are written by the poller at every tick and simply read back whenever
// a scrape comes in: a scrape never triggers device traffic, and a slow
// device never slows a scrape down.
//
package collector
