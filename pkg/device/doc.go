// Package device defines what the exporter knows about a purifier: the
// telemetry fields it may report, the snapshot read at each tick and the
// client interface through which snapshots are fetched.
//
// The protocol used to reach a device is not part of this package (see
// `pkg/miot`).
//
package device
