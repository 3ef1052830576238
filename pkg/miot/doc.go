// Package miot implements the device client on top of the MIoT
// `get_properties` JSON-RPC method.
//
// Each model is described by a mapping from telemetry fields to MIoT
// `(siid, piid)` pairs, from which the device capabilities are derived once
// at startup. The encrypted miIO wire protocol is not implemented here: calls
// go through a Transport, the default one posting JSON-RPC to a miIO relay.
//
package miot
