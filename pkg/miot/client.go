package miot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cirocosta/purifier-exporter/pkg/device"
)

// Transport carries a MIoT JSON-RPC call to a device and decodes the
// `result` member of the response into `result`.
//
type Transport interface {
	Call(ctx context.Context, method string, params, result interface{}) error
}

// GetPropertiesParam is one entry of the `get_properties` request.
//
type GetPropertiesParam struct {
	DID  string `json:"did"`
	SIID int    `json:"siid"`
	PIID int    `json:"piid"`
}

// GetPropertiesResult is one entry of the `get_properties` response.
//
// A `code` of 0 indicates success; anything else means that the device
// couldn't provide that property.
//
type GetPropertiesResult struct {
	DID   string          `json:"did"`
	SIID  int             `json:"siid"`
	PIID  int             `json:"piid"`
	Code  int             `json:"code"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Client implements device.Client on top of the MIoT `get_properties`
// method.
//
type Client struct {
	transport Transport
	mapping   Mapping
	params    []GetPropertiesParam
}

var _ device.Client = (*Client)(nil)

// NewClient instantiates a client that reads the properties described by
// `mapping` through `transport`.
//
func NewClient(transport Transport, mapping Mapping) *Client {
	params := make([]GetPropertiesParam, 0, len(mapping))
	for field, id := range mapping {
		params = append(params, GetPropertiesParam{
			DID:  string(field),
			SIID: id.SIID,
			PIID: id.PIID,
		})
	}

	sort.Slice(params, func(i, j int) bool {
		if params[i].SIID != params[j].SIID {
			return params[i].SIID < params[j].SIID
		}

		return params[i].PIID < params[j].PIID
	})

	return &Client{
		transport: transport,
		mapping:   mapping,
		params:    params,
	}
}

// NewClientFor instantiates a client for a configured device, resolving its
// capabilities from the model and reaching it over the HTTP relay transport.
//
func NewClientFor(d device.Descriptor, opts ...HTTPTransportOption) (*Client, error) {
	mapping, err := MappingFor(d.Model)
	if err != nil {
		return nil, fmt.Errorf("mapping for '%s': %w", d.Name, err)
	}

	return NewClient(NewHTTPTransport(d.Address, d.Token, opts...), mapping), nil
}

// Capabilities implements device.Client.
//
func (c *Client) Capabilities() device.Capabilities {
	return c.mapping.Capabilities()
}

// Fetch implements device.Client, reading all mapped properties in a single
// round-trip.
//
// Properties that the device fails to report, or whose value isn't numeric
// nor boolean, are left out of the snapshot. If none can be read, the error
// wraps device.ErrUnsupported.
//
func (c *Client) Fetch(ctx context.Context) (device.Snapshot, error) {
	var results []GetPropertiesResult

	err := c.transport.Call(ctx, "get_properties", c.params, &results)
	if err != nil {
		return nil, fmt.Errorf("get_properties: %w", err)
	}

	snapshot := make(device.Snapshot, len(results))
	for _, res := range results {
		if res.Code != 0 {
			continue
		}

		field := device.Field(res.DID)
		if _, ok := c.mapping[field]; !ok {
			continue
		}

		v, err := decodeValue(res.Value)
		if err != nil {
			continue
		}

		snapshot[field] = v
	}

	if len(snapshot) == 0 {
		return nil, fmt.Errorf("none of %d properties reported: %w",
			len(c.params), device.ErrUnsupported)
	}

	return snapshot, nil
}

// decodeValue converts a property value into a float, mapping booleans to
// 1 or 0.
//
func decodeValue(raw json.RawMessage) (float64, error) {
	var v interface{}

	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("unmarshal '%s': %v: %w",
			string(raw), err, device.ErrProtocol)
	}

	switch value := v.(type) {
	case bool:
		if value {
			return 1, nil
		}

		return 0, nil
	case float64:
		return value, nil
	default:
		return 0, fmt.Errorf("non-numeric value '%s': %w",
			string(raw), device.ErrProtocol)
	}
}
