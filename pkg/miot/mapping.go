package miot

import (
	"fmt"
	"sort"

	"github.com/cirocosta/purifier-exporter/pkg/device"
)

// DefaultModel is assumed for devices whose model hasn't been configured.
//
const DefaultModel = "zhimi.airp.rmb1"

// PropertyID addresses a property in the MIoT spec of a device: a service id
// (siid) and a property id within that service (piid).
//
// See https://home.miot-spec.com/ for the definitions of each model.
//
type PropertyID struct {
	SIID int
	PIID int
}

// Mapping associates telemetry fields to the MIoT properties that carry them
// for a specific model.
//
type Mapping map[device.Field]PropertyID

// Capabilities returns the set of fields covered by the mapping.
//
func (m Mapping) Capabilities() device.Capabilities {
	fields := make([]device.Field, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}

	return device.NewCapabilities(fields...)
}

// models holds the per-model mappings that we know of.
//
var models = map[string]Mapping{
	// Xiaomi Smart Air Purifier 4 Lite
	"zhimi.airp.rmb1": {
		// air-purifier
		device.Power: {2, 1},
		device.Fault: {2, 2},
		device.Mode:  {2, 4},

		// environment (aqi is the pm2.5 density)
		device.Humidity:    {3, 1},
		device.AQI:         {3, 4},
		device.Temperature: {3, 7},

		// filter
		device.FilterLifeRemaining: {4, 1},
		device.FilterUsedTime:      {4, 3},
		device.FilterLeftTime:      {4, 4},

		// custom-service (motor)
		device.FanSpeedRPM:   {9, 1},
		device.FavoriteLevel: {9, 11},
	},
}

// MappingFor retrieves the mapping registered for `model`.
//
func MappingFor(model string) (Mapping, error) {
	if model == "" {
		model = DefaultModel
	}

	m, ok := models[model]
	if !ok {
		return nil, fmt.Errorf("unknown model '%s' (known: %v)",
			model, Models())
	}

	return m, nil
}

// Models lists the names of the models with a known mapping.
//
func Models() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
