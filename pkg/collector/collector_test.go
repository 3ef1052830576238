package collector_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirocosta/purifier-exporter/pkg/collector"
	"github.com/cirocosta/purifier-exporter/pkg/device"
)

var allCaps = device.NewCapabilities(device.AllFields...)

func newRegistry(t *testing.T) (*collector.Registry, *prometheus.Registry) {
	t.Helper()

	promRegistry := prometheus.NewRegistry()

	registry, err := collector.NewRegistry(promRegistry)
	require.NoError(t, err)

	return registry, promRegistry
}

func TestNewRegistryTwice(t *testing.T) {
	promRegistry := prometheus.NewRegistry()

	_, err := collector.NewRegistry(promRegistry)
	require.NoError(t, err)

	_, err = collector.NewRegistry(promRegistry)
	assert.Error(t, err)
}

func TestUpdate(t *testing.T) {
	registry, promRegistry := newRegistry(t)

	written := registry.Update("Bedroom", device.Snapshot{
		device.Humidity:    45,
		device.Temperature: 22,
	}, allCaps)
	assert.Equal(t, 2, written)

	expected := `
# HELP mi_purifier_humidity Humidity from Purifier
# TYPE mi_purifier_humidity gauge
mi_purifier_humidity{name="Bedroom"} 45
# HELP mi_purifier_temp Temperature from Purifier
# TYPE mi_purifier_temp gauge
mi_purifier_temp{name="Bedroom"} 22
`
	err := testutil.GatherAndCompare(promRegistry, strings.NewReader(expected),
		collector.MetricName(device.Humidity),
		collector.MetricName(device.Temperature),
	)
	assert.NoError(t, err)
}

func TestUpdateSkipsFieldsOutsideCapabilities(t *testing.T) {
	registry, promRegistry := newRegistry(t)

	written := registry.Update("Office", device.Snapshot{
		device.Humidity: 45,
		device.AQI:      12,
	}, device.NewCapabilities(device.AQI))
	assert.Equal(t, 1, written)

	count, err := testutil.GatherAndCount(promRegistry,
		collector.MetricName(device.Humidity))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestObserveFailureKeepsTelemetry(t *testing.T) {
	registry, promRegistry := newRegistry(t)

	registry.Update("Bedroom", device.Snapshot{device.Humidity: 45}, allCaps)
	registry.ObserveSuccess("Bedroom", 10*time.Millisecond, time.Unix(1700000000, 0))
	registry.ObserveFailure("Bedroom", "timeout", time.Second)

	expected := `
# HELP mi_purifier_humidity Humidity from Purifier
# TYPE mi_purifier_humidity gauge
mi_purifier_humidity{name="Bedroom"} 45
# HELP mi_purifier_up Whether the last poll of the device succeeded (1) or not (0)
# TYPE mi_purifier_up gauge
mi_purifier_up{name="Bedroom"} 0
# HELP mi_purifier_last_success_timestamp_seconds Unix time of the last successful poll of the device
# TYPE mi_purifier_last_success_timestamp_seconds gauge
mi_purifier_last_success_timestamp_seconds{name="Bedroom"} 1.7e+09
# HELP mi_purifier_fetch_errors_total Number of failed polls, by reason
# TYPE mi_purifier_fetch_errors_total counter
mi_purifier_fetch_errors_total{name="Bedroom",reason="timeout"} 1
`
	err := testutil.GatherAndCompare(promRegistry, strings.NewReader(expected),
		"mi_purifier_humidity",
		"mi_purifier_up",
		"mi_purifier_last_success_timestamp_seconds",
		"mi_purifier_fetch_errors_total",
	)
	assert.NoError(t, err)

	count, err := testutil.GatherAndCount(promRegistry,
		"mi_purifier_fetch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConcurrentUpdateAndGather(t *testing.T) {
	registry, promRegistry := newRegistry(t)

	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(2)

		go func(i int) {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				registry.Update("Bedroom", device.Snapshot{
					device.Humidity: float64(j),
				}, allCaps)
				registry.ObserveSuccess("Bedroom", time.Millisecond, time.Now())
			}
		}(i)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				_, err := promRegistry.Gather()
				assert.NoError(t, err)
			}
		}()
	}

	wg.Wait()

	count, err := testutil.GatherAndCount(promRegistry, "mi_purifier_humidity")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
