package device_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cirocosta/purifier-exporter/pkg/device"
)

func TestCapabilities(t *testing.T) {
	caps := device.NewCapabilities(device.Temperature, device.Humidity)

	assert.True(t, caps.Has(device.Humidity))
	assert.False(t, caps.Has(device.AQI))
	assert.Equal(t, []device.Field{device.Humidity, device.Temperature}, caps.Fields())
}

func TestFetchError(t *testing.T) {
	err := fmt.Errorf("poll: %w", &device.FetchError{
		Device: "Bedroom",
		Err:    fmt.Errorf("dial: %w", device.ErrUnreachable),
	})

	var fetchErr *device.FetchError
	assert.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "Bedroom", fetchErr.Device)
	assert.ErrorIs(t, err, device.ErrUnreachable)
	assert.Contains(t, err.Error(), "fetch 'Bedroom'")
}

func TestReason(t *testing.T) {
	for _, tc := range []struct {
		err      error
		expected string
	}{
		{fmt.Errorf("x: %w", context.DeadlineExceeded), "timeout"},
		{device.ErrUnreachable, "unreachable"},
		{device.ErrAuth, "auth"},
		{device.ErrUnsupported, "unsupported"},
		{device.ErrProtocol, "protocol"},
		{errors.New("boom"), "unknown"},
	} {
		assert.Equal(t, tc.expected, device.Reason(tc.err))
	}
}
