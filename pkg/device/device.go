package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Field identifies one piece of telemetry that a purifier may report.
//
type Field string

const (
	Power               Field = "power"
	Fault               Field = "fault"
	Mode                Field = "mode"
	Humidity            Field = "humidity"
	AQI                 Field = "aqi"
	Temperature         Field = "temperature"
	FilterLifeRemaining Field = "filter_life_remaining"
	FilterUsedTime      Field = "filter_used_time"
	FilterLeftTime      Field = "filter_left_time"
	FanSpeedRPM         Field = "fan_speed_rpm"
	FavoriteLevel       Field = "favorite_level"
)

// AllFields lists every field known to the exporter, in exposition order.
//
var AllFields = []Field{
	Power,
	Fault,
	Mode,
	Humidity,
	AQI,
	Temperature,
	FilterLifeRemaining,
	FilterUsedTime,
	FilterLeftTime,
	FanSpeedRPM,
	FavoriteLevel,
}

// Snapshot is the set of values read from a device during a single tick.
//
// Boolean properties (e.g., power) are stored as 1 (true) or 0 (false).
//
type Snapshot map[Field]float64

// Capabilities is the set of fields that a device is able to report. It is
// resolved once, at startup, from the device model.
//
type Capabilities map[Field]struct{}

// NewCapabilities builds a capability set out of the given fields.
//
func NewCapabilities(fields ...Field) Capabilities {
	c := make(Capabilities, len(fields))
	for _, f := range fields {
		c[f] = struct{}{}
	}

	return c
}

// Has tells whether the device reports `f`.
//
func (c Capabilities) Has(f Field) bool {
	_, ok := c[f]
	return ok
}

// Fields returns the capabilities sorted by name.
//
func (c Capabilities) Fields() []Field {
	fields := make([]Field, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}

	sort.Slice(fields, func(i, j int) bool {
		return fields[i] < fields[j]
	})

	return fields
}

// Descriptor identifies a configured device.
//
type Descriptor struct {
	Address string
	Token   string
	Name    string
	Model   string
}

// Client is the collaborator that knows how to talk to a device.
//
type Client interface {
	// Fetch retrieves a snapshot of the device's telemetry. Errors are
	// expected to wrap one of the sentinel errors of this package.
	//
	Fetch(ctx context.Context) (Snapshot, error)

	// Capabilities returns the fields this client may ever report.
	//
	Capabilities() Capabilities
}

var (
	// ErrUnreachable indicates that the device could not be reached
	// (connection refused, timeouts, DNS, ...).
	//
	ErrUnreachable = errors.New("device unreachable")

	// ErrAuth indicates that the device (or the relay in front of it)
	// rejected the credential token.
	//
	ErrAuth = errors.New("device rejected token")

	// ErrUnsupported indicates that the device did not report any of the
	// requested properties.
	//
	ErrUnsupported = errors.New("unsupported field")

	// ErrProtocol indicates a malformed or unexpected response.
	//
	ErrProtocol = errors.New("protocol error")
)

// FetchError is the error reported when polling a device fails. It is
// always recoverable: the device is skipped for the current tick.
//
type FetchError struct {
	Device string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch '%s': %v", e.Device, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Reason gives a short, low-cardinality classification of `err` suitable for
// a metric label.
//
func Reason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "unknown"
	}
}
