// Package config loads and validates the exporter's configuration file.
//
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cirocosta/purifier-exporter/pkg/device"
	"github.com/cirocosta/purifier-exporter/pkg/miot"
)

const defaultFetchTimeoutSeconds = 10

// Error is the error returned whenever the configuration can't be used.
// It's always fatal.
//
type Error struct {
	// Path is the configuration file being loaded.
	//
	Path string

	// Field is the offending field, if any (e.g., `devices[1].token`).
	//
	Field string

	Err error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config '%s': %v", e.Path, e.Err)
	}

	return fmt.Sprintf("config '%s': %s: %v", e.Path, e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	errMissing  = errors.New("required field missing")
	errPositive = errors.New("must be a positive integer")
	errBlank    = errors.New("must not be blank")
)

// Config is the validated configuration.
//
type Config struct {
	ListeningPort   int
	PollingInterval time.Duration
	FetchTimeout    time.Duration
	Devices         []device.Descriptor
}

// deviceFile is a device entry as found in the file. `ip` is the key used by
// earlier versions of the configuration.
//
type deviceFile struct {
	Address string `json:"address" yaml:"address"`
	IP      string `json:"ip" yaml:"ip"`
	Token   string `json:"token" yaml:"token"`
	Name    string `json:"name" yaml:"name"`
	Model   string `json:"model" yaml:"model"`
}

// file is the raw document. Pointers are used so that absent fields can be
// told apart from zero values. `prometheus_port` and `purifiers` are the keys
// used by earlier versions of the configuration.
//
type file struct {
	ListeningPort          *int          `json:"listening_port" yaml:"listening_port"`
	PrometheusPort         *int          `json:"prometheus_port" yaml:"prometheus_port"`
	PollingIntervalSeconds *int          `json:"polling_interval_seconds" yaml:"polling_interval_seconds"`
	FetchTimeoutSeconds    *int          `json:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds"`
	Devices                *[]deviceFile `json:"devices" yaml:"devices"`
	Purifiers              *[]deviceFile `json:"purifiers" yaml:"purifiers"`
}

// Load reads the file at `path`, parses it as YAML if its extension says so
// (JSON otherwise) and validates it.
//
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("read: %w", err)}
	}

	cfg, err := Parse(content, isYAML(path))
	if err != nil {
		var cfgErr *Error
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
			return nil, cfgErr
		}

		return nil, &Error{Path: path, Err: err}
	}

	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Parse decodes and validates a configuration document.
//
func Parse(content []byte, asYAML bool) (*Config, error) {
	var (
		f   file
		err error
	)

	if asYAML {
		err = yaml.Unmarshal(content, &f)
	} else {
		err = json.Unmarshal(content, &f)
	}

	if err != nil {
		return nil, &Error{Err: fmt.Errorf("malformed document: %w", err)}
	}

	return f.validate()
}

func (f *file) validate() (*Config, error) {
	cfg := &Config{}

	port := f.ListeningPort
	if port == nil {
		port = f.PrometheusPort
	}

	switch {
	case port == nil:
		return nil, &Error{Field: "listening_port", Err: errMissing}
	case *port <= 0 || *port > 65535:
		return nil, &Error{
			Field: "listening_port",
			Err:   fmt.Errorf("%d is not a valid port", *port),
		}
	}

	cfg.ListeningPort = *port

	switch {
	case f.PollingIntervalSeconds == nil:
		return nil, &Error{Field: "polling_interval_seconds", Err: errMissing}
	case *f.PollingIntervalSeconds <= 0:
		return nil, &Error{Field: "polling_interval_seconds", Err: errPositive}
	}

	cfg.PollingInterval = time.Duration(*f.PollingIntervalSeconds) * time.Second

	cfg.FetchTimeout = defaultFetchTimeoutSeconds * time.Second
	if f.FetchTimeoutSeconds != nil {
		if *f.FetchTimeoutSeconds <= 0 {
			return nil, &Error{Field: "fetch_timeout_seconds", Err: errPositive}
		}

		cfg.FetchTimeout = time.Duration(*f.FetchTimeoutSeconds) * time.Second
	}

	devices := f.Devices
	if devices == nil {
		devices = f.Purifiers
	}

	if devices == nil || len(*devices) == 0 {
		return nil, &Error{Field: "devices", Err: errMissing}
	}

	names := make(map[string]struct{}, len(*devices))

	for idx, d := range *devices {
		descriptor, err := d.validate(idx)
		if err != nil {
			return nil, err
		}

		if _, dup := names[descriptor.Name]; dup {
			return nil, &Error{
				Field: fmt.Sprintf("devices[%d].name", idx),
				Err:   fmt.Errorf("duplicate name '%s'", descriptor.Name),
			}
		}

		names[descriptor.Name] = struct{}{}
		cfg.Devices = append(cfg.Devices, descriptor)
	}

	return cfg, nil
}

func (d deviceFile) validate(idx int) (device.Descriptor, error) {
	address := d.Address
	if address == "" {
		address = d.IP
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"address", address},
		{"token", d.Token},
		{"name", d.Name},
	} {
		if strings.TrimSpace(field.value) == "" {
			return device.Descriptor{}, &Error{
				Field: fmt.Sprintf("devices[%d].%s", idx, field.name),
				Err:   errBlank,
			}
		}
	}

	model := d.Model
	if model == "" {
		model = miot.DefaultModel
	}

	if _, err := miot.MappingFor(model); err != nil {
		return device.Descriptor{}, &Error{
			Field: fmt.Sprintf("devices[%d].model", idx),
			Err:   err,
		}
	}

	return device.Descriptor{
		Address: strings.TrimSpace(address),
		Token:   strings.TrimSpace(d.Token),
		Name:    strings.TrimSpace(d.Name),
		Model:   model,
	}, nil
}
