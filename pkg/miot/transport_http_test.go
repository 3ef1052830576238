package miot_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirocosta/purifier-exporter/pkg/device"
	"github.com/cirocosta/purifier-exporter/pkg/miot"
)

func TestHTTPTransportCall(t *testing.T) {
	var (
		gotToken  string
		gotMethod string
	)

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			gotToken = r.Header.Get(miot.TokenHeader)

			var req struct {
				ID     uint64          `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			gotMethod = req.Method

			_, _ = w.Write([]byte(`{"id": 1, "result": [
				{"did": "humidity", "siid": 3, "piid": 1, "code": 0, "value": 45}
			]}`))
		}))
	defer server.Close()

	// no scheme: http is assumed.
	address := strings.TrimPrefix(server.URL, "http://")
	transport := miot.NewHTTPTransport(address, "deadbeef")

	var results []miot.GetPropertiesResult
	err := transport.Call(context.Background(), "get_properties",
		[]miot.GetPropertiesParam{{DID: "humidity", SIID: 3, PIID: 1}},
		&results)
	require.NoError(t, err)

	assert.Equal(t, "deadbeef", gotToken)
	assert.Equal(t, "get_properties", gotMethod)
	require.Len(t, results, 1)
	assert.Equal(t, "humidity", results[0].DID)
}

func TestHTTPTransportErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		handler  http.HandlerFunc
		expected error
	}{
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			expected: device.ErrAuth,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			expected: device.ErrProtocol,
		},
		{
			name: "rpc error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"id": 1, "error": {"code": -9999, "message": "user ack timeout"}}`))
			},
			expected: device.ErrProtocol,
		},
		{
			name: "garbage",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			expected: device.ErrProtocol,
		},
	} {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			err := miot.NewHTTPTransport(server.URL, "token").
				Call(context.Background(), "get_properties", nil, nil)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestHTTPTransportUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := miot.NewHTTPTransport(url, "token").
		Call(context.Background(), "get_properties", nil, nil)
	assert.ErrorIs(t, err, device.ErrUnreachable)
}

func TestHTTPTransportTimeout(t *testing.T) {
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(
		func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := miot.NewHTTPTransport(server.URL, "token").
		Call(ctx, "get_properties", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "timeout", device.Reason(err))
}
