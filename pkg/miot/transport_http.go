package miot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/cirocosta/purifier-exporter/pkg/device"
)

// TokenHeader is the header through which the device token is handed to the
// relay, which uses it to encrypt the miIO packets sent to the device.
//
const TokenHeader = "X-Miio-Token"

// maxResponseSize caps how much of a relay response we're willing to read.
//
const maxResponseSize = 1 << 20

type request struct {
	ID     uint64      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object of a JSON-RPC response.
//
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPTransport issues MIoT JSON-RPC calls as plain HTTP POSTs to a miIO
// relay that's responsible for the encrypted UDP exchange with the device.
//
type HTTPTransport struct {
	endpoint string
	token    string
	client   *http.Client

	id uint64
}

var _ Transport = (*HTTPTransport)(nil)

// HTTPTransportOption mutates the transport to override defaults.
//
type HTTPTransportOption func(t *HTTPTransport)

// WithHTTPClient overrides the default http client.
//
func WithHTTPClient(v *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.client = v
	}
}

// NewHTTPTransport instantiates a transport targeting `address`, which may
// either be a full URL or a `host[:port]` pair (in which case plain HTTP is
// assumed).
//
func NewHTTPTransport(address, token string, opts ...HTTPTransportOption) *HTTPTransport {
	endpoint := address
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	t := &HTTPTransport{
		endpoint: endpoint,
		token:    token,
		client:   http.DefaultClient,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Call implements Transport.
//
func (t *HTTPTransport) Call(
	ctx context.Context, method string, params, result interface{},
) error {
	body, err := json.Marshal(&request{
		ID:     atomic.AddUint64(&t.id, 1),
		Method: method,
		Params: params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %v: %w", err, device.ErrUnreachable)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("post '%s': %w", t.endpoint, ctxErr)
		}

		return fmt.Errorf("post '%s': %v: %w",
			t.endpoint, err, device.ErrUnreachable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", resp.StatusCode, device.ErrAuth)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("status %d: %w", resp.StatusCode, device.ErrProtocol)
	}

	var rpcResp response

	err = json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).
		Decode(&rpcResp)
	if err != nil {
		return fmt.Errorf("decode response: %v: %w", err, device.ErrProtocol)
	}

	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %v: %w", method, rpcResp.Error, device.ErrProtocol)
	}

	if result == nil {
		return nil
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %v: %w", err, device.ErrProtocol)
	}

	return nil
}
