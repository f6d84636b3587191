// Package chain provides Tempo (EVM) address checks and a JSON-RPC client
// used to report chain reachability.
package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/payme/internal/httputil"
)

const maxRPCResponseBytes = 1 << 20

// Client is a minimal Tempo JSON-RPC client.
type Client struct {
	http   *httputil.Client
	rpcURL string
	nextID uint64
}

// Config holds client configuration.
type Config struct {
	RPCURL     string
	Timeout    time.Duration
	MaxRetries int
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Status is the outcome of a reachability probe.
type Status struct {
	RPCURL    string `json:"rpcUrl"`
	Reachable bool   `json:"rpcReachable"`
	ChainID   string `json:"rpcChainId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewClient creates a new Tempo client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		http: httputil.NewClient(httputil.ClientConfig{
			BaseURL:    cfg.RPCURL,
			Timeout:    timeout,
			MaxRetries: cfg.MaxRetries,
		}),
		rpcURL: cfg.RPCURL,
	}, nil
}

// RPCURL returns the node endpoint.
func (c *Client) RPCURL() string {
	return c.rpcURL
}

// =============================================================================
// Core RPC Methods
// =============================================================================

// Call makes a JSON-RPC call and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (gjson.Result, error) {
	if params == nil {
		params = []interface{}{}
	}
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      atomic.AddUint64(&c.nextID, 1),
	}

	resp, err := c.http.Post(ctx, "", req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("execute request: %w", err)
	}
	body, err := httputil.ReadBody(resp, maxRPCResponseBytes)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON-RPC response")
	}

	parsed := gjson.ParseBytes(body)
	if rpcErr := parsed.Get("error"); rpcErr.Exists() && rpcErr.Type != gjson.Null {
		return gjson.Result{}, &RPCError{
			Code:    rpcErr.Get("code").Int(),
			Message: rpcErr.Get("message").String(),
		}
	}
	result := parsed.Get("result")
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("JSON-RPC response has no result")
	}
	return result, nil
}

// ChainID returns the node's chain id in decimal.
func (c *Client) ChainID(ctx context.Context) (string, error) {
	result, err := c.Call(ctx, "eth_chainId", nil)
	if err != nil {
		return "", err
	}
	return parseQuantity(result.String())
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, err
	}
	n, err := parseQuantity(result.String())
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(n, 10, 64)
}

// Probe checks whether the node answers and reports its chain id. It never
// returns an error; failures are captured in Status.
func (c *Client) Probe(ctx context.Context) Status {
	status := Status{RPCURL: c.rpcURL}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Reachable = true
	status.ChainID = chainID
	return status
}

// parseQuantity converts a hex quantity ("0xa5bf") into decimal text.
func parseQuantity(s string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if trimmed == "" || trimmed == s {
		return "", fmt.Errorf("invalid quantity %q", s)
	}
	n, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return "", fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return strconv.FormatUint(n, 10), nil
}
