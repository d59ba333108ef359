package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"arena-token-ledger/internal/httpx"
)

// ERC-20 function selectors.
var (
	selectorBalanceOf   = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	selectorDecimals    = crypto.Keccak256([]byte("decimals()"))[:4]
	selectorTotalSupply = crypto.Keccak256([]byte("totalSupply()"))[:4]
)

// HTTPClient implements Oracle using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint  string
	http      *httpx.Client
	requestID atomic.Uint64
}

// NewHTTPClient creates a new EVM RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...httpx.Option) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		http:     httpx.New("evm_rpc", opts...),
	}
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error. RPC errors are not retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call. Transport failures are retried by httpx.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.http.Do(ctx, method, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// ethCall executes a read-only contract call at the latest block.
func (c *HTTPClient) ethCall(ctx context.Context, to string, data []byte) ([]byte, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}

	msg := map[string]string{
		"to":   common.HexToAddress(to).Hex(),
		"data": hexutil.Encode(data),
	}

	var result string
	if err := c.call(ctx, "eth_call", []any{msg, "latest"}, &result); err != nil {
		return nil, err
	}

	out, err := hexutil.Decode(result)
	if err != nil {
		return nil, fmt.Errorf("decode call result: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}

// BalanceOf returns the holder's balance in base units.
func (c *HTTPClient) BalanceOf(ctx context.Context, token, holder string) (*big.Int, error) {
	if !common.IsHexAddress(holder) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, holder)
	}

	data := append(append([]byte{}, selectorBalanceOf...), common.LeftPadBytes(common.HexToAddress(holder).Bytes(), 32)...)
	out, err := c.ethCall(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", holder, err)
	}
	return new(big.Int).SetBytes(out), nil
}

// Decimals returns the token's decimals.
func (c *HTTPClient) Decimals(ctx context.Context, token string) (uint8, error) {
	out, err := c.ethCall(ctx, token, selectorDecimals)
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	v := new(big.Int).SetBytes(out)
	if !v.IsUint64() || v.Uint64() > 255 {
		return 0, fmt.Errorf("decimals: value %s out of range", v)
	}
	return uint8(v.Uint64()), nil
}

// TotalSupply returns the token's total supply in base units.
func (c *HTTPClient) TotalSupply(ctx context.Context, token string) (*big.Int, error) {
	out, err := c.ethCall(ctx, token, selectorTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("totalSupply: %w", err)
	}
	return new(big.Int).SetBytes(out), nil
}

var _ Oracle = (*HTTPClient)(nil)
