package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/config"
	"github.com/plasma-experiment/rootchain/internal/network"
	"github.com/plasma-experiment/rootchain/internal/protocol"
)

const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx reply from the root chain service
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rootchain %d %s: %s", e.Status, e.Kind, e.Message)
}

// Client talks to a root chain service over HTTP
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the service at baseURL
func New(baseURL string, cfg config.NetworkConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    network.NewHTTPClient(cfg, DefaultTimeout),
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var apiErr protocol.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return &APIError{Status: resp.StatusCode, Message: resp.Status}
		}
		return &APIError{Status: resp.StatusCode, Kind: apiErr.Kind, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func (c *Client) Deposit(ctx context.Context, req protocol.DepositRequest) (uint64, error) {
	var resp protocol.DepositResponse
	if err := c.do(ctx, http.MethodPost, "/deposit", req, &resp); err != nil {
		return 0, err
	}
	return resp.BlockNumber, nil
}

func (c *Client) SubmitBlock(ctx context.Context, from common.Address, root common.Hash) (*protocol.BlockResponse, error) {
	var resp protocol.BlockResponse
	if err := c.do(ctx, http.MethodPost, "/blocks", protocol.SubmitBlockRequest{From: from, Root: root}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Block(ctx context.Context, num uint64) (*protocol.BlockResponse, error) {
	var resp protocol.BlockResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/blocks/%d", num), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) StartExit(ctx context.Context, req protocol.StartExitRequest) (*protocol.ExitResponse, error) {
	var resp protocol.ExitResponse
	if err := c.do(ctx, http.MethodPost, "/exits", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Exit looks up an exit by its decimal or 0x-hex priority
func (c *Client) Exit(ctx context.Context, priority string) (*protocol.ExitResponse, error) {
	var resp protocol.ExitResponse
	if err := c.do(ctx, http.MethodGet, "/exits/"+priority, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FinalizeExits(ctx context.Context) (*protocol.FinalizeResponse, error) {
	var resp protocol.FinalizeResponse
	if err := c.do(ctx, http.MethodPost, "/exits/finalize", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) BalanceOf(ctx context.Context, addr common.Address) (string, error) {
	var resp protocol.AmountResponse
	if err := c.do(ctx, http.MethodGet, "/balance/"+addr.Hex(), nil, &resp); err != nil {
		return "", err
	}
	return resp.Amount, nil
}

func (c *Client) Withdraw(ctx context.Context, from common.Address) (string, error) {
	var resp protocol.AmountResponse
	if err := c.do(ctx, http.MethodPost, "/withdraw", protocol.WithdrawRequest{From: from}, &resp); err != nil {
		return "", err
	}
	return resp.Amount, nil
}

func (c *Client) ChildChainBalance(ctx context.Context) (string, error) {
	var resp protocol.AmountResponse
	if err := c.do(ctx, http.MethodGet, "/child-chain-balance", nil, &resp); err != nil {
		return "", err
	}
	return resp.Amount, nil
}

func (c *Client) CalculatePriority(ctx context.Context, txBytes []byte) (string, error) {
	var resp protocol.PriorityResponse
	if err := c.do(ctx, http.MethodPost, "/priority", protocol.PriorityRequest{TxBytes: txBytes}, &resp); err != nil {
		return "", err
	}
	return resp.Priority, nil
}

// AdvanceClock moves the node's logical time forward to t
func (c *Client) AdvanceClock(ctx context.Context, t uint64) (uint64, error) {
	var resp protocol.ClockResponse
	if err := c.do(ctx, http.MethodPost, "/clock", protocol.ClockRequest{Time: t}, &resp); err != nil {
		return 0, err
	}
	return resp.Time, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
