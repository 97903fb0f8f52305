package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds every RPC call. Calls are never retried.
const DefaultTimeout = 5 * time.Second

// ErrNoIdentity is returned when a node answers /status without a node ID.
var ErrNoIdentity = errors.New("status response has no node id")

// Client queries the RPC endpoints of arbitrary nodes. Unlike a per-server
// API client it is not bound to a base URL: every call names its target.
type Client struct {
	http *http.Client
}

// NewClient creates a client whose calls time out after timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// NetInfo returns the peers a node is currently connected to.
func (c *Client) NetInfo(ctx context.Context, addr string) ([]Peer, error) {
	var resp netInfoResponse
	if err := c.getJSON(ctx, addr, "/net_info", &resp); err != nil {
		return nil, err
	}

	peers := make([]Peer, 0, len(resp.Result.Peers))
	for _, p := range resp.Result.Peers {
		peers = append(peers, Peer{
			ID:       p.NodeInfo.ID,
			RemoteIP: p.RemoteIP,
			Moniker:  p.NodeInfo.Moniker,
			Version:  p.NodeInfo.Version,
		})
	}
	return peers, nil
}

// Status returns the identity and sync height of the node at addr.
func (c *Client) Status(ctx context.Context, addr string) (Status, error) {
	var resp statusResponse
	if err := c.getJSON(ctx, addr, "/status", &resp); err != nil {
		return Status{}, err
	}
	if resp.Result.NodeInfo.ID == "" {
		return Status{}, ErrNoIdentity
	}

	st := Status{
		ID:      resp.Result.NodeInfo.ID,
		Moniker: resp.Result.NodeInfo.Moniker,
		Version: resp.Result.NodeInfo.Version,
	}
	if h, err := strconv.ParseInt(resp.Result.SyncInfo.LatestBlockHeight, 10, 64); err == nil {
		st.Height = &h
	}
	return st, nil
}

// AppVersion returns the application version reported by /abci_info.
func (c *Client) AppVersion(ctx context.Context, addr string) (string, error) {
	var resp abciInfoResponse
	if err := c.getJSON(ctx, addr, "/abci_info", &resp); err != nil {
		return "", err
	}
	if resp.Result.Response.Version == "" {
		return "", fmt.Errorf("abci_info: empty version")
	}
	return resp.Result.Response.Version, nil
}

func (c *Client) getJSON(ctx context.Context, addr, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+path, nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("request failed: %s: %s", res.Status, msg)
		}
		return fmt.Errorf("request failed: %s", res.Status)
	}

	decoder := json.NewDecoder(res.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
