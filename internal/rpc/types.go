package rpc

// Peer is one entry of a node's /net_info peer list.
type Peer struct {
	ID       string
	RemoteIP string
	Moniker  string
	Version  string
}

// Status is the subset of /status the crawler uses. Height is nil when the
// node did not report a parsable block height.
type Status struct {
	ID      string
	Moniker string
	Version string
	Height  *int64
}

// Wire shapes of the Tendermint/CometBFT RPC responses.

type nodeInfo struct {
	ID         string `json:"id"`
	Moniker    string `json:"moniker"`
	Version    string `json:"version"`
	ListenAddr string `json:"listen_addr"`
}

type netInfoResponse struct {
	Result struct {
		Peers []struct {
			NodeInfo nodeInfo `json:"node_info"`
			RemoteIP string   `json:"remote_ip"`
		} `json:"peers"`
	} `json:"result"`
}

type statusResponse struct {
	Result struct {
		NodeInfo nodeInfo `json:"node_info"`
		SyncInfo struct {
			LatestBlockHeight string `json:"latest_block_height"`
		} `json:"sync_info"`
	} `json:"result"`
}

type abciInfoResponse struct {
	Result struct {
		Response struct {
			Version string `json:"version"`
		} `json:"response"`
	} `json:"result"`
}
