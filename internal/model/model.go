package model

import "time"

// Role is the heuristic function of a node derived from its moniker.
type Role string

const (
	RoleValidator Role = "validator"
	RoleSentry    Role = "sentry"
	RoleObserver  Role = "observer"
	RoleSeed      Role = "seed"
	RoleUnknown   Role = "unknown"
)

// Status is the lifecycle state of a discovery run.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusDiscovering Status = "discovering"
	StatusComplete    Status = "complete"
)

// Node is a discovered network participant keyed by its node ID.
type Node struct {
	ID            string  `json:"id" yaml:"id"`
	IP            string  `json:"ip" yaml:"ip"`
	Port          int     `json:"port" yaml:"port"`
	Moniker       string  `json:"moniker" yaml:"moniker"`
	Version       string  `json:"version" yaml:"version"`
	Role          Role    `json:"role" yaml:"role"`
	Org           string  `json:"org" yaml:"org"`
	RPCURL        string  `json:"rpc_url" yaml:"rpc_url"`
	RPCAccessible bool    `json:"rpc_accessible" yaml:"rpc_accessible"`
	AppVersion    *string `json:"app_version" yaml:"app_version"`
	Height        *int64  `json:"height" yaml:"height"`
}

// Edge is an observed peer connection. Source/Target keep the orientation
// in which the connection was first seen.
type Edge struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Stats are counters derived from a run's state.
type Stats struct {
	TotalNodes    int `json:"total_nodes"`
	TotalEdges    int `json:"total_edges"`
	AccessibleRPC int `json:"accessible_rpc"`
	Iterations    int `json:"iterations"`
}

// Snapshot is a point-in-time read of a discovery run.
type Snapshot struct {
	RunID      string          `json:"run_id,omitempty"`
	Status     Status          `json:"status"`
	Nodes      map[string]Node `json:"nodes"`
	Edges      []Edge          `json:"edges"`
	Stats      Stats           `json:"stats"`
	StartedAt  time.Time       `json:"started_at,omitempty"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
}

// LogEntry is a single timestamped progress message.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}
