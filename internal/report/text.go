package report

import (
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"peermap/internal/config"
	"peermap/internal/model"
)

const notAvailable = "N/A"

// DefaultPeerLimit caps the persistent peers line.
const DefaultPeerLimit = 10

// Accessible returns reachable nodes ordered by moniker, then ID.
func Accessible(nodes map[string]model.Node) []model.Node {
	out := make([]model.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.RPCAccessible {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Moniker != out[j].Moniker {
			return out[i].Moniker < out[j].Moniker
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PersistentPeers formats up to limit reachable nodes as a
// comma-separated "id@ip:port" list. limit <= 0 means no limit.
func PersistentPeers(nodes map[string]model.Node, limit int) string {
	accessible := Accessible(nodes)
	if limit > 0 && len(accessible) > limit {
		accessible = accessible[:limit]
	}

	parts := make([]string, 0, len(accessible))
	for _, n := range accessible {
		port := n.Port
		if port == 0 {
			port = config.DefaultP2PPort
		}
		parts = append(parts, n.ID+"@"+net.JoinHostPort(n.IP, strconv.Itoa(port)))
	}
	return strings.Join(parts, ",")
}

// WriteText prints a human-readable report of a discovered network.
func WriteText(w io.Writer, nodes map[string]model.Node, edges []model.Edge, peerLimit int) error {
	s := Summarize(nodes, edges)
	rule := strings.Repeat("-", 80)

	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, "DISCOVERY RESULTS")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "\nTotal peers discovered: %d\n", s.TotalNodes)
	fmt.Fprintf(w, "Total connections: %d\n", s.TotalEdges)
	fmt.Fprintf(w, "Peers with accessible RPC: %d\n", s.Accessible)
	if s.HeightCount > 0 {
		fmt.Fprintf(w, "Block height: max %d, median %d (%d reporting)\n", s.MaxHeight, s.P50Height, s.HeightCount)
	}

	fmt.Fprintf(w, "\nOrganizations (%d):\n", len(s.ByOrg))
	for _, org := range s.Orgs() {
		fmt.Fprintf(w, "  %s: %d nodes\n", org, s.ByOrg[org])
	}

	fmt.Fprintf(w, "\n%s\nACCESSIBLE RPC NODES\n%s\n", rule, rule)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONIKER\tIP\tAPP VERSION\tHEIGHT")
	for _, n := range Accessible(nodes) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Moniker, n.IP, appVersion(n), heightString(n))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s\nPERSISTENT PEERS (for config.toml)\n%s\n", rule, rule)
	_, err := fmt.Fprintf(w, "persistent_peers = %q\n", PersistentPeers(nodes, peerLimit))
	return err
}

func appVersion(n model.Node) string {
	if n.AppVersion == nil || *n.AppVersion == "" {
		return notAvailable
	}
	return *n.AppVersion
}

func heightString(n model.Node) string {
	if n.Height == nil {
		return notAvailable
	}
	return strconv.FormatInt(*n.Height, 10)
}
