package report

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"peermap/internal/model"
)

var csvHeader = []string{
	"id",
	"moniker",
	"ip",
	"port",
	"role",
	"org",
	"version",
	"rpc_url",
	"rpc_accessible",
	"app_version",
	"height",
}

// WriteCSV writes the node table with a fixed column order, sorted by ID.
// Missing app versions and heights are written as empty cells.
func WriteCSV(w io.Writer, nodes map[string]model.Node) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := nodes[id]
		var app, height string
		if n.AppVersion != nil {
			app = *n.AppVersion
		}
		if n.Height != nil {
			height = strconv.FormatInt(*n.Height, 10)
		}
		record := []string{
			n.ID,
			n.Moniker,
			n.IP,
			strconv.Itoa(n.Port),
			string(n.Role),
			n.Org,
			n.Version,
			n.RPCURL,
			strconv.FormatBool(n.RPCAccessible),
			app,
			height,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
