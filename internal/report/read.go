package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"peermap/internal/model"
)

// ReadCSV loads a node table written by WriteCSV.
func ReadCSV(path string) (map[string]model.Node, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readCSV(file)
}

func readCSV(r io.Reader) (map[string]model.Node, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]model.Node)
	if len(records) == 0 {
		return nodes, nil
	}

	start := 0
	if len(records[0]) > 0 && records[0][0] == csvHeader[0] {
		start = 1
	}

	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < len(csvHeader) {
			return nil, fmt.Errorf("invalid record at line %d", i+1)
		}
		port, err := strconv.Atoi(rec[3])
		if err != nil {
			return nil, fmt.Errorf("invalid port at line %d: %w", i+1, err)
		}
		accessible, _ := strconv.ParseBool(rec[8])

		n := model.Node{
			ID:            rec[0],
			Moniker:       rec[1],
			IP:            rec[2],
			Port:          port,
			Role:          model.Role(rec[4]),
			Org:           rec[5],
			Version:       rec[6],
			RPCURL:        rec[7],
			RPCAccessible: accessible,
		}
		if rec[9] != "" {
			app := rec[9]
			n.AppVersion = &app
		}
		if rec[10] != "" {
			if h, err := strconv.ParseInt(rec[10], 10, 64); err == nil {
				n.Height = &h
			}
		}
		nodes[n.ID] = n
	}

	return nodes, nil
}
