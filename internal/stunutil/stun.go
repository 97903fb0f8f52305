// Package stunutil discovers the public address the crawler's traffic
// leaves from. Node operators commonly allowlist RPC by source IP, so the
// doctor command prints it.
package stunutil

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

// Mapping describes how consistently the egress address was observed.
type Mapping string

const (
	MappingUnknown Mapping = "unknown"
	MappingStable  Mapping = "stable"
	// MappingVaries means servers saw different addresses, typically a
	// symmetric NAT or a pool of egress IPs.
	MappingVaries Mapping = "varies"
)

// Egress is the result of a STUN probe.
type Egress struct {
	Addr    string
	IP      string
	Mapping Mapping
	// Answered counts the servers that returned a mapped address.
	Answered int
}

// Probe queries STUN servers for the crawler's public mapped address.
// The mapped address is for the STUN socket; only the IP carries over to
// the TCP connections used for RPC.
func Probe(ctx context.Context, servers []string, timeout time.Duration) (Egress, error) {
	if len(servers) == 0 {
		return Egress{Mapping: MappingUnknown}, fmt.Errorf("no STUN servers provided")
	}

	results := make([]string, 0, len(servers))
	var lastErr error
	for _, server := range servers {
		addr, err := probeServer(ctx, server, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		results = append(results, addr)
	}

	if len(results) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("STUN probe failed")
		}
		return Egress{Mapping: MappingUnknown}, lastErr
	}

	out := Egress{
		Addr:     results[0],
		Mapping:  Classify(results),
		Answered: len(results),
	}
	if host, _, err := net.SplitHostPort(results[0]); err == nil {
		out.IP = host
	}
	return out, nil
}

// Classify compares the IPs mapped by several servers. Ports are ignored
// since each probe uses its own socket.
func Classify(addrs []string) Mapping {
	if len(addrs) < 2 {
		return MappingUnknown
	}
	first := ipOf(addrs[0])
	for _, addr := range addrs[1:] {
		if ipOf(addr) != first {
			return MappingVaries
		}
	}
	return MappingStable
}

func ipOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func probeServer(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 1)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			fail <- err
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case addr := <-result:
		return addr.String(), nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
