package addrutil

import (
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// privatePrefixes are the non-routable ranges peers may advertise from
// inside a private network.
var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
}

// IsPrivate reports whether host is a private or loopback IP address.
// Hostnames are never considered private; they are resolved by whoever dials them.
func IsPrivate(host string) bool {
	addr, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(host), "[]"))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return true
	}
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Routable reports whether host can become a crawl target.
func Routable(host string) bool {
	return strings.TrimSpace(host) != "" && !IsPrivate(host)
}

// HostFromURL returns the host part of an RPC URL such as
// "https://rpc.example.org:26657". Bare "host:port" values are accepted too.
func HostFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return hostFromAddr(raw)
}

// RPCURL builds the RPC base URL for a peer seen at host.
func RPCURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// NormalizeBaseURL adds an http scheme and strips a trailing slash.
func NormalizeBaseURL(addr string) string {
	addr = strings.TrimRight(strings.TrimSpace(addr), "/")
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

func hostFromAddr(addr string) string {
	a := strings.TrimSpace(addr)
	if a == "" {
		return ""
	}

	// Fast path: "host:port" (IPv4 or bracketed IPv6).
	if h, _, err := net.SplitHostPort(a); err == nil {
		return h
	}

	// Handle unbracketed IPv6 "host:port" by peeling off the last ":port".
	if strings.Count(a, ":") > 1 && !strings.HasPrefix(a, "[") {
		if _, err := netip.ParseAddr(a); err == nil {
			return a
		}
		if last := strings.LastIndexByte(a, ':'); last > 0 && last < len(a)-1 {
			if _, err := strconv.Atoi(a[last+1:]); err == nil {
				return a[:last]
			}
		}
	}

	return strings.Trim(a, "[]")
}
