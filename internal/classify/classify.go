// Package classify derives role and organization tags from node monikers.
//
// Monikers follow the operator convention "<org>-<kind>-<nn>", for example
// "csa-vn-01" for a validator run by csa. Nodes that do not follow the
// convention fall back to substring hints ("sentry", "observer", "seed").
package classify

import (
	"strings"

	"peermap/internal/model"
)

// Role returns the role encoded in a moniker. Rules are evaluated in
// priority order and the first match wins.
func Role(moniker string) model.Role {
	m := strings.ToLower(moniker)
	switch {
	case strings.Contains(m, "-vn-") || strings.HasSuffix(m, "-vn"):
		return model.RoleValidator
	case strings.Contains(m, "-sn-") || strings.Contains(m, "sentry"):
		return model.RoleSentry
	case strings.Contains(m, "-on-") || strings.Contains(m, "observer"):
		return model.RoleObserver
	case strings.Contains(m, "seed"):
		return model.RoleSeed
	}
	return model.RoleUnknown
}

// Org returns the moniker prefix before the first hyphen, or the whole
// moniker when it has none.
func Org(moniker string) string {
	if i := strings.IndexByte(moniker, '-'); i >= 0 {
		return moniker[:i]
	}
	return moniker
}
