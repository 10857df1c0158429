package monitor

import (
	"net/netip"
	"time"

	"github.com/August26/proxymon/internal/model"
	"github.com/August26/proxymon/internal/registry"
)

// Attribute assigns raw to the proxy whose registered IP equals its local
// address. ok is false when no proxy owns the connection. A connection is
// target-relevant only if its remote address is exactly target.
func Attribute(reg *registry.Registry, target netip.AddrPort, raw model.RawConnection, now time.Time) (model.AttributedConnection, bool) {
	id, ok := reg.Owner(raw.Local.Addr())
	if !ok {
		return model.AttributedConnection{}, false
	}
	return model.AttributedConnection{
		RawConnection:  raw,
		ProxyID:        id,
		TargetRelevant: IsTarget(raw.Remote, target),
		ObservedAt:     now,
	}, true
}

// IsTarget reports whether remote is the monitored target. IPv4-mapped IPv6
// addresses compare equal to their IPv4 form.
func IsTarget(remote, target netip.AddrPort) bool {
	return remote.Port() == target.Port() && remote.Addr().Unmap() == target.Addr().Unmap()
}
