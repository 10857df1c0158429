// Package registry holds the static set of monitored proxies.
package registry

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/August26/proxymon/internal/model"
)

// Registry maps proxy ids to their source IPs. It is immutable after New and
// safe for concurrent use. Iteration order is insertion order.
type Registry struct {
	proxies []model.ProxyIdentity
	byID    map[string]int
	byIP    map[netip.Addr]int
}

// New builds a registry. Ids and IPs must be unique and IPs valid.
func New(proxies []model.ProxyIdentity) (*Registry, error) {
	r := &Registry{
		proxies: make([]model.ProxyIdentity, 0, len(proxies)),
		byID:    make(map[string]int, len(proxies)),
		byIP:    make(map[netip.Addr]int, len(proxies)),
	}
	for _, p := range proxies {
		if p.ID == "" {
			return nil, errors.New("proxy id is empty")
		}
		if !p.IP.IsValid() {
			return nil, fmt.Errorf("proxy %q: invalid ip", p.ID)
		}
		ip := p.IP.Unmap()
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate proxy id %q", p.ID)
		}
		if other, dup := r.byIP[ip]; dup {
			return nil, fmt.Errorf("proxy %q: ip %s already registered to %q", p.ID, ip, r.proxies[other].ID)
		}
		p.IP = ip
		r.byID[p.ID] = len(r.proxies)
		r.byIP[ip] = len(r.proxies)
		r.proxies = append(r.proxies, p)
	}
	return r, nil
}

// Owner returns the id of the proxy registered with ip.
func (r *Registry) Owner(ip netip.Addr) (string, bool) {
	i, ok := r.byIP[ip.Unmap()]
	if !ok {
		return "", false
	}
	return r.proxies[i].ID, true
}

// Get returns the proxy registered under id.
func (r *Registry) Get(id string) (model.ProxyIdentity, bool) {
	i, ok := r.byID[id]
	if !ok {
		return model.ProxyIdentity{}, false
	}
	return r.proxies[i], true
}

// Proxies returns a copy of the registered proxies in insertion order.
func (r *Registry) Proxies() []model.ProxyIdentity {
	return append([]model.ProxyIdentity(nil), r.proxies...)
}

func (r *Registry) Len() int { return len(r.proxies) }
