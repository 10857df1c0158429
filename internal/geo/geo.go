// Package geo annotates proxy addresses with country, city and ASN data from
// MaxMind databases.
package geo

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/August26/proxymon/internal/model"
)

var ErrNoDatabase = errors.New("geo: no database configured")

// Resolver looks addresses up in a City and/or an ASN database. Either may
// be absent.
type Resolver struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

var _ model.IPResolver = (*Resolver)(nil)

// Open opens the databases whose paths are non-empty.
func Open(cityPath, asnPath string) (*Resolver, error) {
	if cityPath == "" && asnPath == "" {
		return nil, ErrNoDatabase
	}
	r := &Resolver{}
	if cityPath != "" {
		db, err := geoip2.Open(cityPath)
		if err != nil {
			return nil, fmt.Errorf("open city db: %w", err)
		}
		r.city = db
	}
	if asnPath != "" {
		db, err := geoip2.Open(asnPath)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open asn db: %w", err)
		}
		r.asn = db
	}
	return r, nil
}

func (r *Resolver) Lookup(ip string) (model.GeoInfo, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return model.GeoInfo{}, fmt.Errorf("geo: invalid ip %q", ip)
	}

	var info model.GeoInfo
	if r.city != nil {
		rec, err := r.city.City(addr)
		if err != nil {
			return model.GeoInfo{}, fmt.Errorf("geo: city lookup %s: %w", ip, err)
		}
		info.Country = rec.Country.IsoCode
		info.City = rec.City.Names["en"]
	}
	if r.asn != nil {
		rec, err := r.asn.ASN(addr)
		if err != nil {
			return model.GeoInfo{}, fmt.Errorf("geo: asn lookup %s: %w", ip, err)
		}
		info.ASN = rec.AutonomousSystemNumber
		info.ISP = rec.AutonomousSystemOrganization
	}
	return info, nil
}

func (r *Resolver) Close() error {
	var errs []error
	if r.city != nil {
		errs = append(errs, r.city.Close())
	}
	if r.asn != nil {
		errs = append(errs, r.asn.Close())
	}
	return errors.Join(errs...)
}

// Annotate returns a copy of proxies with Geo set from r. Lookup failures
// leave Geo nil and are logged.
func Annotate(proxies []model.ProxyIdentity, r model.IPResolver, log *slog.Logger) []model.ProxyIdentity {
	out := make([]model.ProxyIdentity, len(proxies))
	copy(out, proxies)
	if r == nil {
		return out
	}
	for i := range out {
		info, err := r.Lookup(out[i].IP.String())
		if err != nil {
			log.Warn("geo lookup failed", "proxy", out[i].ID, "ip", out[i].IP, "err", err)
			continue
		}
		out[i].Geo = &info
	}
	return out
}
