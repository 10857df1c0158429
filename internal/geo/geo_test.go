package geo

import (
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/August26/proxymon/internal/model"
)

func TestOpenWithoutDatabases(t *testing.T) {
	if _, err := Open("", ""); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("expected ErrNoDatabase, got %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "GeoLite2-City.mmdb")
	if _, err := Open(missing, ""); err == nil {
		t.Fatalf("expected error for missing database")
	}
}

type stubResolver map[string]model.GeoInfo

func (s stubResolver) Lookup(ip string) (model.GeoInfo, error) {
	info, ok := s[ip]
	if !ok {
		return model.GeoInfo{}, errors.New("not in database")
	}
	return info, nil
}

func TestAnnotate(t *testing.T) {
	proxies := []model.ProxyIdentity{
		{ID: "A", IP: netip.MustParseAddr("10.0.0.1")},
		{ID: "B", IP: netip.MustParseAddr("10.0.0.2")},
	}
	r := stubResolver{"10.0.0.1": {Country: "DE", City: "Frankfurt", ISP: "Example GmbH", ASN: 64500}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	out := Annotate(proxies, r, log)
	if out[0].Geo == nil || out[0].Geo.Country != "DE" || out[0].Geo.ASN != 64500 {
		t.Fatalf("A not annotated: %+v", out[0].Geo)
	}
	if out[1].Geo != nil {
		t.Fatalf("B should have no geo, got %+v", out[1].Geo)
	}
	if proxies[0].Geo != nil {
		t.Fatalf("input slice was modified")
	}
}
