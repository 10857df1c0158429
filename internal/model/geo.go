package model

// GeoInfo describes geographical / provider information associated with an IP.
type GeoInfo struct {
	Country string
	City    string
	ISP     string // ASN organisation
	ASN     uint
}

type IPResolver interface {
	Lookup(ip string) (GeoInfo, error)
}
