// Package geo annotates route hops with GeoIP country data. The resolver
// is optional: a nil *Resolver is valid and resolves nothing.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver wraps a MaxMind country database.
type Resolver struct {
	reader *geoip2.Reader
}

// Open loads a GeoIP2/GeoLite2 country database from disk.
func Open(path string) (*Resolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database %s: %v", path, err)
	}
	return &Resolver{reader: reader}, nil
}

// Country returns the ISO country code for an IP address, or "" when the
// resolver is disabled or the address is unknown.
func (r *Resolver) Country(address string) string {
	if r == nil || r.reader == nil {
		return ""
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return ""
	}
	record, err := r.reader.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

// Close releases the database handle.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
