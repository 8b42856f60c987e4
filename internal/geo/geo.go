package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Info holds resolved geo data for an IP address.
type Info struct {
	Country string
	Region  string
	City    string
}

// Resolver looks up geo information for a client IP. Implementations
// must be safe for concurrent use.
type Resolver interface {
	Lookup(ip string) (*Info, error)
	Close() error
}

// MaxMindResolver implements Resolver using a MaxMind GeoLite2 database.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

// NewMaxMindResolver opens a GeoLite2 City database.
func NewMaxMindResolver(dbPath string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}

	return &MaxMindResolver{reader: reader}, nil
}

// Lookup returns geo information for an IP address.
func (m *MaxMindResolver) Lookup(ip string) (*Info, error) {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ip)
	}

	record, err := m.reader.City(parsedIP)
	if err != nil {
		return nil, fmt.Errorf("GeoIP lookup failed: %w", err)
	}

	info := &Info{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		info.Region = record.Subdivisions[0].Names["en"]
	}

	return info, nil
}

// Close releases the underlying database reader.
func (m *MaxMindResolver) Close() error {
	return m.reader.Close()
}
