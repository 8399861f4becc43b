package clicklog

import (
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"
)

// MaxMindResolver looks up click locations in a local GeoLite2/GeoIP2 city
// database. Lookups that fail for any reason yield nil and the click is
// stored without geo fields.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

func NewMaxMindResolver(dbPath string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", dbPath).Msg("geoip database loaded")
	return &MaxMindResolver{reader: reader}, nil
}

func (r *MaxMindResolver) Resolve(ipStr string) *Location {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil
	}

	// Loopback and RFC1918 addresses are never in the database.
	if ip.IsLoopback() || ip.IsPrivate() {
		return &Location{
			CountryCode: "XX",
			CountryName: "Local/Private",
			Region:      "Local",
			City:        "Local",
		}
	}

	record, err := r.reader.City(ip)
	if err != nil {
		log.Debug().Err(err).Str("ip_hash", HashIP(ipStr)).Msg("geoip lookup failed")
		return nil
	}

	loc := &Location{
		CountryCode: record.Country.IsoCode,
		CountryName: record.Country.Names["en"],
		City:        record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}

	return loc
}

func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}
