// Package geoip resolves client IP addresses to country codes via MaxMind.
package geoip

import (
	"net"
	"os"
	"path/filepath"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"

	"github.com/loupe-analytics/loupe/internal/logging"
)

var reader *geoip2.Reader

// Init opens the GeoLite2 country database from dataDir. A missing database
// is not fatal: lookups degrade to the empty string and the trusted geo
// header (if configured) remains the only country source.
func Init(dataDir string) error {
	dbPath := filepath.Join(dataDir, "GeoLite2-Country.mmdb")

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		logging.L().Warn("geoip database not found, country lookups disabled",
			zap.String("path", dbPath))
		return nil
	}

	r, err := geoip2.Open(dbPath)
	if err != nil {
		logging.L().Warn("could not load geoip database, country lookups disabled",
			zap.String("path", dbPath), zap.Error(err))
		return nil
	}

	reader = r
	logging.L().Info("geoip database loaded", zap.String("path", dbPath))
	return nil
}

// Country returns the ISO 3166-1 alpha-2 country code for an IP address, or
// the empty string when the lookup is unavailable or inconclusive.
func Country(ipStr string) string {
	if reader == nil {
		return ""
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}

	record, err := reader.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

// Close closes the GeoIP database.
func Close() error {
	if reader != nil {
		err := reader.Close()
		reader = nil
		return err
	}
	return nil
}
