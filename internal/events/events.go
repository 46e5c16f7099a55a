// Package events persists beacon events into the append-only event log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loupe-analytics/loupe/internal/database"
)

// Event kinds accepted by the ingest pipeline.
const (
	KindPageview = "pageview"
	KindCustom   = "custom"
)

// Event is one enriched beacon ready for persistence. Optional dimensions
// are pointers so that absent values land as SQL NULL rather than empty
// strings, which keeps breakdown COALESCE placeholders meaningful.
type Event struct {
	SiteID      uuid.UUID
	Kind        string
	VisitorHash string
	Pathname    string
	Hostname    string
	Referrer    *string
	Country     *string
	Browser     string
	OS          string
	Device      string
	UTMSource   *string
	UTMMedium   *string
	UTMCampaign *string
	UTMTerm     *string
	UTMContent  *string
	EventName   *string
	Properties  map[string]any
}

// Insert writes an event and returns its server-assigned timestamp. Custom
// event properties are stored as JSONB; pageviews carry none.
func Insert(ctx context.Context, e *Event) (time.Time, error) {
	var props any
	if e.Kind == KindCustom && len(e.Properties) > 0 {
		raw, err := json.Marshal(e.Properties)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to encode event properties: %w", err)
		}
		props = raw
	}

	var createdAt time.Time
	err := database.DB.QueryRowContext(ctx, `
		INSERT INTO events (
			site_id, kind, visitor_hash, pathname, hostname, referrer, country,
			browser, os, device,
			utm_source, utm_medium, utm_campaign, utm_term, utm_content,
			event_name, properties
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at`,
		e.SiteID, e.Kind, e.VisitorHash, e.Pathname, e.Hostname, e.Referrer, e.Country,
		e.Browser, e.OS, e.Device,
		e.UTMSource, e.UTMMedium, e.UTMCampaign, e.UTMTerm, e.UTMContent,
		e.EventName, props,
	).Scan(&createdAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to insert event: %w", err)
	}

	return createdAt, nil
}
