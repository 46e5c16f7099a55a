// Package handlers contains the HTTP surface: beacon ingestion and the
// dashboard read endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/loupe-analytics/loupe/internal/config"
	"github.com/loupe-analytics/loupe/internal/events"
	"github.com/loupe-analytics/loupe/internal/fingerprint"
	"github.com/loupe-analytics/loupe/internal/geoip"
	"github.com/loupe-analytics/loupe/internal/logging"
	"github.com/loupe-analytics/loupe/internal/realtime"
	"github.com/loupe-analytics/loupe/internal/sites"
	"github.com/loupe-analytics/loupe/internal/useragent"
)

// BeaconPayload is the wire format emitted by the tracker script. Beacons
// may arrive with a text/plain content type to dodge CORS preflight, so the
// body is parsed as strict JSON regardless of the declared type.
type BeaconPayload struct {
	Type        string         `json:"type" validate:"required,oneof=pageview custom"`
	Pathname    string         `json:"pathname" validate:"required,max=2000"`
	Hostname    string         `json:"hostname" validate:"omitempty,max=253"`
	Referrer    string         `json:"referrer" validate:"omitempty,max=2000"`
	ScreenWidth int            `json:"screen_width" validate:"omitempty,min=0"`
	Language    string         `json:"language" validate:"omitempty,max=35"`
	WebsiteID   string         `json:"website_id" validate:"omitempty,max=100"`
	UTMSource   string         `json:"utm_source" validate:"omitempty,max=100"`
	UTMMedium   string         `json:"utm_medium" validate:"omitempty,max=100"`
	UTMCampaign string         `json:"utm_campaign" validate:"omitempty,max=100"`
	UTMTerm     string         `json:"utm_term" validate:"omitempty,max=100"`
	UTMContent  string         `json:"utm_content" validate:"omitempty,max=100"`
	EventName   string         `json:"event_name" validate:"omitempty,max=50"`
	Properties  map[string]any `json:"properties"`
}

// Collector ingests beacons. The fingerprint generator arrives constructed
// so the salt never passes through this package.
type Collector struct {
	cfg          *config.Config
	fingerprints *fingerprint.Generator
	validate     *validator.Validate
}

// NewCollector wires a Collector to its config and fingerprint generator.
func NewCollector(cfg *config.Config, gen *fingerprint.Generator) *Collector {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Custom events need a name; pageviews must not smuggle one in.
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		payload := sl.Current().Interface().(BeaconPayload)
		if payload.Type == events.KindCustom && payload.EventName == "" {
			sl.ReportError(payload.EventName, "event_name", "EventName", "required_for_custom", "")
		}
	}, BeaconPayload{})

	return &Collector{cfg: cfg, fingerprints: gen, validate: v}
}

// Collect handles POST /api/send.
func (h *Collector) Collect(c fiber.Ctx) error {
	var payload BeaconPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "InvalidPayload")
	}
	if err := h.validate.Struct(payload); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "InvalidPayload")
	}

	site, err := sites.Resolve(c.Context(), payload.WebsiteID, c.Get("Origin"), c.Get("Referer"))
	if err != nil {
		return resolveErrorResponse(c, err)
	}

	ip := clientIP(c, h.cfg.ProxyMode)
	rawUA := c.Get("User-Agent")
	browser, osName, device := useragent.Parse(rawUA)

	event := &events.Event{
		SiteID:      site.ID,
		Kind:        payload.Type,
		VisitorHash: h.fingerprints.Visitor(ip, rawUA, site.ID),
		Pathname:    payload.Pathname,
		Hostname:    payload.Hostname,
		Referrer:    optional(payload.Referrer),
		Country:     optional(h.country(c, ip)),
		Browser:     browser,
		OS:          osName,
		Device:      device,
		UTMSource:   optional(payload.UTMSource),
		UTMMedium:   optional(payload.UTMMedium),
		UTMCampaign: optional(payload.UTMCampaign),
		UTMTerm:     optional(payload.UTMTerm),
		UTMContent:  optional(payload.UTMContent),
	}
	if payload.Type == events.KindCustom {
		event.EventName = optional(payload.EventName)
		event.Properties = payload.Properties
	}
	if event.Hostname == "" {
		event.Hostname = site.Domain
	}

	createdAt, err := events.Insert(c.Context(), event)
	if err != nil {
		logging.L().Error("failed to persist event",
			zap.String("site_id", site.ID.String()), zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "PersistenceFailure")
	}

	realtime.NotifyEvent(c.Context(), realtime.NewEventPayload(
		event.Kind, site.ID, event.Pathname, payload.EventName, createdAt))

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// CollectPreflight answers the CORS preflight for /api/send. The cors
// middleware attaches the headers; this is a no-op terminal handler.
func (h *Collector) CollectPreflight(c fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// country prefers the trusted geo header set by the fronting proxy and
// falls back to a local GeoIP lookup.
func (h *Collector) country(c fiber.Ctx, ip string) string {
	if h.cfg.GeoHeader != "" {
		if code := strings.ToUpper(strings.TrimSpace(c.Get(h.cfg.GeoHeader))); len(code) == 2 {
			return code
		}
	}
	return geoip.Country(ip)
}

func resolveErrorResponse(c fiber.Ctx, err error) error {
	var notRegistered *sites.NotRegisteredError
	switch {
	case errors.As(err, &notRegistered):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "SiteNotRegistered",
			"domain": notRegistered.Domain,
		})
	case errors.Is(err, sites.ErrMissingOrigin):
		return errorResponse(c, fiber.StatusBadRequest, "MissingOrigin")
	case errors.Is(err, sites.ErrInvalidOrigin):
		return errorResponse(c, fiber.StatusBadRequest, "InvalidOrigin")
	default:
		logging.L().Error("site resolution failed", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "PersistenceFailure")
	}
}

func errorResponse(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

// clientIP extracts the client address according to proxy_mode:
// "none" uses the direct connection, "xforwarded" the first entry of
// X-Forwarded-For, "cloudflare" the CF-Connecting-IP header.
func clientIP(c fiber.Ctx, proxyMode string) string {
	switch proxyMode {
	case config.ProxyModeCloudflare:
		if cfIP := c.Get("CF-Connecting-IP"); cfIP != "" {
			return strings.TrimSpace(strings.Split(cfIP, ",")[0])
		}
	case config.ProxyModeXForwarded:
		if xff := c.Get("X-Forwarded-For"); xff != "" {
			return strings.TrimSpace(strings.Split(xff, ",")[0])
		}
	}
	return c.IP()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
