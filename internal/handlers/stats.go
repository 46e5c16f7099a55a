package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loupe-analytics/loupe/internal/analytics"
	"github.com/loupe-analytics/loupe/internal/logging"
)

// Stats serves the dashboard read endpoints.
type Stats struct {
	engine *analytics.Engine
	now    func() time.Time
}

// NewStats wires the stats handlers to an engine.
func NewStats(engine *analytics.Engine) *Stats {
	return &Stats{engine: engine, now: time.Now}
}

// Snapshot handles GET /api/stats/:site_id?period=24h|7d|30d|90d.
func (h *Stats) Snapshot(c fiber.Ctx) error {
	siteID, err := uuid.Parse(c.Params("site_id"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "InvalidSiteID")
	}

	period := analytics.ParsePeriod(c.Query("period"))
	snap, err := h.engine.ComputeSnapshot(c.Context(), siteID, period, h.now())
	if err != nil {
		logging.L().Error("failed to compute snapshot",
			zap.String("site_id", siteID.String()), zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "PersistenceFailure")
	}

	return c.JSON(snap)
}

// Breakdown handles GET /api/stats/:site_id/breakdown/:dimension.
func (h *Stats) Breakdown(c fiber.Ctx) error {
	siteID, err := uuid.Parse(c.Params("site_id"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "InvalidSiteID")
	}

	period := analytics.ParsePeriod(c.Query("period"))
	from, to := period.Range(h.now())

	items, err := h.engine.Breakdown(c.Context(), siteID, c.Params("dimension"), from, to)
	if err != nil {
		if errors.Is(err, analytics.ErrUnknownDimension) {
			return errorResponse(c, fiber.StatusBadRequest, "UnknownDimension")
		}
		logging.L().Error("failed to compute breakdown",
			zap.String("site_id", siteID.String()),
			zap.String("dimension", c.Params("dimension")), zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "PersistenceFailure")
	}

	return c.JSON(fiber.Map{"items": items})
}

// Live handles GET /api/live/:site_id.
func (h *Stats) Live(c fiber.Ctx) error {
	siteID, err := uuid.Parse(c.Params("site_id"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "InvalidSiteID")
	}

	n, err := h.engine.LiveVisitors(c.Context(), siteID)
	if err != nil {
		logging.L().Error("failed to count live visitors",
			zap.String("site_id", siteID.String()), zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "PersistenceFailure")
	}

	return c.JSON(fiber.Map{"visitors": n})
}

// Summary handles GET /api/summary?ids=<uuid>,<uuid>,...
func (h *Stats) Summary(c fiber.Ctx) error {
	raw := strings.TrimSpace(c.Query("ids"))
	if raw == "" {
		return errorResponse(c, fiber.StatusBadRequest, "MissingSiteIDs")
	}

	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "InvalidSiteID")
		}
		ids = append(ids, id)
	}

	summaries, err := h.engine.SummarizeSites(c.Context(), ids, h.now())
	if err != nil {
		logging.L().Error("failed to summarize sites", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "PersistenceFailure")
	}

	return c.JSON(fiber.Map{"sites": summaries})
}
