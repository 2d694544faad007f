package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// defaultReportWindow is applied when the caller omits the from parameter.
const defaultReportWindow = 30 * 24 * time.Hour

// ReportsHandler exposes the read-only compliance reporting surface.
type ReportsHandler struct {
	reports *service.ReportService
	clock   clock.Clock
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reports *service.ReportService, clk clock.Clock) *ReportsHandler {
	return &ReportsHandler{reports: reports, clock: clk}
}

// Compliance GET /reports/compliance?from=&to=.
func (h *ReportsHandler) Compliance(c *fiber.Ctx) error {
	from, to, err := h.parseRange(c)
	if err != nil {
		return err
	}
	snapshot, err := h.reports.ComputeCompliance(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromCompliance(snapshot)})
}

// Breaches GET /reports/breaches?from=&to=.
func (h *ReportsHandler) Breaches(c *fiber.Ctx) error {
	from, to, err := h.parseRange(c)
	if err != nil {
		return err
	}
	byType, err := h.reports.BreachesByType(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"from":             from,
		"to":               to,
		"breaches_by_type": byType,
	}})
}

// Stats GET /reports/stats?from=&to=.
func (h *ReportsHandler) Stats(c *fiber.Ctx) error {
	from, to, err := h.parseRange(c)
	if err != nil {
		return err
	}
	stats, err := h.reports.Stats(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromStats(stats)})
}

// Export GET /reports/export?from=&to=. Returns a flat column/row table so
// downstream consumers can render CSV or spreadsheets without re-deriving
// the duration math.
func (h *ReportsHandler) Export(c *fiber.Ctx) error {
	from, to, err := h.parseRange(c)
	if err != nil {
		return err
	}
	table, err := h.reports.Export(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ExportResponse{
		Columns: table.Columns,
		Rows:    table.Rows,
	}})
}

func (h *ReportsHandler) parseRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	now := h.clock.Now()
	from := now.Add(-defaultReportWindow)
	to := now

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.NewValidationError(
				"from must be RFC3339", map[string]any{"from": raw})
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.NewValidationError(
				"to must be RFC3339", map[string]any{"to": raw})
		}
		to = parsed
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, apperrors.NewValidationError(
			"to must be after from", nil)
	}
	return from, to, nil
}
