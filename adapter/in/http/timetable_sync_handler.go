package http

import (
	"timetable_server/core/port/in"
	"timetable_server/core/port/out"
	"timetable_server/pkg/apperr"
	"timetable_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// SyncHandler exposes the reconciliation engine operations.
type SyncHandler struct {
	syncs            in.SyncService
	reports          out.SyncReportRepository
	forceResyncWeeks int
}

func NewSyncHandler(syncs in.SyncService, reports out.SyncReportRepository, forceResyncWeeks int) *SyncHandler {
	if forceResyncWeeks < 1 {
		forceResyncWeeks = 16
	}
	return &SyncHandler{
		syncs:            syncs,
		reports:          reports,
		forceResyncWeeks: forceResyncWeeks,
	}
}

// RegisterRoutes registers sync routes.
func (h *SyncHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/sync", h.RunSync)
	router.Post("/sync/force", h.ForceResync)
	router.Post("/sync/recover", h.Recover)
	router.Post("/sync/cleanup", h.CleanupOrphans)
	router.Get("/sync/reports", h.ListReports)
}

// syncRequest carries a sync trigger.
type syncRequest struct {
	Week    string   `json:"week"`
	Deletes []string `json:"deletes,omitempty"`
}

// RunSync reconciles one week against the external calendar.
// POST /api/sync
func (h *SyncHandler) RunSync(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("not authenticated")
	}

	var req syncRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	week, err := ParseWeekParam(req.Week)
	if err != nil {
		return err
	}

	summary, err := h.syncs.RunSync(c.UserContext(), userID, week, req.Deletes)
	return h.respond(c, summary, err)
}

// ForceResync reruns reconciliation for a run of future weeks.
// POST /api/sync/force
func (h *SyncHandler) ForceResync(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("not authenticated")
	}

	var req syncRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	week, err := ParseWeekParam(req.Week)
	if err != nil {
		return err
	}
	weeks := c.QueryInt("weeks", h.forceResyncWeeks)
	if weeks < 1 || weeks > h.forceResyncWeeks {
		weeks = h.forceResyncWeeks
	}

	summary, err := h.syncs.ForceResync(c.UserContext(), userID, week, weeks)
	return h.respond(c, summary, err)
}

// Recover rebuilds or links local slots from remote events.
// POST /api/sync/recover
func (h *SyncHandler) Recover(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("not authenticated")
	}
	week, err := ParseWeekParam(c.Query("week"))
	if err != nil {
		return err
	}

	summary, err := h.syncs.Recover(c.UserContext(), userID, week)
	return h.respond(c, summary, err)
}

// CleanupOrphans removes local slots whose remote twin vanished.
// POST /api/sync/cleanup
func (h *SyncHandler) CleanupOrphans(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("not authenticated")
	}
	week, err := ParseWeekParam(c.Query("week"))
	if err != nil {
		return err
	}

	summary, err := h.syncs.CleanupOrphans(c.UserContext(), userID, week)
	return h.respond(c, summary, err)
}

// ListReports returns recent sync run reports for the user.
// GET /api/sync/reports?limit=20
func (h *SyncHandler) ListReports(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("not authenticated")
	}

	if h.reports == nil {
		return response.OK(c, []any{})
	}
	reports, err := h.reports.ListByUser(c.UserContext(), userID, c.QueryInt("limit", 20))
	if err != nil {
		return apperr.Persistence("list sync reports", err)
	}
	return response.OK(c, reports)
}

// respond renders a summary. A reauthentication-required failure is a
// successful HTTP exchange carrying the signal; the client starts the
// consent flow from it.
func (h *SyncHandler) respond(c *fiber.Ctx, summary *in.SyncSummary, err error) error {
	if err != nil {
		if apperr.IsReauthRequired(err) {
			return c.JSON(fiber.Map{
				"success":         false,
				"reauth_required": true,
				"summary":         summary,
			})
		}
		return err
	}
	return response.OK(c, summary)
}
