package http

import (
	"timetable_server/core/port/in"
	"timetable_server/pkg/apperr"
	"timetable_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ScheduleHandler serves the weekly grid read/write surface.
type ScheduleHandler struct {
	schedules in.ScheduleService
}

func NewScheduleHandler(schedules in.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// RegisterRoutes registers schedule routes.
func (h *ScheduleHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/schedule", h.GetWeek)
	router.Put("/schedule", h.SaveWeek)
	router.Delete("/schedule", h.ClearWeek)
}

// GetWeek returns the slots of one week.
// GET /api/schedule?week=2026-03-02
func (h *ScheduleHandler) GetWeek(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("not authenticated")
	}
	week, err := ParseWeekParam(c.Query("week"))
	if err != nil {
		return err
	}

	slots, err := h.schedules.GetWeek(c.UserContext(), userID, week)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{
		"week_start": week.Format("2006-01-02"),
		"slots":      slots,
	})
}

// SaveWeek replaces the week's slot set from a full grid edit.
// PUT /api/schedule
func (h *ScheduleHandler) SaveWeek(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("not authenticated")
	}

	var req in.SaveWeekRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	week, err := ParseWeekParam(req.WeekStart)
	if err != nil {
		return err
	}

	slots, err := h.schedules.SaveWeek(c.UserContext(), userID, week, req.Cells)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{
		"week_start": week.Format("2006-01-02"),
		"slots":      slots,
	})
}

// ClearWeek removes every slot of one week from the local store.
// DELETE /api/schedule?week=2026-03-02
func (h *ScheduleHandler) ClearWeek(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return apperr.Unauthorized("not authenticated")
	}
	week, err := ParseWeekParam(c.Query("week"))
	if err != nil {
		return err
	}

	if err := h.schedules.ClearWeek(c.UserContext(), userID, week); err != nil {
		return err
	}
	return response.NoContent(c)
}
