// Package http holds the Fiber HTTP handlers.
package http

import (
	"errors"
	"time"

	"timetable_server/core/domain"
	"timetable_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("unauthorized")

// GetUserID safely extracts user_id from fiber context.
// Returns error if not authenticated.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userIDVal := c.Locals("user_id")
	if userIDVal == nil {
		return uuid.Nil, ErrUnauthorized
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrUnauthorized
	}
	return userID, nil
}

// ParseWeekParam parses a "week" query or path value ("2006-01-02") and
// normalizes it to the Monday of that week. An empty value means the
// current week.
func ParseWeekParam(value string) (time.Time, error) {
	if value == "" {
		return domain.WeekStartOf(time.Now()), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, apperr.BadRequest("week must be formatted as YYYY-MM-DD")
	}
	return domain.WeekStartOf(t), nil
}
