package middleware

import (
	"errors"
	"log/slog"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/mahalle/mahalle-api/internal/apperr"
)

type errorBody struct {
	Error   apperr.Kind `json:"error"`
	Message string      `json:"message"`
}

// ErrorHandler renders every error as {"error": id, "message": text}. Errors
// outside the taxonomy become 500 internal and are logged with the request id.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			appErr   *apperr.Error
			fiberErr *fiber.Error
		)
		switch {
		case errors.As(err, &appErr):
			if appErr.RetryAfter > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(appErr.RetryAfter.Seconds()))))
			}
			return c.Status(appErr.Kind.Status()).JSON(errorBody{Error: appErr.Kind, Message: appErr.Message})
		case errors.As(err, &fiberErr):
			kind := apperr.KindInvalid
			switch {
			case fiberErr.Code == fiber.StatusNotFound:
				kind = apperr.KindNotFound
			case fiberErr.Code == fiber.StatusTooManyRequests:
				kind = apperr.KindRateLimited
			case fiberErr.Code >= fiber.StatusInternalServerError:
				kind = apperr.KindInternal
			}
			return c.Status(fiberErr.Code).JSON(errorBody{Error: kind, Message: fiberErr.Message})
		default:
			logger.ErrorContext(c.UserContext(), "unhandled error",
				slog.String("request_id", RequestIDFrom(c)),
				slog.String("path", c.Path()),
				slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(errorBody{Error: apperr.KindInternal, Message: "internal server error"})
		}
	}
}
