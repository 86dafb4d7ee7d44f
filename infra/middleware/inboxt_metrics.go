package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"inboxt_server/pkg/apperr"
	"inboxt_server/pkg/metrics"
)

// Metrics records request latency by method, route pattern and status class.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			status = fe.Code
		case err != nil:
			status = apperr.GetHTTPStatus(err)
		}

		h := metrics.HTTPRequests.WithLabelValues(c.Method(), c.Route().Path, statusClass(status))
		metrics.ObserveSince(h, start)
		return err
	}
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
