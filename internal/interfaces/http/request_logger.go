package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/pdv-fiscal/pkg/logger"
)

// RequestLogger deja un logger por petición (request_id, método, ruta) en el contexto de
// usuario y registra una línea por respuesta. Va después de requestid.New().
func RequestLogger(log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		zl := log.With().
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Logger()
		c.SetUserContext(zl.WithContext(c.UserContext()))

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		ev := logger.FromContext(c.UserContext(), log).Info()
		if status >= fiber.StatusInternalServerError {
			ev = logger.FromContext(c.UserContext(), log).Warn()
		}
		ev.Int("status", status).Dur("latency", time.Since(start)).Msg("petición HTTP")
		return err
	}
}
