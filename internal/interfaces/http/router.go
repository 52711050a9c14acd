package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/metrics"
	"github.com/jhoicas/pdv-fiscal/pkg/jwt"
	"github.com/jhoicas/pdv-fiscal/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Fiscal         *FiscalHandler
	JWTSecret      string
	MetricsEnabled bool
	MetricsPath    string
	Logger         *logger.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Use(requestid.New(), RequestLogger(deps.Logger))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if deps.MetricsEnabled {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, metrics.Handler())
	}

	// Rutas fiscales (requieren Bearer Token con company_id)
	fiscalGroup := app.Group("/api/fiscal", AuthMiddleware(deps.JWTSecret))
	h := deps.Fiscal
	managers := RequireRole(jwt.RoleAdmin, jwt.RoleManager)

	fiscalGroup.Get("/settings", managers, h.GetSettings)
	fiscalGroup.Put("/settings", managers, h.UpdateSettings)

	fiscalGroup.Post("/calculate-taxes", h.CalculateTaxes)
	fiscalGroup.Post("/emit-document", h.EmitDocument)

	fiscalGroup.Get("/documents", h.ListDocuments)
	fiscalGroup.Get("/documents/:id", h.GetDocument)
	fiscalGroup.Get("/documents/:id/xml", h.GetDocumentXML)

	fiscalGroup.Get("/contingency", h.ListContingency)
	fiscalGroup.Post("/contingency/retransmit", managers, h.RetransmitContingency)

	fiscalGroup.Get("/audit-logs", h.ListAuditLogs)
}
