package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pdv-fiscal/internal/application/dto"
	"github.com/jhoicas/pdv-fiscal/internal/application/fiscal"
	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/pkg/logger"
)

// FiscalHandler maneja las peticiones HTTP del núcleo fiscal (protegido).
type FiscalHandler struct {
	orch     *fiscal.EmissionOrchestrator
	settings *fiscal.SettingsUseCase
	query    *fiscal.QueryUseCase
	sweeper  *fiscal.ContingencySweeper
	log      *logger.Logger
}

// NewFiscalHandler construye el handler.
func NewFiscalHandler(orch *fiscal.EmissionOrchestrator, settings *fiscal.SettingsUseCase, query *fiscal.QueryUseCase,
	sweeper *fiscal.ContingencySweeper, log *logger.Logger) *FiscalHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &FiscalHandler{orch: orch, settings: settings, query: query, sweeper: sweeper, log: log}
}

// GetSettings devuelve la configuración fiscal sin secretos.
// @Summary Configuración fiscal del emisor
// @Tags fiscal
// @Produce json
// @Success 200 {object} dto.FiscalSettingsResponse
// @Failure 422 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /api/fiscal/settings [get]
func (h *FiscalHandler) GetSettings(c *fiber.Ctx) error {
	tenantID := GetCompanyID(c)
	out, err := h.settings.Get(c.UserContext(), tenantID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// UpdateSettings crea o actualiza la configuración fiscal. Es el único escritor de la
// numeración fuera de la emisión y solo la deja avanzar.
// @Summary Actualizar configuración fiscal
// @Tags fiscal
// @Accept json
// @Produce json
// @Param body body dto.UpdateFiscalSettingsRequest true "Campos a modificar"
// @Success 200 {object} dto.FiscalSettingsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /api/fiscal/settings [put]
func (h *FiscalHandler) UpdateSettings(c *fiber.Ctx) error {
	var in dto.UpdateFiscalSettingsRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := h.settings.Update(c.UserContext(), GetCompanyID(c), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// CalculateTaxes calcula y persiste el desglose tributario de un pedido.
// @Summary Calcular tributos del pedido
// @Tags fiscal
// @Accept json
// @Produce json
// @Param body body dto.CalculateTaxesRequest true "Pedido"
// @Success 200 {object} dto.CalculateTaxesResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /api/fiscal/calculate-taxes [post]
func (h *FiscalHandler) CalculateTaxes(c *fiber.Ctx) error {
	var in dto.CalculateTaxesRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "order_id requerido"})
	}
	res, err := h.orch.CalculateTaxSummary(c.UserContext(), GetCompanyID(c), in.OrderID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiscal.TaxResultToResponse(in.OrderID, res))
}

// EmitDocument emite el documento fiscal del pedido: 201 si se creó, 200 si ya existía.
// @Summary Emitir documento fiscal
// @Tags fiscal
// @Accept json
// @Produce json
// @Param body body dto.EmitDocumentRequest true "Pedido y tipo"
// @Success 201 {object} dto.FiscalDocumentResponse
// @Success 200 {object} dto.FiscalDocumentResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /api/fiscal/emit-document [post]
func (h *FiscalHandler) EmitDocument(c *fiber.Ctx) error {
	var in dto.EmitDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "order_id requerido"})
	}
	if in.Type == "" {
		in.Type = string(entity.DocumentTypeNFCe)
	}
	res, err := h.orch.Emit(c.UserContext(), GetCompanyID(c), in.OrderID, entity.DocumentType(in.Type))
	if err != nil {
		if res != nil && res.Document != nil {
			logger.FromContext(c.UserContext(), h.log).Warn().Err(err).Str("document_id", res.Document.ID).Str("order_id", in.OrderID).
				Str("status", string(res.Document.Status)).Msg("emisión incompleta")
		}
		return h.writeError(c, err)
	}
	status := fiber.StatusOK
	if res.Created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiscal.DocumentToResponse(res.Document))
}

// ListDocuments lista los documentos del tenant, más recientes primero.
// @Summary Listar documentos fiscales
// @Tags fiscal
// @Produce json
// @Param status query string false "Estado"
// @Param limit query int false "Límite"
// @Param offset query int false "Desplazamiento"
// @Success 200 {object} dto.FiscalDocumentListResponse
// @Security BearerAuth
// @Router /api/fiscal/documents [get]
func (h *FiscalHandler) ListDocuments(c *fiber.Ctx) error {
	page := dto.PageRequest{Limit: c.QueryInt("limit", 0), Offset: c.QueryInt("offset", 0)}
	out, err := h.query.ListDocuments(c.UserContext(), GetCompanyID(c), entity.DocumentStatus(c.Query("status")), page)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// GetDocument detalle de un documento.
// @Summary Documento fiscal
// @Tags fiscal
// @Produce json
// @Param id path string true "ID del documento"
// @Success 200 {object} dto.FiscalDocumentResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /api/fiscal/documents/{id} [get]
func (h *FiscalHandler) GetDocument(c *fiber.Ctx) error {
	out, err := h.query.GetDocument(c.UserContext(), GetCompanyID(c), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// GetDocumentXML devuelve el XML firmado del documento.
// @Summary XML del documento fiscal
// @Tags fiscal
// @Produce xml
// @Param id path string true "ID del documento"
// @Success 200 {string} string
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /api/fiscal/documents/{id}/xml [get]
func (h *FiscalHandler) GetDocumentXML(c *fiber.Ctx) error {
	xml, err := h.query.GetDocumentXML(c.UserContext(), GetCompanyID(c), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
	return c.Send(xml)
}

// ListContingency cola de contingencia del tenant en orden de retransmisión.
// @Summary Cola de contingencia
// @Tags fiscal
// @Produce json
// @Success 200 {array} dto.ContingencyEntryResponse
// @Security BearerAuth
// @Router /api/fiscal/contingency [get]
func (h *FiscalHandler) ListContingency(c *fiber.Ctx) error {
	out, err := h.query.ListContingency(c.UserContext(), GetCompanyID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// RetransmitContingency ejecuta un barrido inmediato y devuelve los resultados del tenant.
// @Summary Retransmitir contingencia
// @Tags fiscal
// @Produce json
// @Success 200 {array} dto.RetransmitResultResponse
// @Security BearerAuth
// @Router /api/fiscal/contingency/retransmit [post]
func (h *FiscalHandler) RetransmitContingency(c *fiber.Ctx) error {
	tenantID := GetCompanyID(c)
	results, err := h.sweeper.RetransmitPending(c.UserContext())
	if err != nil {
		return h.writeError(c, err)
	}
	out := make([]dto.RetransmitResultResponse, 0, len(results))
	for _, r := range results {
		if r.TenantID != tenantID {
			continue
		}
		item := dto.RetransmitResultResponse{DocumentID: r.DocumentID, Outcome: string(r.Outcome), Status: string(r.Status)}
		if r.Error != nil {
			item.Error = r.Error.Error()
		}
		out = append(out, item)
	}
	return c.JSON(out)
}

// ListAuditLogs auditoría del tenant filtrable por entidad.
// @Summary Auditoría fiscal
// @Tags fiscal
// @Produce json
// @Param entity query string false "Entidad"
// @Param entity_id query string false "ID de la entidad"
// @Param limit query int false "Límite"
// @Param offset query int false "Desplazamiento"
// @Success 200 {object} dto.AuditLogListResponse
// @Security BearerAuth
// @Router /api/fiscal/audit-logs [get]
func (h *FiscalHandler) ListAuditLogs(c *fiber.Ctx) error {
	page := dto.PageRequest{Limit: c.QueryInt("limit", 0), Offset: c.QueryInt("offset", 0)}
	out, err := h.query.ListAuditLogs(c.UserContext(), GetCompanyID(c), c.Query("entity"), c.Query("entity_id"), page)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// writeError traduce los errores de dominio a códigos HTTP.
func (h *FiscalHandler) writeError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "INTERNAL"
	var signErr *domain.SigningError
	switch {
	case errors.Is(err, domain.ErrUnsupportedDocument):
		status, code = fiber.StatusBadRequest, "UNSUPPORTED_DOCUMENT"
	case errors.Is(err, domain.ErrInvalidIssuerID):
		status, code = fiber.StatusUnprocessableEntity, "INVALID_ISSUER_ID"
	case errors.Is(err, domain.ErrInvalidJurisdiction):
		status, code = fiber.StatusUnprocessableEntity, "INVALID_JURISDICTION"
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = fiber.StatusBadRequest, "VALIDATION"
	case errors.Is(err, domain.ErrOrderNotFound):
		status, code = fiber.StatusNotFound, "ORDER_NOT_FOUND"
	case errors.Is(err, domain.ErrNotFound):
		status, code = fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrConfigurationMissing):
		status, code = fiber.StatusUnprocessableEntity, "CONFIGURATION_MISSING"
	case errors.Is(err, domain.ErrCertificateMissing):
		status, code = fiber.StatusUnprocessableEntity, "CERTIFICATE_MISSING"
	case errors.Is(err, domain.ErrEndpointNotConfigured):
		status, code = fiber.StatusUnprocessableEntity, "ENDPOINT_NOT_CONFIGURED"
	case errors.Is(err, domain.ErrStaleConfiguration):
		status, code = fiber.StatusConflict, "STALE_CONFIGURATION"
	case errors.Is(err, domain.ErrNumberingRegression):
		status, code = fiber.StatusConflict, "NUMBERING_REGRESSION"
	case errors.Is(err, domain.ErrDocumentFinalized):
		status, code = fiber.StatusConflict, "DOCUMENT_FINALIZED"
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		status, code = fiber.StatusConflict, "CONFLICT"
	case errors.As(err, &signErr):
		status, code = fiber.StatusInternalServerError, "SIGNING_FAILED"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status, code = fiber.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, domain.ErrForbidden):
		status, code = fiber.StatusForbidden, "FORBIDDEN"
	}
	if status >= fiber.StatusInternalServerError {
		logger.FromContext(c.UserContext(), h.log).Error().Err(err).Str("code", code).Msg("error en la API fiscal")
	}
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: err.Error()})
}
