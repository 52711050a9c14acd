// Package docs especificación OpenAPI de la API fiscal registrada en swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/api/fiscal/settings": {
            "get": {
                "tags": ["fiscal"], "summary": "Configuración fiscal del emisor", "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.FiscalSettingsResponse"}},
                    "422": {"description": "Sin configuración", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            },
            "put": {
                "tags": ["fiscal"], "summary": "Actualizar configuración fiscal (admin, manager)",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/dto.UpdateFiscalSettingsRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.FiscalSettingsResponse"}},
                    "400": {"description": "Validación", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "409": {"description": "Versión desactualizada o numeración regresiva", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/api/fiscal/calculate-taxes": {
            "post": {
                "tags": ["fiscal"], "summary": "Calcular tributos del pedido",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/dto.CalculateTaxesRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.CalculateTaxesResponse"}},
                    "404": {"description": "Pedido no encontrado", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/api/fiscal/emit-document": {
            "post": {
                "tags": ["fiscal"], "summary": "Emitir documento fiscal",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/dto.EmitDocumentRequest"}}],
                "responses": {
                    "200": {"description": "Documento existente", "schema": {"$ref": "#/definitions/dto.FiscalDocumentResponse"}},
                    "201": {"description": "Documento creado", "schema": {"$ref": "#/definitions/dto.FiscalDocumentResponse"}},
                    "400": {"description": "Tipo no soportado", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}},
                    "422": {"description": "Emisor sin configuración, certificado o endpoint", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/api/fiscal/documents": {
            "get": {
                "tags": ["fiscal"], "summary": "Listar documentos fiscales", "produces": ["application/json"],
                "parameters": [
                    {"in": "query", "name": "status", "type": "string"},
                    {"in": "query", "name": "limit", "type": "integer"},
                    {"in": "query", "name": "offset", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.FiscalDocumentListResponse"}}}
            }
        },
        "/api/fiscal/documents/{id}": {
            "get": {
                "tags": ["fiscal"], "summary": "Documento fiscal", "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.FiscalDocumentResponse"}},
                    "404": {"description": "No encontrado", "schema": {"$ref": "#/definitions/dto.ErrorResponse"}}
                }
            }
        },
        "/api/fiscal/documents/{id}/xml": {
            "get": {
                "tags": ["fiscal"], "summary": "XML firmado del documento", "produces": ["application/xml"],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "XML", "schema": {"type": "string"}}}
            }
        },
        "/api/fiscal/contingency": {
            "get": {
                "tags": ["fiscal"], "summary": "Cola de contingencia", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/dto.ContingencyEntryResponse"}}}}
            }
        },
        "/api/fiscal/contingency/retransmit": {
            "post": {
                "tags": ["fiscal"], "summary": "Retransmitir contingencia (admin, manager)", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/dto.RetransmitResultResponse"}}}}
            }
        },
        "/api/fiscal/audit-logs": {
            "get": {
                "tags": ["fiscal"], "summary": "Auditoría fiscal", "produces": ["application/json"],
                "parameters": [
                    {"in": "query", "name": "entity", "type": "string"},
                    {"in": "query", "name": "entity_id", "type": "string"},
                    {"in": "query", "name": "limit", "type": "integer"},
                    {"in": "query", "name": "offset", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.AuditLogListResponse"}}}
            }
        }
    },
    "definitions": {
        "dto.ErrorResponse": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}}
        },
        "dto.PageResponse": {
            "type": "object",
            "properties": {"limit": {"type": "integer"}, "offset": {"type": "integer"}, "total": {"type": "integer"}}
        },
        "dto.AddressDTO": {
            "type": "object",
            "properties": {
                "street": {"type": "string"}, "number": {"type": "string"}, "complement": {"type": "string"},
                "district": {"type": "string"}, "city": {"type": "string"}, "city_code": {"type": "string"},
                "uf": {"type": "string"}, "zip_code": {"type": "string"}, "phone": {"type": "string"}
            }
        },
        "dto.TaxRuleDTO": {
            "type": "object",
            "properties": {"kind": {"type": "string"}, "default_rate": {"type": "string"}, "enabled": {"type": "boolean"}}
        },
        "dto.UpdateFiscalSettingsRequest": {
            "type": "object",
            "properties": {
                "cnpj": {"type": "string"}, "company_name": {"type": "string"}, "trading_name": {"type": "string"},
                "state_registration": {"type": "string"}, "municipal_registration": {"type": "string"},
                "tax_regime": {"type": "string", "enum": ["simples_nacional", "lucro_presumido", "lucro_real"]},
                "address": {"$ref": "#/definitions/dto.AddressDTO"},
                "default_cst": {"type": "string"}, "default_cfop": {"type": "string"}, "default_ncm": {"type": "string"},
                "tax_rules": {"type": "array", "items": {"$ref": "#/definitions/dto.TaxRuleDTO"}},
                "environment": {"type": "string", "enum": ["homologation", "production"]},
                "series": {"type": "integer"}, "last_document_number": {"type": "integer"},
                "csc_id": {"type": "string"}, "csc": {"type": "string"},
                "certificate_base64": {"type": "string"}, "certificate_password": {"type": "string"},
                "version": {"type": "integer"}
            }
        },
        "dto.FiscalSettingsResponse": {
            "type": "object",
            "properties": {
                "tenant_id": {"type": "string"}, "cnpj": {"type": "string"}, "company_name": {"type": "string"},
                "tax_regime": {"type": "string"}, "address": {"$ref": "#/definitions/dto.AddressDTO"},
                "tax_rules": {"type": "array", "items": {"$ref": "#/definitions/dto.TaxRuleDTO"}},
                "environment": {"type": "string"}, "series": {"type": "integer"}, "last_document_number": {"type": "integer"},
                "csc_configured": {"type": "boolean"}, "certificate_configured": {"type": "boolean"},
                "certificate_reference": {"type": "string"}, "certificate_expires_at": {"type": "string"},
                "version": {"type": "integer"}, "updated_at": {"type": "string"}
            }
        },
        "dto.CalculateTaxesRequest": {
            "type": "object", "required": ["order_id"],
            "properties": {"order_id": {"type": "string"}}
        },
        "dto.TaxAmountDTO": {
            "type": "object",
            "properties": {"kind": {"type": "string"}, "rate": {"type": "string"}, "amount": {"type": "string"}}
        },
        "dto.TaxBreakdownDTO": {
            "type": "object",
            "properties": {
                "order_item_id": {"type": "string"}, "product_id": {"type": "string"}, "base": {"type": "string"},
                "taxes": {"type": "array", "items": {"$ref": "#/definitions/dto.TaxAmountDTO"}}, "total_tax": {"type": "string"}
            }
        },
        "dto.CalculateTaxesResponse": {
            "type": "object",
            "properties": {
                "order_id": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/dto.TaxBreakdownDTO"}},
                "totals": {"type": "array", "items": {"$ref": "#/definitions/dto.TaxAmountDTO"}},
                "total_base": {"type": "string"}, "total_tax": {"type": "string"}
            }
        },
        "dto.EmitDocumentRequest": {
            "type": "object", "required": ["order_id", "type"],
            "properties": {"order_id": {"type": "string"}, "type": {"type": "string", "enum": ["nfce", "nfe", "nfse"]}}
        },
        "dto.FiscalDocumentResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "order_id": {"type": "string"}, "type": {"type": "string"},
                "series": {"type": "integer"}, "number": {"type": "integer"}, "status": {"type": "string"},
                "emission_type": {"type": "string"}, "access_key": {"type": "string"}, "protocol": {"type": "string"},
                "reason_code": {"type": "string"}, "error_message": {"type": "string"},
                "total_amount": {"type": "string"}, "total_tax": {"type": "string"}, "qr_code_data": {"type": "string"},
                "issued_at": {"type": "string"}, "authorized_at": {"type": "string"}, "updated_at": {"type": "string"}
            }
        },
        "dto.FiscalDocumentListResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/dto.FiscalDocumentResponse"}},
                "page": {"$ref": "#/definitions/dto.PageResponse"}
            }
        },
        "dto.ContingencyEntryResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "document_id": {"type": "string"}, "uf": {"type": "string"},
                "model": {"type": "string"}, "environment": {"type": "string"}, "issued_at": {"type": "string"},
                "attempts": {"type": "integer"}, "last_attempt_at": {"type": "string"}, "last_error": {"type": "string"}
            }
        },
        "dto.RetransmitResultResponse": {
            "type": "object",
            "properties": {
                "document_id": {"type": "string"}, "outcome": {"type": "string"},
                "status": {"type": "string"}, "error": {"type": "string"}
            }
        },
        "dto.AuditLogResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "actor": {"type": "string"}, "action": {"type": "string"},
                "entity": {"type": "string"}, "entity_id": {"type": "string"},
                "before": {"type": "object"}, "after": {"type": "object"}, "timestamp": {"type": "string"}
            }
        },
        "dto.AuditLogListResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/dto.AuditLogResponse"}},
                "page": {"$ref": "#/definitions/dto.PageResponse"}
            }
        }
    }
}`

// SwaggerInfo metadatos de la especificación; cmd/api ajusta Host al iniciar.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "PDV Fiscal API",
	Description:      "Emisión de NFC-e, NF-e y NFS-e con contingencia off-line.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
