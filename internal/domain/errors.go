package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")
)

// Errores del núcleo fiscal. Son errores de entrada: se reportan al caller y no
// modifican ningún documento persistido.
var (
	ErrOrderNotFound         = errors.New("pedido no encontrado")
	ErrConfigurationMissing  = errors.New("configuración fiscal no encontrada")
	ErrCertificateMissing    = errors.New("certificado digital no configurado")
	ErrInvalidIssuerID       = errors.New("CNPJ del emisor inválido")
	ErrInvalidJurisdiction   = errors.New("UF del emisor inválida")
	ErrUnsupportedDocument   = errors.New("tipo de documento fiscal no soportado")
	ErrEndpointNotConfigured = errors.New("endpoint SEFAZ no configurado para la UF")
	ErrDocumentFinalized     = errors.New("documento fiscal en estado final, no se puede modificar")
	ErrInvalidTransition     = errors.New("transición de estado inválida")
	ErrNumberingRegression   = errors.New("la numeración no puede retroceder")
	ErrStaleConfiguration    = errors.New("la configuración fiscal fue modificada por otra operación")
)

// SigningError indica que la firma digital falló. El documento queda en pending
// y la emisión completa puede reintentarse.
type SigningError struct {
	DocumentID string
	Err        error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("firma del documento %s: %v", e.DocumentID, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }
