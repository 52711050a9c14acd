// Package sefaz implementa la generación del XML NF-e/NFC-e 4.00 y la comunicación
// SOAP con los web services de autorización de la SEFAZ.
package sefaz

import (
	"time"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/pdv-fiscal/pkg/nfe"
)

// DocumentBuildContext datos necesarios para construir el documento canónico.
type DocumentBuildContext struct {
	Document    *entity.FiscalDocument // tipo, serie, número, tpEmis, fecha de emisión
	Config      *entity.FiscalConfiguration
	Order       *entity.Order
	Taxes       *fiscal.TaxResult
	AccessKey   string // chave de 44 dígitos (Id = "NFe" + chave)
	NumericCode string // cNF usado en la chave

	// Solo en contingencia
	ContingencyAt     *time.Time
	ContingencyReason string
}

// ModelFor devuelve el código de modelo del tipo de documento.
func ModelFor(t entity.DocumentType) string {
	switch t {
	case entity.DocumentTypeNFe:
		return nfe.ModelNFe
	case entity.DocumentTypeNFSe:
		return nfe.ModelNFSe
	default:
		return nfe.ModelNFCe
	}
}
