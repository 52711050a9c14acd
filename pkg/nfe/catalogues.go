// Package nfe contiene catálogos y algoritmos publicados del leiaute NF-e/NFC-e 4.00
// (Manual de Orientação do Contribuinte, SEFAZ).
package nfe

// NamespaceNFe namespace del leiaute NF-e 4.00.
const (
	NamespaceNFe = "http://www.portalfiscal.inf.br/nfe"
	VersionNFe   = "4.00"
)

// =============================================================================
// Modelos de documento fiscal (campo mod)
// =============================================================================

const (
	ModelNFe  = "55" // Nota Fiscal Eletrônica
	ModelNFCe = "65" // Nota Fiscal de Consumidor Eletrônica
	// ModelNFSe no existe en el leiaute SEFAZ; se usa internamente para que la NFS-e
	// comparta la composición de la chave con los demás modelos.
	ModelNFSe = "99"
)

// =============================================================================
// Tipo de emisión (campo tpEmis)
// =============================================================================

const (
	EmissionNormal           = "1" // Emisión normal
	EmissionContingencyFSDA  = "5" // Contingencia FS-DA
	EmissionContingencySVCAN = "6" // Contingencia SVC-AN
	EmissionContingencySVCRS = "7" // Contingencia SVC-RS
	EmissionOfflineNFCe      = "9" // Contingencia off-line NFC-e
)

// ContingencyEmissionType tpEmis de la contingencia sin comunicación con la SEFAZ: off-line
// para la NFC-e y FS-DA para la NF-e, que no admite tpEmis 9. La NFS-e interna sigue a la NF-e.
func ContingencyEmissionType(model string) string {
	if model == ModelNFCe {
		return EmissionOfflineNFCe
	}
	return EmissionContingencyFSDA
}

// =============================================================================
// Ambiente (campo tpAmb)
// =============================================================================

const (
	EnvProduction   = "1"
	EnvHomologation = "2"
)

// =============================================================================
// Códigos de situación (cStat) relevantes para autorización y consulta
// =============================================================================

const (
	StatusAuthorized            = "100" // Autorizado o uso da NF-e
	StatusCancelled             = "101" // Cancelamento homologado
	StatusDenied                = "110" // Uso denegado
	StatusLotReceived           = "103" // Lote recebido com sucesso
	StatusLotProcessed          = "104" // Lote processado
	StatusLotInProcess          = "105" // Lote em processamento
	StatusServicePaused         = "108" // Serviço paralisado momentaneamente
	StatusServicePausedNoETA    = "109" // Serviço paralisado sem previsão
	StatusAuthorizedLate        = "150" // Autorizado fora de prazo
	StatusNotFound              = "217" // NF-e não consta na base de dados da SEFAZ
	StatusDuplicate             = "204" // Duplicidade de NF-e
	StatusDuplicateDifferentKey = "539" // Duplicidade com diferença na chave de acesso
)

// IsAuthorizedStatus indica si el cStat del protocolo corresponde a una autorización.
func IsAuthorizedStatus(cStat string) bool {
	return cStat == StatusAuthorized || cStat == StatusAuthorizedLate
}

// IsServiceUnavailableStatus indica si el cStat del lote corresponde a un servicio
// paralizado; el documento debe tratarse como no transmitido.
func IsServiceUnavailableStatus(cStat string) bool {
	return cStat == StatusServicePaused || cStat == StatusServicePausedNoETA
}

// =============================================================================
// Código de Régimen Tributário (campo CRT)
// =============================================================================

const (
	CRTSimplesNacional       = "1"
	CRTSimplesExcessoReceita = "2"
	CRTRegimeNormal          = "3"
)

// =============================================================================
// Meios de pagamento (campo tPag)
// =============================================================================

const (
	PaymentCash        = "01"
	PaymentCheck       = "02"
	PaymentCreditCard  = "03"
	PaymentDebitCard   = "04"
	PaymentStoreCredit = "05"
	PaymentFoodVoucher = "10"
	PaymentPIX         = "17"
	PaymentNone        = "90"
	PaymentOther       = "99"
)

// PaymentCodes traduce el medio de pago del pedido (texto libre del PDV) al código tPag.
var PaymentCodes = map[string]string{
	"cash":        PaymentCash,
	"dinheiro":    PaymentCash,
	"check":       PaymentCheck,
	"credit":      PaymentCreditCard,
	"credit_card": PaymentCreditCard,
	"debit":       PaymentDebitCard,
	"debit_card":  PaymentDebitCard,
	"voucher":     PaymentFoodVoucher,
	"pix":         PaymentPIX,
}

// PaymentCode devuelve el código tPag para el medio de pago; "99" si no se reconoce.
func PaymentCode(method string) string {
	if code, ok := PaymentCodes[method]; ok {
		return code
	}
	return PaymentOther
}

// =============================================================================
// Códigos IBGE de las unidades federativas (campo cUF)
// =============================================================================

// UFCodes mapea la sigla de la UF a su código IBGE de 2 dígitos.
var UFCodes = map[string]string{
	"RO": "11", "AC": "12", "AM": "13", "RR": "14", "PA": "15", "AP": "16", "TO": "17",
	"MA": "21", "PI": "22", "CE": "23", "RN": "24", "PB": "25", "PE": "26", "AL": "27",
	"SE": "28", "BA": "29",
	"MG": "31", "ES": "32", "RJ": "33", "SP": "35",
	"PR": "41", "SC": "42", "RS": "43",
	"MS": "50", "MT": "51", "GO": "52", "DF": "53",
}

// UFCode devuelve el código IBGE de la UF (sigla en mayúsculas) y si existe.
func UFCode(uf string) (string, bool) {
	code, ok := UFCodes[uf]
	return code, ok
}
