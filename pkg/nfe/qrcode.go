package nfe

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// qrCodeVersion versión 2 del QR-Code de la NFC-e (NT 2016.002 v1.60).
const qrCodeVersion = "2"

// QRCodeURLs URL de consulta del QR-Code por UF: [producción, homologación].
var QRCodeURLs = map[string][2]string{
	"MG": {"https://portalsped.fazenda.mg.gov.br/portalnfce/sistema/qrcode.xhtml", "https://portalsped.fazenda.mg.gov.br/portalnfce/sistema/qrcode.xhtml"},
	"SP": {"https://www.nfce.fazenda.sp.gov.br/qrcode", "https://www.homologacao.nfce.fazenda.sp.gov.br/qrcode"},
	"PR": {"http://www.fazenda.pr.gov.br/nfce/qrcode", "http://www.fazenda.pr.gov.br/nfce/qrcode"},
	"RS": {"https://www.sefaz.rs.gov.br/NFCE/NFCE-COM.aspx", "https://www.sefaz.rs.gov.br/NFCE/NFCE-COM.aspx"},
	"SC": {"https://sat.sef.sc.gov.br/nfce/consulta", "https://hom.sat.sef.sc.gov.br/nfce/consulta"},
	"RJ": {"https://consultadfe.fazenda.rj.gov.br/consultaNFCe/QRCode", "https://consultadfe.fazenda.rj.gov.br/consultaNFCe/QRCode"},
}

// QRCodeParams datos necesarios para componer el QR-Code de la NFC-e.
type QRCodeParams struct {
	UF          string
	Environment string // tpAmb
	AccessKey   string
	CSCID       string // identificador del CSC (cIdToken)
	CSC         string // Código de Segurança do Contribuinte
	// Solo para emisión off-line (tpEmis=9)
	Offline     bool
	IssuedAt    time.Time
	Total       decimal.Decimal
	DigestValue string // DigestValue (Base64) de la firma
}

// BuildQRCode devuelve la URL completa del QR-Code v2 (online u off-line).
// El hash es SHA-1 en hexadecimal mayúsculas de los parámetros concatenados con el CSC.
func BuildQRCode(p QRCodeParams) (string, error) {
	urls, ok := QRCodeURLs[p.UF]
	if !ok {
		return "", fmt.Errorf("nfe: URL de QR-Code no registrada para la UF %q", p.UF)
	}
	if p.CSC == "" || p.CSCID == "" {
		return "", fmt.Errorf("nfe: CSC e identificador del CSC son obligatorios para el QR-Code")
	}
	base := urls[0]
	if p.Environment == EnvHomologation {
		base = urls[1]
	}
	cscID := strings.TrimLeft(p.CSCID, "0")

	var params []string
	if p.Offline {
		params = []string{
			p.AccessKey,
			qrCodeVersion,
			p.Environment,
			p.IssuedAt.Format("02"),
			p.Total.Round(2).StringFixed(2),
			hex.EncodeToString([]byte(p.DigestValue)),
			cscID,
		}
	} else {
		params = []string{p.AccessKey, qrCodeVersion, p.Environment, cscID}
	}
	joined := strings.Join(params, "|")
	sum := sha1.Sum([]byte(joined + p.CSC))
	return base + "?p=" + joined + "|" + strings.ToUpper(hex.EncodeToString(sum[:])), nil
}
