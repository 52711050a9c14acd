package fiscal

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/pkg/nfe"
)

// AccessKeyParams campos de la chave de acesso en el orden del leiaute.
type AccessKeyParams struct {
	UF           string    // sigla de la UF del emisor (MG, SP...)
	IssuedAt     time.Time // AAMM de emisión
	CNPJ         string    // se eliminan puntos, barras y guiones
	Model        string    // 55, 65
	Series       int       // 0..999
	Number       int64     // 1..999999999
	EmissionType string    // tpEmis
	NumericCode  string    // cNF, 8 dígitos
}

// AccessKeyGeneratorService compone la chave de acesso de 44 dígitos:
//
//	cUF(2) + AAMM(4) + CNPJ(14) + mod(2) + serie(3) + nNF(9) + tpEmis(1) + cNF(8) + cDV(1)
type AccessKeyGeneratorService struct{}

// NewAccessKeyGeneratorService crea el servicio.
func NewAccessKeyGeneratorService() *AccessKeyGeneratorService {
	return &AccessKeyGeneratorService{}
}

// Body devuelve los 43 dígitos previos al dígito verificador.
func (s *AccessKeyGeneratorService) Body(p AccessKeyParams) (string, error) {
	cnpj := nfe.OnlyDigits(p.CNPJ)
	if cnpj == "" || len(cnpj) > 14 {
		return "", domain.ErrInvalidIssuerID
	}
	ufCode, ok := nfe.UFCode(strings.ToUpper(strings.TrimSpace(p.UF)))
	if !ok {
		return "", domain.ErrInvalidJurisdiction
	}
	if len(p.Model) != 2 || nfe.OnlyDigits(p.Model) != p.Model {
		return "", fmt.Errorf("fiscal: modelo %q inválido", p.Model)
	}
	if p.Series < 0 || p.Series > 999 {
		return "", fmt.Errorf("fiscal: serie %d fuera de rango", p.Series)
	}
	if p.Number < 1 || p.Number > 999_999_999 {
		return "", fmt.Errorf("fiscal: número %d fuera de rango", p.Number)
	}
	if len(p.EmissionType) != 1 || nfe.OnlyDigits(p.EmissionType) != p.EmissionType {
		return "", fmt.Errorf("fiscal: tipo de emisión %q inválido", p.EmissionType)
	}
	if len(p.NumericCode) != 8 || nfe.OnlyDigits(p.NumericCode) != p.NumericCode {
		return "", fmt.Errorf("fiscal: código numérico %q debe tener 8 dígitos", p.NumericCode)
	}
	if p.IssuedAt.IsZero() {
		return "", fmt.Errorf("fiscal: fecha de emisión obligatoria")
	}

	var sb strings.Builder
	sb.Grow(nfe.AccessKeyBodyLength)
	sb.WriteString(ufCode)
	sb.WriteString(p.IssuedAt.Format("0601"))
	sb.WriteString(strings.Repeat("0", 14-len(cnpj)) + cnpj)
	sb.WriteString(p.Model)
	sb.WriteString(fmt.Sprintf("%03d", p.Series))
	sb.WriteString(fmt.Sprintf("%09d", p.Number))
	sb.WriteString(p.EmissionType)
	sb.WriteString(p.NumericCode)
	return sb.String(), nil
}

// Generate devuelve la chave completa (cuerpo + dígito verificador módulo 11).
func (s *AccessKeyGeneratorService) Generate(p AccessKeyParams) (string, error) {
	body, err := s.Body(p)
	if err != nil {
		return "", err
	}
	dv, err := nfe.ComputeCheckDigit(body)
	if err != nil {
		return "", err
	}
	return body + string(dv), nil
}

// NewNumericCode genera el cNF aleatorio de 8 dígitos. El leiaute prohíbe que coincida
// con el número del documento.
func NewNumericCode(number int64) (string, error) {
	limit := big.NewInt(100_000_000)
	for {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("fiscal: generar código numérico: %w", err)
		}
		if n.Int64() != number {
			return fmt.Sprintf("%08d", n.Int64()), nil
		}
	}
}
