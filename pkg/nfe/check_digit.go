package nfe

import (
	"fmt"
	"unicode"
)

// AccessKeyBodyLength longitud del cuerpo de la chave de acesso (sin dígito verificador).
const (
	AccessKeyBodyLength = 43
	AccessKeyLength     = AccessKeyBodyLength + 1
)

// ComputeCheckDigit calcula el dígito verificador módulo 11 de la chave de acesso.
// Recorre los dígitos de derecha a izquierda multiplicando por los pesos 2..9 en ciclo;
// si el resto de sum%11 es 0 o 1 el dígito es 0, en otro caso 11-resto.
func ComputeCheckDigit(body string) (byte, error) {
	if body == "" {
		return 0, fmt.Errorf("nfe: cuerpo vacío")
	}
	sum := 0
	weight := 2
	for i := len(body) - 1; i >= 0; i-- {
		c := body[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("nfe: carácter no numérico %q en la posición %d", c, i)
		}
		sum += int(c-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	remainder := sum % 11
	if remainder == 0 || remainder == 1 {
		return '0', nil
	}
	return byte('0' + (11 - remainder)), nil
}

// ValidateAccessKey valida longitud, contenido numérico y dígito verificador de una chave de 44 dígitos.
func ValidateAccessKey(key string) error {
	if len(key) != AccessKeyLength {
		return fmt.Errorf("nfe: la chave debe tener %d dígitos, se recibieron %d", AccessKeyLength, len(key))
	}
	expected, err := ComputeCheckDigit(key[:AccessKeyBodyLength])
	if err != nil {
		return err
	}
	if key[AccessKeyBodyLength] != expected {
		return fmt.Errorf("nfe: dígito verificador inválido: esperado %c, recibido %c", expected, key[AccessKeyBodyLength])
	}
	return nil
}

// OnlyDigits elimina todo carácter que no sea dígito (puntos, barras y guiones del CNPJ).
func OnlyDigits(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 128 && unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return string(out)
}
