// Carga del certificado A1 desde PKCS#12 o PEM.

package signer

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// ErrCertificateExpired el certificado ya no es válido en la fecha de firma.
var ErrCertificateExpired = errors.New("certificado digital vencido")

var pemPrefix = []byte("-----BEGIN")

// LoadCredential decodifica el material del certificado: PKCS#12 (.pfx) o un bundle PEM
// con certificado y llave. Falla si el certificado está fuera de vigencia en now.
func LoadCredential(material []byte, password string, now time.Time) (tls.Certificate, error) {
	if len(material) == 0 {
		return tls.Certificate{}, fmt.Errorf("certificado vacío")
	}
	var cert tls.Certificate
	if bytes.HasPrefix(bytes.TrimSpace(material), pemPrefix) {
		c, err := tls.X509KeyPair(material, material)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("cargar PEM: %w", err)
		}
		cert = c
	} else {
		priv, leaf, err := pkcs12.Decode(material, password)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("decodificar p12: %w", err)
		}
		// pkcs12.Decode devuelve solo el certificado hoja; basta para la firma NF-e.
		cert = tls.Certificate{
			Certificate: [][]byte{leaf.Raw},
			PrivateKey:  priv,
			Leaf:        leaf,
		}
	}
	if cert.Leaf == nil {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("parsear certificado: %w", err)
		}
		cert.Leaf = leaf
	}
	if now.Before(cert.Leaf.NotBefore) || now.After(cert.Leaf.NotAfter) {
		return tls.Certificate{}, fmt.Errorf("%w: válido hasta %s", ErrCertificateExpired, cert.Leaf.NotAfter.Format(time.RFC3339))
	}
	return cert, nil
}

// Describe devuelve la referencia legible (CN del titular) y el vencimiento del certificado.
func Describe(cert tls.Certificate) (reference string, expiresAt time.Time) {
	if cert.Leaf == nil {
		return "", time.Time{}
	}
	return cert.Leaf.Subject.CommonName, cert.Leaf.NotAfter
}
