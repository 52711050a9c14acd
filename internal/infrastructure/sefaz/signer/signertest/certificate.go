// Package signertest genera certificados autofirmados para pruebas de firma.
package signertest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

// NewCertificate crea un certificado RSA autofirmado vigente entre notBefore y notAfter.
// Devuelve la credencial y el bundle PEM (certificado + llave) equivalente.
func NewCertificate(t testing.TB, commonName string, notBefore, notAfter time.Time) (tls.Certificate, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generar llave: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName, Country: []string{"BR"}},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("crear certificado: %v", err)
	}
	bundle := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	bundle = append(bundle, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})...)
	cert, err := tls.X509KeyPair(bundle, bundle)
	if err != nil {
		t.Fatalf("cargar par PEM: %v", err)
	}
	return cert, bundle
}

// Valid crea un certificado vigente por un año desde ahora.
func Valid(t testing.TB) (tls.Certificate, []byte) {
	now := time.Now()
	return NewCertificate(t, "LOJA TESTE LTDA:12345678000190", now.Add(-time.Hour), now.AddDate(1, 0, 0))
}
