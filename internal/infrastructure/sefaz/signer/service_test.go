package signer_test

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz/signer"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz/signer/signertest"
)

const (
	nsNFe   = "http://www.portalfiscal.inf.br/nfe"
	testKey = "31240512345678000190650010000000011000000018"
)

// documento canónico mínimo: sin declaración XML y sin elementos vacíos autocerrados.
const canonicalDoc = `<NFe xmlns="` + nsNFe + `"><infNFe Id="NFe` + testKey + `" versao="4.00">` +
	`<ide><cUF>31</cUF><nNF>1</nNF></ide><emit><CNPJ>12345678000190</CNPJ><xNome>Loja &amp; Cia</xNome></emit>` +
	`</infNFe></NFe>`

// ──────────────────────────────────────────────────────────────────────────────
// Sign
// ──────────────────────────────────────────────────────────────────────────────

func TestSign_InsertaFirmaAntesDelCierreSinModificarEntrada(t *testing.T) {
	cert, _ := signertest.Valid(t)
	input := []byte(canonicalDoc)
	original := append([]byte(nil), input...)

	signed, err := signer.NewDigitalSignatureService().Sign(input, cert)
	require.NoError(t, err)

	assert.Equal(t, original, input, "la entrada no debe mutarse")
	prefix := strings.TrimSuffix(canonicalDoc, "</NFe>")
	assert.True(t, strings.HasPrefix(string(signed), prefix), "los bytes de infNFe se preservan")
	assert.True(t, strings.HasSuffix(string(signed), "</Signature></NFe>"), "Signature es el último hijo de NFe")
	assert.Contains(t, string(signed), `<Reference URI="#NFe`+testKey+`">`)
}

func TestSign_DigestCubreInfNFeCanonico(t *testing.T) {
	cert, _ := signertest.Valid(t)
	signed, err := signer.NewDigitalSignatureService().Sign([]byte(canonicalDoc), cert)
	require.NoError(t, err)

	// infNFe con el namespace heredado declarado primero (orden C14N)
	start := strings.Index(canonicalDoc, "<infNFe ")
	end := strings.Index(canonicalDoc, "</infNFe>") + len("</infNFe>")
	sub := strings.Replace(canonicalDoc[start:end], "<infNFe ", `<infNFe xmlns="`+nsNFe+`" `, 1)
	want := sha1.Sum([]byte(sub))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	digest := doc.FindElement("//Signature/SignedInfo/Reference/DigestValue")
	require.NotNil(t, digest)
	assert.Equal(t, base64.StdEncoding.EncodeToString(want[:]), digest.Text())
}

func TestSign_SignatureValueVerificaConLlavePublica(t *testing.T) {
	cert, _ := signertest.Valid(t)
	signed, err := signer.NewDigitalSignatureService().Sign([]byte(canonicalDoc), cert)
	require.NoError(t, err)
	s := string(signed)

	start := strings.Index(s, "<SignedInfo>")
	end := strings.Index(s, "</SignedInfo>") + len("</SignedInfo>")
	require.True(t, start > 0 && end > start)
	signedInfo := strings.Replace(s[start:end], "<SignedInfo>", `<SignedInfo xmlns="`+signer.NamespaceDS+`">`, 1)
	hash := sha1.Sum([]byte(signedInfo))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	value := doc.FindElement("//Signature/SignatureValue")
	require.NotNil(t, value)
	sig, err := base64.StdEncoding.DecodeString(value.Text())
	require.NoError(t, err)

	pub := cert.Leaf.PublicKey.(*rsa.PublicKey)
	assert.NoError(t, rsa.VerifyPKCS1v15(pub, crypto.SHA1, hash[:], sig))
}

func TestSign_Errores(t *testing.T) {
	cert, _ := signertest.Valid(t)
	svc := signer.NewDigitalSignatureService()

	tests := []struct {
		name string
		xml  string
		cert tls.Certificate
	}{
		{"XML vacío", "", cert},
		{"sin certificado", canonicalDoc, tls.Certificate{}},
		{"raíz distinta de NFe", `<nfeProc><infNFe Id="x"></infNFe></nfeProc>`, cert},
		{"infNFe sin Id", `<NFe xmlns="` + nsNFe + `"><infNFe versao="4.00"></infNFe></NFe>`, cert},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Sign([]byte(tt.xml), tt.cert)
			assert.Error(t, err)
		})
	}
}

func TestSign_DocumentoYaFirmadoFalla(t *testing.T) {
	cert, _ := signertest.Valid(t)
	svc := signer.NewDigitalSignatureService()
	signed, err := svc.Sign([]byte(canonicalDoc), cert)
	require.NoError(t, err)

	_, err = svc.Sign(signed, cert)
	assert.Error(t, err)
}

// ──────────────────────────────────────────────────────────────────────────────
// LoadCredential
// ──────────────────────────────────────────────────────────────────────────────

func TestLoadCredential_BundlePEM(t *testing.T) {
	_, bundle := signertest.Valid(t)

	cert, err := signer.LoadCredential(bundle, "", time.Now())
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)

	ref, expires := signer.Describe(cert)
	assert.Equal(t, "LOJA TESTE LTDA:12345678000190", ref)
	assert.True(t, expires.After(time.Now()))
}

func TestLoadCredential_Vencido(t *testing.T) {
	now := time.Now()
	_, bundle := signertest.NewCertificate(t, "VENCIDO", now.AddDate(-2, 0, 0), now.AddDate(-1, 0, 0))

	_, err := signer.LoadCredential(bundle, "", now)
	assert.ErrorIs(t, err, signer.ErrCertificateExpired)
}

func TestLoadCredential_MaterialInvalido(t *testing.T) {
	_, err := signer.LoadCredential(nil, "", time.Now())
	assert.Error(t, err)

	_, err = signer.LoadCredential([]byte("no es un pkcs12"), "senha", time.Now())
	assert.Error(t, err)
}
