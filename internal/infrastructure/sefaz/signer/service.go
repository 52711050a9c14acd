// Firma XMLDSig envelopada del documento NF-e/NFC-e (leiaute 4.00).
// La <Signature> se agrega como último hijo de <NFe> y referencia #NFe{chave}.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/jhoicas/pdv-fiscal/pkg/nfe"
)

// DigitalSignatureService implementa nfe.Signer.
type DigitalSignatureService struct{}

// NewDigitalSignatureService crea el servicio.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

// Sign firma el documento canónico. No modifica xmlBytes: devuelve una copia con la
// firma insertada antes de </NFe>.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("signer: XML vacío")
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("signer: certificado sin cadena")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signer: el certificado debe incluir llave privada RSA")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("signer: parsear certificado: %w", err)
	}

	id, signedPart, err := extractSignedElement(xmlBytes)
	if err != nil {
		return nil, err
	}

	// 1) Digest del infNFe canónico (transformaciones enveloped + C14N)
	digest := sha1.Sum(signedPart)
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	// 2) SignedInfo canónico con el namespace heredado de <Signature>
	signedInfo := buildSignedInfo(id, digestB64)
	canonicalSignedInfo, err := canonicalize([]byte(signedInfo))
	if err != nil {
		return nil, fmt.Errorf("signer: canonicalizar SignedInfo: %w", err)
	}
	hash := sha1.Sum(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA1, hash[:])
	if err != nil {
		return nil, fmt.Errorf("signer: firmar SignedInfo: %w", err)
	}

	signature := buildSignature(canonicalSignedInfo,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(x509Cert.Raw))
	return injectSignature(xmlBytes, signature)
}

// extractSignedElement devuelve el Id de infNFe y su forma canónica como subdocumento.
func extractSignedElement(xmlBytes []byte) (string, []byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return "", nil, fmt.Errorf("signer: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != rootElement {
		return "", nil, fmt.Errorf("signer: raíz <%s> no encontrada", rootElement)
	}
	inf := root.SelectElement(signedElement)
	if inf == nil {
		return "", nil, fmt.Errorf("signer: <%s> no encontrado", signedElement)
	}
	id := inf.SelectAttrValue("Id", "")
	if id == "" {
		return "", nil, fmt.Errorf("signer: <%s> sin atributo Id", signedElement)
	}
	if root.SelectElement("Signature") != nil {
		return "", nil, fmt.Errorf("signer: el documento ya está firmado")
	}

	sub := etree.NewDocument()
	part := inf.Copy()
	part.CreateAttr("xmlns", root.SelectAttrValue("xmlns", nfe.NamespaceNFe))
	sub.SetRoot(part)
	raw, err := sub.WriteToBytes()
	if err != nil {
		return "", nil, fmt.Errorf("signer: serializar %s: %w", signedElement, err)
	}
	canonical, err := canonicalize(raw)
	if err != nil {
		return "", nil, fmt.Errorf("signer: canonicalizar %s: %w", signedElement, err)
	}
	return id, canonical, nil
}

func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func buildSignedInfo(id, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"></CanonicalizationMethod>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"></SignatureMethod>`)
	sb.WriteString(`<Reference URI="#` + id + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"></Transform>`)
	sb.WriteString(`<Transform Algorithm="` + AlgC14N + `"></Transform></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"></DigestMethod>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

// buildSignature arma <Signature>. SignedInfo se incluye sin su xmlns: lo hereda del padre
// y su forma canónica queda idéntica a la firmada.
func buildSignature(canonicalSignedInfo []byte, signatureValueB64, certB64 string) []byte {
	signedInfo := strings.Replace(string(canonicalSignedInfo), ` xmlns="`+NamespaceDS+`"`, "", 1)
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `">`)
	sb.WriteString(signedInfo)
	sb.WriteString(`<SignatureValue>` + signatureValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return []byte(sb.String())
}

// injectSignature inserta la firma antes del cierre de la raíz sin reserializar el
// documento, para que los bytes de infNFe queden intactos.
func injectSignature(xmlBytes, signature []byte) ([]byte, error) {
	closing := []byte("</" + rootElement + ">")
	idx := bytes.LastIndex(xmlBytes, closing)
	if idx < 0 {
		return nil, fmt.Errorf("signer: cierre </%s> no encontrado", rootElement)
	}
	out := make([]byte, 0, len(xmlBytes)+len(signature))
	out = append(out, xmlBytes[:idx]...)
	out = append(out, signature...)
	out = append(out, xmlBytes[idx:]...)
	return out, nil
}

var _ nfe.Signer = (*DigitalSignatureService)(nil)

// DigestValue devuelve el DigestValue (Base64) de un documento firmado, o "" si no tiene firma.
func DigestValue(signed []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signed); err != nil {
		return ""
	}
	if el := doc.FindElement("//Signature/SignedInfo/Reference/DigestValue"); el != nil {
		return el.Text()
	}
	return ""
}
