package sefaz

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"

	"github.com/jhoicas/pdv-fiscal/pkg/nfe"
)

const (
	soapNS12 = "http://www.w3.org/2003/05/soap-envelope"

	wsdlAutorizacao = "http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4"
	wsdlConsulta    = "http://www.portalfiscal.inf.br/nfe/wsdl/NFeConsultaProtocolo4"

	actionAutorizacao = wsdlAutorizacao + "/nfeAutorizacaoLote"
	actionConsulta    = wsdlConsulta + "/nfeConsultaNF"

	maxResponseBytes = 1 << 20
)

// SOAPClient implementa Transmitter y StatusQuerier sobre los web services SOAP 1.2
// de la SEFAZ. Usa net/http de la stdlib.
type SOAPClient struct {
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	certClients map[string]*http.Client
}

// NewSOAPClient construye el cliente. timeout es el límite de red por llamada; el
// orquestador además acota cada envío con su propio contexto.
func NewSOAPClient(timeout time.Duration) *SOAPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SOAPClient{
		httpClient:  &http.Client{Timeout: timeout},
		now:         time.Now,
		certClients: make(map[string]*http.Client),
	}
}

// WithHTTPClient reemplaza el cliente HTTP (tests).
func (c *SOAPClient) WithHTTPClient(hc *http.Client) *SOAPClient {
	c.httpClient = hc
	return c
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name `xml:"soap12:Envelope"`
	XmlnsS  string   `xml:"xmlns:soap12,attr"`
	Body    soapBody `xml:"soap12:Body"`
}

type soapBody struct {
	Msg dadosMsg `xml:"nfeDadosMsg"`
}

type dadosMsg struct {
	Xmlns   string `xml:"xmlns,attr"`
	Content string `xml:",innerxml"`
}

type enviNFe struct {
	XMLName xml.Name `xml:"enviNFe"`
	Xmlns   string   `xml:"xmlns,attr"`
	Versao  string   `xml:"versao,attr"`
	IDLote  string   `xml:"idLote"`
	IndSinc string   `xml:"indSinc"`
	NFe     string   `xml:",innerxml"`
}

type consSitNFe struct {
	XMLName xml.Name `xml:"consSitNFe"`
	Xmlns   string   `xml:"xmlns,attr"`
	Versao  string   `xml:"versao,attr"`
	TpAmb   string   `xml:"tpAmb"`
	XServ   string   `xml:"xServ"`
	ChNFe   string   `xml:"chNFe"`
}

// ── Submit ────────────────────────────────────────────────────────────────────

// Submit envía el lote síncrono (indSinc=1) con un único documento.
func (c *SOAPClient) Submit(ctx context.Context, signed []byte, endpoint Endpoint) Outcome {
	if endpoint.AuthorizationURL == "" {
		return Unreachable("endpoint de autorización vacío")
	}
	lot := enviNFe{
		Xmlns:   nfe.NamespaceNFe,
		Versao:  nfe.VersionNFe,
		IDLote:  strconv.FormatInt(c.now().UnixNano()%1_000_000_000_000_000, 10),
		IndSinc: "1",
		NFe:     string(signed),
	}
	payload, err := xml.Marshal(lot)
	if err != nil {
		return Unreachable("serializar enviNFe: " + err.Error())
	}
	body, outcome, ok := c.call(ctx, endpoint, endpoint.AuthorizationURL, wsdlAutorizacao, actionAutorizacao, payload)
	if !ok {
		return outcome
	}
	return parseAuthorization(body)
}

// QueryStatus consulta la situación de la chave en la SEFAZ.
func (c *SOAPClient) QueryStatus(ctx context.Context, accessKey string, endpoint Endpoint) Outcome {
	if endpoint.StatusURL == "" {
		return Unreachable("endpoint de consulta no configurado")
	}
	payload, err := xml.Marshal(consSitNFe{
		Xmlns:  nfe.NamespaceNFe,
		Versao: nfe.VersionNFe,
		TpAmb:  EnvironmentCode(endpoint.Environment),
		XServ:  "CONSULTAR",
		ChNFe:  accessKey,
	})
	if err != nil {
		return Unreachable("serializar consSitNFe: " + err.Error())
	}
	body, outcome, ok := c.call(ctx, endpoint, endpoint.StatusURL, wsdlConsulta, actionConsulta, payload)
	if !ok {
		return outcome
	}
	return parseStatus(body, accessKey)
}

// call ejecuta la llamada SOAP. ok=false indica que outcome ya es el resultado final
// (siempre Unreachable).
func (c *SOAPClient) call(ctx context.Context, endpoint Endpoint, url, wsdl, action string, payload []byte) (*etree.Element, Outcome, bool) {
	envelope := soapEnvelope{
		XmlnsS: soapNS12,
		Body:   soapBody{Msg: dadosMsg{Xmlns: wsdl, Content: string(payload)}},
	}
	xmlPayload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, Unreachable("serializar envelope: " + err.Error()), false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(xmlPayload))
	if err != nil {
		return nil, Unreachable("crear request: " + err.Error()), false
	}
	req.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+action+`"`)

	resp, err := c.clientFor(endpoint).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Unreachable("timeout o cancelación: " + ctx.Err().Error()), false
		}
		return nil, Unreachable("llamada HTTP fallida: " + err.Error()), false
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, Unreachable("leer respuesta: " + err.Error()), false
	}

	doc := etree.NewDocument()
	parseErr := doc.ReadFromBytes(raw)
	if parseErr == nil {
		if fault := doc.FindElement("//Fault"); fault != nil {
			return nil, Unreachable("SOAP Fault: " + faultText(fault)), false
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, Unreachable(fmt.Sprintf("HTTP %d", resp.StatusCode)), false
	}
	if parseErr != nil || doc.Root() == nil {
		return nil, Unreachable("respuesta SOAP malformada"), false
	}
	body := doc.FindElement("//Body")
	if body == nil {
		return nil, Unreachable("respuesta SOAP sin Body"), false
	}
	return body, Outcome{}, true
}

// clientFor usa el certificado del emisor para TLS mutuo cuando el endpoint lo trae.
func (c *SOAPClient) clientFor(endpoint Endpoint) *http.Client {
	if endpoint.ClientCertificate == nil || len(endpoint.ClientCertificate.Certificate) == 0 {
		return c.httpClient
	}
	sum := sha1.Sum(endpoint.ClientCertificate.Certificate[0])
	key := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.certClients[key]; ok {
		return hc
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		Certificates: []tls.Certificate{*endpoint.ClientCertificate},
		MinVersion:   tls.VersionTLS12,
	}
	hc := &http.Client{Timeout: c.httpClient.Timeout, Transport: transport}
	c.certClients[key] = hc
	return hc
}

// ── Interpretación de respuestas ──────────────────────────────────────────────

func parseAuthorization(body *etree.Element) Outcome {
	ret := body.FindElement("//retEnviNFe")
	if ret == nil {
		return Unreachable("respuesta sin retEnviNFe")
	}
	cStat := childText(ret, "cStat")
	xMotivo := childText(ret, "xMotivo")

	switch {
	case cStat == "":
		return Unreachable("retEnviNFe sin cStat")
	case nfe.IsServiceUnavailableStatus(cStat):
		return Unreachable("servicio paralizado: " + cStat + " " + xMotivo)
	case cStat == nfe.StatusLotReceived || cStat == nfe.StatusLotInProcess:
		return Unreachable("lote sin procesar: " + cStat + " " + xMotivo)
	case cStat != nfe.StatusLotProcessed:
		return Rejected(cStat, xMotivo)
	}

	inf := ret.FindElement("protNFe/infProt")
	if inf == nil {
		return Unreachable("lote procesado sin protNFe")
	}
	return protocolOutcome(inf)
}

func parseStatus(body *etree.Element, accessKey string) Outcome {
	ret := body.FindElement("//retConsSitNFe")
	if ret == nil {
		return Unreachable("respuesta sin retConsSitNFe")
	}
	cStat := childText(ret, "cStat")
	xMotivo := childText(ret, "xMotivo")

	switch cStat {
	case nfe.StatusAuthorized, nfe.StatusAuthorizedLate:
		if inf := ret.FindElement("protNFe/infProt"); inf != nil {
			out := protocolOutcome(inf)
			if out.AccessKey == "" {
				out.AccessKey = accessKey
			}
			return out
		}
		return Accepted(firstNonEmpty(childText(ret, "chNFe"), accessKey), "", nil)
	case nfe.StatusNotFound:
		return Outcome{Kind: OutcomeNotFound, ReasonCode: cStat, ReasonText: xMotivo}
	case nfe.StatusDenied, nfe.StatusCancelled, "301", "302":
		return Rejected(cStat, xMotivo)
	}
	return Unreachable("consulta sin resultado: " + cStat + " " + xMotivo)
}

// protocolOutcome interpreta infProt: 100/150 autorizan, cualquier otro cStat rechaza.
func protocolOutcome(inf *etree.Element) Outcome {
	cStat := childText(inf, "cStat")
	if !nfe.IsAuthorizedStatus(cStat) {
		return Rejected(cStat, childText(inf, "xMotivo"))
	}
	var at *time.Time
	if t, err := time.Parse(time.RFC3339, childText(inf, "dhRecbto")); err == nil {
		at = &t
	}
	return Accepted(childText(inf, "chNFe"), childText(inf, "nProt"), at)
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

// faultText extrae el motivo de un Fault SOAP 1.2 (Reason/Text) o 1.1 (faultstring).
func faultText(fault *etree.Element) string {
	if t := fault.FindElement("Reason/Text"); t != nil {
		return strings.TrimSpace(t.Text())
	}
	if t := fault.SelectElement("faultstring"); t != nil {
		return strings.TrimSpace(t.Text())
	}
	return "sin detalle"
}

var (
	_ Transmitter   = (*SOAPClient)(nil)
	_ StatusQuerier = (*SOAPClient)(nil)
)
