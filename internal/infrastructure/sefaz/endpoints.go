package sefaz

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/pkg/nfe"
)

// Endpoint web services de una SEFAZ para (UF, modelo, ambiente).
type Endpoint struct {
	UF               string
	Model            string
	Environment      string // homologation | production
	AuthorizationURL string // NFeAutorizacao4
	StatusURL        string // NFeConsultaProtocolo4; vacío = sin consulta

	// ClientCertificate certificado A1 del emisor para TLS mutuo; nil = sin certificado.
	ClientCertificate *tls.Certificate
}

// Key identifica el endpoint para agrupar la cola de contingencia.
func (e Endpoint) Key() string {
	return e.AuthorizationURL
}

type endpointKey struct {
	uf, model, env string
}

type endpointURLs struct {
	auth, status string
}

// svrs autorizadora virtual usada por las UF sin web service propio.
const svrs = "SVRS"

var defaultEndpoints = map[endpointKey]endpointURLs{
	// Minas Gerais
	{"MG", nfe.ModelNFe, entity.EnvironmentProduction}: {
		"https://nfe.fazenda.mg.gov.br/nfe2/services/NFeAutorizacao4",
		"https://nfe.fazenda.mg.gov.br/nfe2/services/NFeConsultaProtocolo4"},
	{"MG", nfe.ModelNFe, entity.EnvironmentHomologation}: {
		"https://hnfe.fazenda.mg.gov.br/nfe2/services/NFeAutorizacao4",
		"https://hnfe.fazenda.mg.gov.br/nfe2/services/NFeConsultaProtocolo4"},
	{"MG", nfe.ModelNFCe, entity.EnvironmentProduction}: {
		"https://nfce.fazenda.mg.gov.br/nfce/services/NFeAutorizacao4",
		"https://nfce.fazenda.mg.gov.br/nfce/services/NFeConsultaProtocolo4"},
	{"MG", nfe.ModelNFCe, entity.EnvironmentHomologation}: {
		"https://hnfce.fazenda.mg.gov.br/nfce/services/NFeAutorizacao4",
		"https://hnfce.fazenda.mg.gov.br/nfce/services/NFeConsultaProtocolo4"},
	// São Paulo
	{"SP", nfe.ModelNFe, entity.EnvironmentProduction}: {
		"https://nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx",
		"https://nfe.fazenda.sp.gov.br/ws/nfeconsultaprotocolo4.asmx"},
	{"SP", nfe.ModelNFe, entity.EnvironmentHomologation}: {
		"https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx",
		"https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeconsultaprotocolo4.asmx"},
	{"SP", nfe.ModelNFCe, entity.EnvironmentProduction}: {
		"https://nfce.fazenda.sp.gov.br/ws/NFeAutorizacao4.asmx",
		"https://nfce.fazenda.sp.gov.br/ws/NFeConsultaProtocolo4.asmx"},
	{"SP", nfe.ModelNFCe, entity.EnvironmentHomologation}: {
		"https://homologacao.nfce.fazenda.sp.gov.br/ws/NFeAutorizacao4.asmx",
		"https://homologacao.nfce.fazenda.sp.gov.br/ws/NFeConsultaProtocolo4.asmx"},
	// Paraná
	{"PR", nfe.ModelNFe, entity.EnvironmentProduction}: {
		"https://nfe.sefa.pr.gov.br/nfe/NFeAutorizacao4",
		"https://nfe.sefa.pr.gov.br/nfe/NFeConsultaProtocolo4"},
	{"PR", nfe.ModelNFe, entity.EnvironmentHomologation}: {
		"https://homologacao.nfe.sefa.pr.gov.br/nfe/NFeAutorizacao4",
		"https://homologacao.nfe.sefa.pr.gov.br/nfe/NFeConsultaProtocolo4"},
	{"PR", nfe.ModelNFCe, entity.EnvironmentProduction}: {
		"https://nfce.sefa.pr.gov.br/nfce/NFeAutorizacao4",
		"https://nfce.sefa.pr.gov.br/nfce/NFeConsultaProtocolo4"},
	{"PR", nfe.ModelNFCe, entity.EnvironmentHomologation}: {
		"https://homologacao.nfce.sefa.pr.gov.br/nfce/NFeAutorizacao4",
		"https://homologacao.nfce.sefa.pr.gov.br/nfce/NFeConsultaProtocolo4"},
	// Rio Grande do Sul
	{"RS", nfe.ModelNFe, entity.EnvironmentProduction}: {
		"https://nfe.sefazrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		"https://nfe.sefazrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"},
	{"RS", nfe.ModelNFe, entity.EnvironmentHomologation}: {
		"https://nfe-homologacao.sefazrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		"https://nfe-homologacao.sefazrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"},
	{"RS", nfe.ModelNFCe, entity.EnvironmentProduction}: {
		"https://nfce.sefazrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		"https://nfce.sefazrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"},
	{"RS", nfe.ModelNFCe, entity.EnvironmentHomologation}: {
		"https://nfce-homologacao.sefazrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		"https://nfce-homologacao.sefazrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"},
	// SVRS
	{svrs, nfe.ModelNFe, entity.EnvironmentProduction}: {
		"https://nfe.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		"https://nfe.svrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"},
	{svrs, nfe.ModelNFe, entity.EnvironmentHomologation}: {
		"https://nfe-homologacao.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		"https://nfe-homologacao.svrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"},
	{svrs, nfe.ModelNFCe, entity.EnvironmentProduction}: {
		"https://nfce.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		"https://nfce.svrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"},
	{svrs, nfe.ModelNFCe, entity.EnvironmentHomologation}: {
		"https://nfce-homologacao.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		"https://nfce-homologacao.svrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"},
}

// EndpointResolver resuelve el web service de autorización. La tabla por defecto es
// extensible mediante overrides de configuración.
type EndpointResolver struct {
	overrides map[endpointKey]endpointURLs
}

// NewEndpointResolver crea el resolver con overrides en el formato
// "UF/MODELO/AMBIENTE=authURL[,statusURL]" separados por ";"
// (ej: "MG/65/homologation=https://localhost:8443/autorizacao").
func NewEndpointResolver(overrides string) (*EndpointResolver, error) {
	r := &EndpointResolver{overrides: make(map[endpointKey]endpointURLs)}
	for _, entry := range strings.Split(overrides, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		keyPart, urlPart, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("sefaz: override inválido %q", entry)
		}
		parts := strings.Split(strings.TrimSpace(keyPart), "/")
		if len(parts) != 3 {
			return nil, fmt.Errorf("sefaz: clave de override inválida %q (UF/MODELO/AMBIENTE)", keyPart)
		}
		env := strings.ToLower(parts[2])
		if env != entity.EnvironmentHomologation && env != entity.EnvironmentProduction {
			return nil, fmt.Errorf("sefaz: ambiente inválido %q en override", parts[2])
		}
		auth, status, _ := strings.Cut(urlPart, ",")
		auth = strings.TrimSpace(auth)
		if auth == "" {
			return nil, fmt.Errorf("sefaz: override %q sin URL de autorización", entry)
		}
		key := endpointKey{uf: strings.ToUpper(parts[0]), model: parts[1], env: env}
		r.overrides[key] = endpointURLs{auth: auth, status: strings.TrimSpace(status)}
	}
	return r, nil
}

// Resolve devuelve el endpoint para la UF, el modelo y el ambiente. Las UF sin
// web service propio usan la SVRS. NFS-e no tiene endpoint nacional: requiere override.
func (r *EndpointResolver) Resolve(uf, model, env string) (Endpoint, error) {
	uf = strings.ToUpper(strings.TrimSpace(uf))
	if _, ok := nfe.UFCode(uf); !ok {
		return Endpoint{}, fmt.Errorf("%w: %q", domain.ErrInvalidJurisdiction, uf)
	}
	if env != entity.EnvironmentProduction {
		env = entity.EnvironmentHomologation
	}
	ep := Endpoint{UF: uf, Model: model, Environment: env}

	if urls, ok := r.overrides[endpointKey{uf, model, env}]; ok {
		ep.AuthorizationURL, ep.StatusURL = urls.auth, urls.status
		return ep, nil
	}
	// la NFS-e no tiene autorizador SEFAZ: solo se transmite con un endpoint configurado
	if model == nfe.ModelNFSe {
		return Endpoint{}, fmt.Errorf("%w: %s modelo %s", domain.ErrEndpointNotConfigured, uf, model)
	}
	urls, ok := defaultEndpoints[endpointKey{uf, model, env}]
	if !ok {
		urls, ok = defaultEndpoints[endpointKey{svrs, model, env}]
	}
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s modelo %s", domain.ErrEndpointNotConfigured, uf, model)
	}
	ep.AuthorizationURL, ep.StatusURL = urls.auth, urls.status
	return ep, nil
}
