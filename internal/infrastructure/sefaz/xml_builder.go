package sefaz

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/ucarion/c14n"
	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/pkg/nfe"
)

const (
	verProc = "pdv-fiscal 1.0"

	homologationName    = "NF-E EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"
	homologationProduct = "NOTA FISCAL EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"
)

// brazilTime horario de Brasília (sin horario de verano desde 2019). Zona fija para que
// dhEmi no dependa del tzdata del host.
var brazilTime = time.FixedZone("BRT", -3*60*60)

// LocalTime expresa t en el horario de Brasília usado en dhEmi y en el AAMM de la chave.
func LocalTime(t time.Time) time.Time {
	return t.In(brazilTime)
}

// XMLBuilderService construye el XML NF-e/NFC-e 4.00 canónico (sin firma).
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build genera el documento <NFe> en forma canónica (C14N). La salida es determinista:
// mismas entradas producen los mismos bytes.
func (s *XMLBuilderService) Build(ctx *DocumentBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Document == nil || ctx.Config == nil || ctx.Order == nil || ctx.Taxes == nil {
		return nil, fmt.Errorf("sefaz: faltan documento, configuración, pedido o tributos en el contexto")
	}
	if err := nfe.ValidateAccessKey(ctx.AccessKey); err != nil {
		return nil, fmt.Errorf("sefaz: %w", err)
	}
	if len(ctx.Taxes.Items) != len(ctx.Order.Items) {
		return nil, fmt.Errorf("sefaz: el desglose tributario no corresponde a las líneas del pedido")
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("NFe")
	root.CreateAttr("xmlns", nfe.NamespaceNFe)

	inf := root.CreateElement("infNFe")
	inf.CreateAttr("Id", "NFe"+ctx.AccessKey)
	inf.CreateAttr("versao", nfe.VersionNFe)

	s.writeIde(inf, ctx)
	s.writeEmit(inf, ctx.Config)
	s.writeDest(inf, ctx)
	totals := s.writeDetails(inf, ctx)
	s.writeTotal(inf, totals)
	text(inf.CreateElement("transp"), "modFrete", "9")
	s.writePayment(inf, ctx, totals.vNF)
	s.writeAdditionalInfo(inf, ctx)

	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("sefaz: serializar XML: %w", err)
	}
	return Canonicalize(raw)
}

// Canonicalize aplica C14N inclusiva (sin comentarios) a un documento XML.
func Canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, fmt.Errorf("sefaz: canonicalizar XML: %w", err)
	}
	return out, nil
}

// ── grupos del leiaute ────────────────────────────────────────────────────────

func (s *XMLBuilderService) writeIde(inf *etree.Element, ctx *DocumentBuildContext) {
	d := ctx.Document
	cfg := ctx.Config
	model := ModelFor(d.Type)
	ufCode, _ := nfe.UFCode(strings.ToUpper(cfg.Address.UF))

	ide := inf.CreateElement("ide")
	text(ide, "cUF", ufCode)
	text(ide, "cNF", ctx.NumericCode)
	text(ide, "natOp", "VENDA")
	text(ide, "mod", model)
	text(ide, "serie", strconv.Itoa(d.Series))
	text(ide, "nNF", strconv.FormatInt(d.Number, 10))
	text(ide, "dhEmi", formatDateTime(d.IssuedAt))
	text(ide, "tpNF", "1")
	text(ide, "idDest", "1")
	text(ide, "cMunFG", cfg.Address.CityCode)
	if model == nfe.ModelNFCe {
		text(ide, "tpImp", "4")
	} else {
		text(ide, "tpImp", "1")
	}
	text(ide, "tpEmis", emissionType(d))
	text(ide, "cDV", ctx.AccessKey[nfe.AccessKeyBodyLength:])
	text(ide, "tpAmb", EnvironmentCode(cfg.Environment))
	text(ide, "finNFe", "1")
	text(ide, "indFinal", "1")
	text(ide, "indPres", "1")
	text(ide, "procEmi", "0")
	text(ide, "verProc", verProc)
	if ctx.ContingencyAt != nil {
		text(ide, "dhCont", formatDateTime(*ctx.ContingencyAt))
		text(ide, "xJust", clean(ctx.ContingencyReason))
	}
}

func (s *XMLBuilderService) writeEmit(inf *etree.Element, cfg *entity.FiscalConfiguration) {
	emit := inf.CreateElement("emit")
	text(emit, "CNPJ", nfe.OnlyDigits(cfg.CNPJ))
	text(emit, "xNome", clean(cfg.CompanyName))
	if cfg.TradingName != "" {
		text(emit, "xFant", clean(cfg.TradingName))
	}
	addr := cfg.Address
	ender := emit.CreateElement("enderEmit")
	text(ender, "xLgr", clean(addr.Street))
	text(ender, "nro", clean(addr.Number))
	if addr.Complement != "" {
		text(ender, "xCpl", clean(addr.Complement))
	}
	text(ender, "xBairro", clean(addr.District))
	text(ender, "cMun", addr.CityCode)
	text(ender, "xMun", clean(addr.City))
	text(ender, "UF", strings.ToUpper(addr.UF))
	text(ender, "CEP", nfe.OnlyDigits(addr.ZipCode))
	text(ender, "cPais", "1058")
	text(ender, "xPais", "BRASIL")
	if phone := nfe.OnlyDigits(addr.Phone); phone != "" {
		text(ender, "fone", phone)
	}
	text(emit, "IE", nfe.OnlyDigits(cfg.StateRegistration))
	if cfg.MunicipalRegistration != "" {
		text(emit, "IM", nfe.OnlyDigits(cfg.MunicipalRegistration))
	}
	text(emit, "CRT", crtFor(cfg.TaxRegime))
}

func (s *XMLBuilderService) writeDest(inf *etree.Element, ctx *DocumentBuildContext) {
	c := ctx.Order.Customer
	if c == nil {
		return
	}
	doc := nfe.OnlyDigits(c.Document)
	if doc == "" {
		return
	}
	dest := inf.CreateElement("dest")
	if len(doc) == 14 {
		text(dest, "CNPJ", doc)
	} else {
		text(dest, "CPF", doc)
	}
	name := clean(c.Name)
	if ctx.Config.Environment != entity.EnvironmentProduction {
		name = homologationName
	}
	if name != "" {
		text(dest, "xNome", name)
	}
	text(dest, "indIEDest", "9")
	if c.Email != "" {
		text(dest, "email", strings.TrimSpace(c.Email))
	}
}

// documentTotals acumulados del grupo ICMSTot.
type documentTotals struct {
	vBC, vICMS, vProd, vIPI, vPIS, vCOFINS, vNF, vTotTrib decimal.Decimal
}

func (s *XMLBuilderService) writeDetails(inf *etree.Element, ctx *DocumentBuildContext) documentTotals {
	cfg := ctx.Config
	simples := cfg.TaxRegime == entity.TaxRegimeSimplesNacional
	model := ModelFor(ctx.Document.Type)
	t := documentTotals{}

	for i, item := range ctx.Order.Items {
		bd := ctx.Taxes.Items[i]
		det := inf.CreateElement("det")
		det.CreateAttr("nItem", strconv.Itoa(i+1))

		prod := det.CreateElement("prod")
		text(prod, "cProd", clean(firstNonEmpty(item.ProductID, item.ID)))
		text(prod, "cEAN", "SEM GTIN")
		name := clean(item.ProductName)
		if i == 0 && model == nfe.ModelNFCe && cfg.Environment != entity.EnvironmentProduction {
			name = homologationProduct
		}
		text(prod, "xProd", name)
		text(prod, "NCM", firstNonEmpty(nfe.OnlyDigits(item.NCM), cfg.DefaultNCM, "00000000"))
		text(prod, "CFOP", firstNonEmpty(nfe.OnlyDigits(item.CFOP), cfg.DefaultCFOP, "5102"))
		unit := firstNonEmpty(clean(item.Unit), "UN")
		text(prod, "uCom", unit)
		text(prod, "qCom", item.Quantity.StringFixed(4))
		text(prod, "vUnCom", item.UnitPrice.StringFixed(10))
		text(prod, "vProd", money(bd.Base))
		text(prod, "cEANTrib", "SEM GTIN")
		text(prod, "uTrib", unit)
		text(prod, "qTrib", item.Quantity.StringFixed(4))
		text(prod, "vUnTrib", item.UnitPrice.StringFixed(10))
		text(prod, "indTot", "1")

		imposto := det.CreateElement("imposto")
		text(imposto, "vTotTrib", money(bd.TotalTax))
		icms := imposto.CreateElement("ICMS")
		if simples {
			sn := icms.CreateElement("ICMSSN102")
			text(sn, "orig", "0")
			text(sn, "CSOSN", "102")
		} else {
			rate := bd.RateFor(entity.TaxKindICMS)
			amount := bd.AmountFor(entity.TaxKindICMS)
			g := icms.CreateElement("ICMS00")
			text(g, "orig", "0")
			text(g, "CST", firstNonEmpty(cfg.DefaultCST, "00"))
			text(g, "modBC", "3")
			text(g, "vBC", money(bd.Base))
			text(g, "pICMS", percent(rate))
			text(g, "vICMS", money(amount))
			t.vBC = t.vBC.Add(bd.Base)
			t.vICMS = t.vICMS.Add(amount)
		}

		if vIPI := bd.AmountFor(entity.TaxKindIPI); model == nfe.ModelNFe && !vIPI.IsZero() {
			ipi := imposto.CreateElement("IPI")
			text(ipi, "cEnq", "999")
			trib := ipi.CreateElement("IPITrib")
			text(trib, "CST", "50")
			text(trib, "vBC", money(bd.Base))
			text(trib, "pIPI", percent(bd.RateFor(entity.TaxKindIPI)))
			text(trib, "vIPI", money(vIPI))
			t.vIPI = t.vIPI.Add(vIPI)
		}

		t.vPIS = t.vPIS.Add(writeContribution(imposto, "PIS", bd, entity.TaxKindPIS))
		t.vCOFINS = t.vCOFINS.Add(writeContribution(imposto, "COFINS", bd, entity.TaxKindCOFINS))
		writeIBSCBS(imposto, bd)

		if extra := otherTaxes(bd); extra != "" {
			text(det, "infAdProd", extra)
		}

		t.vProd = t.vProd.Add(bd.Base)
		t.vTotTrib = t.vTotTrib.Add(bd.TotalTax)
	}
	t.vNF = t.vProd.Add(t.vIPI)
	return t
}

func (s *XMLBuilderService) writeTotal(inf *etree.Element, t documentTotals) {
	tot := inf.CreateElement("total").CreateElement("ICMSTot")
	text(tot, "vBC", money(t.vBC))
	text(tot, "vICMS", money(t.vICMS))
	text(tot, "vICMSDeson", "0.00")
	text(tot, "vFCP", "0.00")
	text(tot, "vBCST", "0.00")
	text(tot, "vST", "0.00")
	text(tot, "vFCPST", "0.00")
	text(tot, "vFCPSTRet", "0.00")
	text(tot, "vProd", money(t.vProd))
	text(tot, "vFrete", "0.00")
	text(tot, "vSeg", "0.00")
	text(tot, "vDesc", "0.00")
	text(tot, "vII", "0.00")
	text(tot, "vIPI", money(t.vIPI))
	text(tot, "vIPIDevol", "0.00")
	text(tot, "vPIS", money(t.vPIS))
	text(tot, "vCOFINS", money(t.vCOFINS))
	text(tot, "vOutro", "0.00")
	text(tot, "vNF", money(t.vNF))
	text(tot, "vTotTrib", money(t.vTotTrib))
}

func (s *XMLBuilderService) writePayment(inf *etree.Element, ctx *DocumentBuildContext, vNF decimal.Decimal) {
	det := inf.CreateElement("pag").CreateElement("detPag")
	text(det, "tPag", nfe.PaymentCode(strings.ToLower(strings.TrimSpace(ctx.Order.PaymentMethod))))
	text(det, "vPag", money(vNF))
}

func (s *XMLBuilderService) writeAdditionalInfo(inf *etree.Element, ctx *DocumentBuildContext) {
	info := "Pedido " + ctx.Order.ID
	if ctx.ContingencyAt != nil {
		info += ". EMITIDA EM CONTINGENCIA"
	}
	text(inf.CreateElement("infAdic"), "infCpl", clean(info))
}

// ── helpers ───────────────────────────────────────────────────────────────────

func writeContribution(imposto *etree.Element, group string, bd entity.TaxBreakdown, kind entity.TaxKind) decimal.Decimal {
	g := imposto.CreateElement(group)
	amount := bd.AmountFor(kind)
	if !hasTax(bd, kind) {
		nt := g.CreateElement(group + "NT")
		text(nt, "CST", "07")
		return decimal.Zero
	}
	aliq := g.CreateElement(group + "Aliq")
	text(aliq, "CST", "01")
	text(aliq, "vBC", money(bd.Base))
	text(aliq, "p"+group, percent(bd.RateFor(kind)))
	text(aliq, "v"+group, money(amount))
	return amount
}

func writeIBSCBS(imposto *etree.Element, bd entity.TaxBreakdown) {
	if !hasTax(bd, entity.TaxKindIBS) && !hasTax(bd, entity.TaxKindCBS) {
		return
	}
	g := imposto.CreateElement("IBSCBS")
	text(g, "CST", "000")
	text(g, "cClassTrib", "000001")
	grp := g.CreateElement("gIBSCBS")
	text(grp, "vBC", money(bd.Base))
	uf := grp.CreateElement("gIBSUF")
	text(uf, "pIBSUF", percent(bd.RateFor(entity.TaxKindIBS)))
	text(uf, "vIBSUF", money(bd.AmountFor(entity.TaxKindIBS)))
	text(grp, "vIBS", money(bd.AmountFor(entity.TaxKindIBS)))
	cbs := grp.CreateElement("gCBS")
	text(cbs, "pCBS", percent(bd.RateFor(entity.TaxKindCBS)))
	text(cbs, "vCBS", money(bd.AmountFor(entity.TaxKindCBS)))
}

// otherTaxes describe los tributos sin grupo propio en el leiaute.
func otherTaxes(bd entity.TaxBreakdown) string {
	var parts []string
	for _, tx := range bd.Taxes {
		switch tx.Kind {
		case entity.TaxKindICMS, entity.TaxKindIPI, entity.TaxKindPIS, entity.TaxKindCOFINS,
			entity.TaxKindIBS, entity.TaxKindCBS:
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s%%: %s", tx.Kind, percent(tx.Rate), money(tx.Amount)))
	}
	return strings.Join(parts, "; ")
}

func hasTax(bd entity.TaxBreakdown, kind entity.TaxKind) bool {
	for _, tx := range bd.Taxes {
		if tx.Kind == kind {
			return true
		}
	}
	return false
}

// EnvironmentCode traduce el ambiente de la configuración a tpAmb.
func EnvironmentCode(env string) string {
	if env == entity.EnvironmentProduction {
		return nfe.EnvProduction
	}
	return nfe.EnvHomologation
}

func crtFor(regime string) string {
	if regime == entity.TaxRegimeSimplesNacional {
		return nfe.CRTSimplesNacional
	}
	return nfe.CRTRegimeNormal
}

func emissionType(d *entity.FiscalDocument) string {
	if d.EmissionType == "" {
		return nfe.EmissionNormal
	}
	return d.EmissionType
}

func text(parent *etree.Element, tag, value string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(value)
	return el
}

// clean normaliza a NFC y colapsa espacios: el leiaute rechaza espacios al inicio/fin y dobles.
func clean(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

func money(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func percent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).StringFixed(4)
}

func formatDateTime(t time.Time) string {
	return t.In(brazilTime).Format("2006-01-02T15:04:05-07:00")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
