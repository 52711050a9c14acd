package fiscal

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/pdv-fiscal/internal/application/dto"
	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz/signer"
	"github.com/jhoicas/pdv-fiscal/pkg/logger"
	"github.com/jhoicas/pdv-fiscal/pkg/nfe"
)

// SettingsUseCase lectura y actualización de la configuración fiscal del emisor. Es el
// único escritor de la numeración fuera del incremento transaccional.
type SettingsUseCase struct {
	configs repository.FiscalConfigurationRepository
	audit   repository.AuditLogRepository
	log     *logger.Logger
	now     func() time.Time
}

// NewSettingsUseCase construye el caso de uso.
func NewSettingsUseCase(configs repository.FiscalConfigurationRepository, audit repository.AuditLogRepository) *SettingsUseCase {
	return &SettingsUseCase{configs: configs, audit: audit, log: logger.Nop(), now: time.Now}
}

// SetLogger reemplaza el logger (por defecto descarta todo).
func (uc *SettingsUseCase) SetLogger(l *logger.Logger) {
	if l != nil {
		uc.log = l
	}
}

// Get devuelve la configuración sin secretos o domain.ErrConfigurationMissing.
func (uc *SettingsUseCase) Get(ctx context.Context, tenantID string) (*dto.FiscalSettingsResponse, error) {
	cfg, err := uc.configs.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, domain.ErrConfigurationMissing
	}
	return settingsToResponse(cfg), nil
}

// Update aplica los campos informados. La numeración solo avanza y la escritura compara
// la versión leída (domain.ErrStaleConfiguration si otro proceso la cambió).
func (uc *SettingsUseCase) Update(ctx context.Context, tenantID string, in dto.UpdateFiscalSettingsRequest) (*dto.FiscalSettingsResponse, error) {
	current, err := uc.configs.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	var next entity.FiscalConfiguration
	if current != nil {
		next = *current
	} else {
		next = entity.FiscalConfiguration{
			TenantID:    tenantID,
			TaxRegime:   entity.TaxRegimeSimplesNacional,
			Environment: entity.EnvironmentHomologation,
			Series:      1,
			CreatedAt:   now,
		}
	}
	if in.Version != nil && current != nil && *in.Version != current.Version {
		return nil, domain.ErrStaleConfiguration
	}

	applyString(&next.CNPJ, in.CNPJ)
	applyString(&next.CompanyName, in.CompanyName)
	applyString(&next.TradingName, in.TradingName)
	applyString(&next.StateRegistration, in.StateRegistration)
	applyString(&next.MunicipalRegistration, in.MunicipalRegistration)
	applyString(&next.TaxRegime, in.TaxRegime)
	applyString(&next.DefaultCST, in.DefaultCST)
	applyString(&next.DefaultCFOP, in.DefaultCFOP)
	applyString(&next.DefaultNCM, in.DefaultNCM)
	applyString(&next.Environment, in.Environment)
	applyString(&next.CSCID, in.CSCID)
	applyString(&next.CSC, in.CSC)
	if in.Address != nil {
		next.Address = addressFromDTO(*in.Address)
	}
	if in.TaxRules != nil {
		next.TaxRules = make([]entity.TaxRule, 0, len(in.TaxRules))
		for _, r := range in.TaxRules {
			next.TaxRules = append(next.TaxRules, entity.TaxRule{
				Kind:        entity.TaxKind(strings.ToUpper(r.Kind)),
				DefaultRate: r.DefaultRate,
				Enabled:     r.Enabled,
			})
		}
	}
	if in.Series != nil {
		if *in.Series < 0 || *in.Series > 999 {
			return nil, fmt.Errorf("%w: serie fuera de rango", domain.ErrInvalidInput)
		}
		next.Series = *in.Series
	}
	if in.LastDocumentNumber != nil {
		if *in.LastDocumentNumber < next.LastDocumentNumber {
			return nil, domain.ErrNumberingRegression
		}
		next.LastDocumentNumber = *in.LastDocumentNumber
	}
	if err := uc.applyCertificate(&next, in); err != nil {
		return nil, err
	}
	if err := validateSettings(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = now

	if err := uc.configs.Save(ctx, &next); err != nil {
		return nil, err
	}
	entry := newAuditEntry(ctx, now, tenantID, entity.AuditActionSettingsUpdated, entity.AuditEntityFiscalSettings,
		tenantID, settingsSnapshotOf(current), settingsSnapshotOf(&next))
	if err := uc.audit.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("auditoría de la configuración: %w", err)
	}
	uc.log.Info().
		Str("tenant_id", tenantID).
		Int64("version", next.Version).
		Str("environment", next.Environment).
		Object("certificate", next.Certificate).
		Msg("configuración fiscal actualizada")
	return settingsToResponse(&next), nil
}

// applyCertificate decodifica el certificado informado y registra su referencia y
// vencimiento. Un certificado que no se puede abrir no se guarda.
func (uc *SettingsUseCase) applyCertificate(cfg *entity.FiscalConfiguration, in dto.UpdateFiscalSettingsRequest) error {
	if in.CertificateBase64 == nil {
		if in.CertificatePassword != nil && !cfg.Certificate.IsEmpty() {
			cfg.Certificate.Password = *in.CertificatePassword
		}
		return nil
	}
	if strings.TrimSpace(*in.CertificateBase64) == "" {
		cfg.Certificate = entity.CertificateMaterial{}
		return nil
	}
	material, err := base64.StdEncoding.DecodeString(strings.TrimSpace(*in.CertificateBase64))
	if err != nil {
		return fmt.Errorf("%w: certificado no es base64", domain.ErrInvalidInput)
	}
	password := cfg.Certificate.Password
	if in.CertificatePassword != nil {
		password = *in.CertificatePassword
	}
	cred, err := signer.LoadCredential(material, password, uc.now())
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	ref, expires := signer.Describe(cred)
	cfg.Certificate = entity.CertificateMaterial{
		PKCS12:    material,
		Password:  password,
		Reference: ref,
		ExpiresAt: &expires,
	}
	return nil
}

func validateSettings(cfg *entity.FiscalConfiguration) error {
	if cfg.CNPJ != "" && len(nfe.OnlyDigits(cfg.CNPJ)) != 14 {
		return domain.ErrInvalidIssuerID
	}
	if cfg.Address.UF != "" {
		if _, ok := nfe.UFCode(strings.ToUpper(cfg.Address.UF)); !ok {
			return domain.ErrInvalidJurisdiction
		}
	}
	switch cfg.Environment {
	case entity.EnvironmentHomologation, entity.EnvironmentProduction:
	default:
		return fmt.Errorf("%w: ambiente %q", domain.ErrInvalidInput, cfg.Environment)
	}
	switch cfg.TaxRegime {
	case entity.TaxRegimeSimplesNacional, entity.TaxRegimeLucroPresumido, entity.TaxRegimeLucroReal:
	default:
		return fmt.Errorf("%w: régimen %q", domain.ErrInvalidInput, cfg.TaxRegime)
	}
	for _, r := range cfg.TaxRules {
		if r.DefaultRate.IsNegative() {
			return fmt.Errorf("%w: alícuota negativa para %s", domain.ErrInvalidInput, r.Kind)
		}
	}
	return nil
}

func applyString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func addressFromDTO(a dto.AddressDTO) entity.Address {
	return entity.Address{
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		District:   a.District,
		City:       a.City,
		CityCode:   a.CityCode,
		UF:         strings.ToUpper(strings.TrimSpace(a.UF)),
		ZipCode:    a.ZipCode,
		Phone:      a.Phone,
	}
}

func settingsToResponse(c *entity.FiscalConfiguration) *dto.FiscalSettingsResponse {
	rules := make([]dto.TaxRuleDTO, 0, len(c.EffectiveTaxRules()))
	for _, r := range c.EffectiveTaxRules() {
		rules = append(rules, dto.TaxRuleDTO{Kind: string(r.Kind), DefaultRate: r.DefaultRate, Enabled: r.Enabled})
	}
	return &dto.FiscalSettingsResponse{
		TenantID:              c.TenantID,
		CNPJ:                  c.CNPJ,
		CompanyName:           c.CompanyName,
		TradingName:           c.TradingName,
		StateRegistration:     c.StateRegistration,
		MunicipalRegistration: c.MunicipalRegistration,
		TaxRegime:             c.TaxRegime,
		Address: dto.AddressDTO{
			Street:     c.Address.Street,
			Number:     c.Address.Number,
			Complement: c.Address.Complement,
			District:   c.Address.District,
			City:       c.Address.City,
			CityCode:   c.Address.CityCode,
			UF:         c.Address.UF,
			ZipCode:    c.Address.ZipCode,
			Phone:      c.Address.Phone,
		},
		DefaultCST:            c.DefaultCST,
		DefaultCFOP:           c.DefaultCFOP,
		DefaultNCM:            c.DefaultNCM,
		TaxRules:              rules,
		Environment:           c.Environment,
		Series:                c.Series,
		LastDocumentNumber:    c.LastDocumentNumber,
		CSCID:                 c.CSCID,
		CSCConfigured:         c.CSC != "",
		CertificateConfigured: !c.Certificate.IsEmpty(),
		CertificateReference:  c.Certificate.Reference,
		CertificateExpiresAt:  c.Certificate.ExpiresAt,
		Version:               c.Version,
		UpdatedAt:             c.UpdatedAt,
	}
}
