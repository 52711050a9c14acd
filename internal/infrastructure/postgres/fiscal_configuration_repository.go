package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.FiscalConfigurationRepository = (*FiscalConfigurationRepo)(nil)

// FiscalConfigurationRepo implementación de FiscalConfigurationRepository (usable con pool o tx).
type FiscalConfigurationRepo struct {
	q Querier
}

// NewFiscalConfigurationRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFiscalConfigurationRepository(q Querier) *FiscalConfigurationRepo {
	return &FiscalConfigurationRepo{q: q}
}

type addressJSON struct {
	Street     string `json:"street,omitempty"`
	Number     string `json:"number,omitempty"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	CityCode   string `json:"city_code,omitempty"`
	UF         string `json:"uf,omitempty"`
	ZipCode    string `json:"zip_code,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type taxRuleJSON struct {
	Kind        string          `json:"kind"`
	DefaultRate decimal.Decimal `json:"default_rate"`
	Enabled     bool            `json:"enabled"`
}

const configColumns = `tenant_id, cnpj, company_name, trading_name, state_registration, municipal_registration,
	tax_regime, address, default_cst, default_cfop, default_ncm, tax_rules,
	certificate_pkcs12, certificate_password, certificate_reference, certificate_expires_at,
	environment, series, last_document_number, csc_id, csc, version, created_at, updated_at`

// GetByTenant devuelve nil, nil si el tenant no tiene configuración.
func (r *FiscalConfigurationRepo) GetByTenant(ctx context.Context, tenantID string) (*entity.FiscalConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM fiscal_configurations WHERE tenant_id = $1`
	var (
		c         entity.FiscalConfiguration
		address   []byte
		rules     []byte
		pkcs12    []byte
		expiresAt *time.Time
	)
	err := r.q.QueryRow(ctx, query, tenantID).Scan(
		&c.TenantID, &c.CNPJ, &c.CompanyName, &c.TradingName, &c.StateRegistration, &c.MunicipalRegistration,
		&c.TaxRegime, &address, &c.DefaultCST, &c.DefaultCFOP, &c.DefaultNCM, &rules,
		&pkcs12, &c.Certificate.Password, &c.Certificate.Reference, &expiresAt,
		&c.Environment, &c.Series, &c.LastDocumentNumber, &c.CSCID, &c.CSC, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fiscal configuration: %w", err)
	}
	c.Certificate.PKCS12 = pkcs12
	c.Certificate.ExpiresAt = expiresAt

	var a addressJSON
	if len(address) > 0 {
		if err := json.Unmarshal(address, &a); err != nil {
			return nil, fmt.Errorf("decode address: %w", err)
		}
	}
	c.Address = entity.Address(a)

	var rs []taxRuleJSON
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &rs); err != nil {
			return nil, fmt.Errorf("decode tax rules: %w", err)
		}
	}
	for _, tr := range rs {
		c.TaxRules = append(c.TaxRules, entity.TaxRule{Kind: entity.TaxKind(tr.Kind), DefaultRate: tr.DefaultRate, Enabled: tr.Enabled})
	}
	return &c, nil
}

// Save inserta (Version 0) o actualiza comparando Version. LastDocumentNumber nunca
// retrocede: se conserva el mayor entre el almacenado y el informado.
func (r *FiscalConfigurationRepo) Save(ctx context.Context, cfg *entity.FiscalConfiguration) error {
	address, err := json.Marshal(addressJSON(cfg.Address))
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	rs := make([]taxRuleJSON, 0, len(cfg.TaxRules))
	for _, tr := range cfg.TaxRules {
		rs = append(rs, taxRuleJSON{Kind: string(tr.Kind), DefaultRate: tr.DefaultRate, Enabled: tr.Enabled})
	}
	rules, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("encode tax rules: %w", err)
	}
	var pkcs12 []byte
	if !cfg.Certificate.IsEmpty() {
		pkcs12 = cfg.Certificate.PKCS12
	}
	args := []any{
		cfg.TenantID, cfg.CNPJ, cfg.CompanyName, cfg.TradingName, cfg.StateRegistration, cfg.MunicipalRegistration,
		cfg.TaxRegime, address, cfg.DefaultCST, cfg.DefaultCFOP, cfg.DefaultNCM, rules,
		pkcs12, cfg.Certificate.Password, cfg.Certificate.Reference, cfg.Certificate.ExpiresAt,
		cfg.Environment, cfg.Series, cfg.LastDocumentNumber, cfg.CSCID, cfg.CSC, cfg.UpdatedAt,
	}

	var (
		version    int64
		lastNumber int64
	)
	if cfg.Version == 0 {
		query := `
			INSERT INTO fiscal_configurations (` + configColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, 1, $22, $22)
			ON CONFLICT (tenant_id) DO NOTHING
			RETURNING version, last_document_number`
		err = r.q.QueryRow(ctx, query, args...).Scan(&version, &lastNumber)
	} else {
		query := `
			UPDATE fiscal_configurations
			SET cnpj = $2, company_name = $3, trading_name = $4, state_registration = $5,
			    municipal_registration = $6, tax_regime = $7, address = $8, default_cst = $9,
			    default_cfop = $10, default_ncm = $11, tax_rules = $12,
			    certificate_pkcs12 = $13, certificate_password = $14, certificate_reference = $15,
			    certificate_expires_at = $16, environment = $17, series = $18,
			    last_document_number = GREATEST(last_document_number, $19),
			    csc_id = $20, csc = $21, updated_at = $22,
			    version = version + 1
			WHERE tenant_id = $1 AND version = $23
			RETURNING version, last_document_number`
		err = r.q.QueryRow(ctx, query, append(args, cfg.Version)...).Scan(&version, &lastNumber)
	}
	if err != nil {
		if isNoRows(err) {
			return domain.ErrStaleConfiguration
		}
		return wrapConflict("save fiscal configuration", err)
	}
	cfg.Version = version
	cfg.LastDocumentNumber = lastNumber
	return nil
}

// NextDocumentNumber reserva el siguiente número con un UPDATE ... RETURNING: la fila
// queda bloqueada hasta el fin de la transacción, por lo que dos emisiones concurrentes
// nunca obtienen el mismo número.
func (r *FiscalConfigurationRepo) NextDocumentNumber(ctx context.Context, tenantID string) (int, int64, error) {
	query := `
		UPDATE fiscal_configurations
		SET last_document_number = last_document_number + 1, updated_at = now()
		WHERE tenant_id = $1
		RETURNING series, last_document_number`
	var (
		series int
		number int64
	)
	if err := r.q.QueryRow(ctx, query, tenantID).Scan(&series, &number); err != nil {
		if isNoRows(err) {
			return 0, 0, domain.ErrConfigurationMissing
		}
		return 0, 0, wrapConflict("next document number", err)
	}
	return series, number, nil
}

// ListTenants devuelve los tenants con configuración registrada.
func (r *FiscalConfigurationRepo) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT tenant_id FROM fiscal_configurations ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
