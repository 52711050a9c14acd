// Package metrics expone las métricas Prometheus del núcleo fiscal.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jhoicas/pdv-fiscal/internal/application/fiscal"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ fiscal.MetricsRecorder = (*FiscalMetrics)(nil)

// Config etiquetas constantes de todas las series.
type Config struct {
	ServiceName string
	Environment string
}

// FiscalMetrics emisiones, transmisiones a la SEFAZ y barrido de contingencia.
type FiscalMetrics struct {
	emissions           *prometheus.CounterVec
	transmissionLatency *prometheus.HistogramVec
	contingencyAttempts *prometheus.CounterVec
	contingencyBacklog  prometheus.Gauge
}

var (
	fiscalOnce    sync.Once
	fiscalMetrics *FiscalMetrics
)

// Fiscal devuelve el singleton registrado en el registerer por defecto.
func Fiscal(cfg Config) *FiscalMetrics {
	fiscalOnce.Do(func() {
		fiscalMetrics = NewFiscalMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return fiscalMetrics
}

// ResetFiscalMetricsForTest reinicia el singleton.
func ResetFiscalMetricsForTest() {
	fiscalOnce = sync.Once{}
	fiscalMetrics = nil
}

// NewFiscalMetrics registra las series en registerer (nil = registerer por defecto).
func NewFiscalMetrics(registerer prometheus.Registerer, cfg Config) *FiscalMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "pdv-fiscal"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	constLabels := prometheus.Labels{"service": service, "env": env}

	m := &FiscalMetrics{
		emissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pdv_fiscal_emissions_total",
			Help:        "Documentos fiscales emitidos por tipo y estado resultante.",
			ConstLabels: constLabels,
		}, []string{"type", "status"}),
		transmissionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pdv_fiscal_transmission_duration_seconds",
			Help:        "Latencia de las llamadas a la SEFAZ por resultado.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		contingencyAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pdv_fiscal_contingency_attempts_total",
			Help:        "Reintentos del barrido de contingencia por resultado.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		contingencyBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pdv_fiscal_contingency_backlog",
			Help:        "Entradas en la cola de contingencia al inicio del último barrido.",
			ConstLabels: constLabels,
		}),
	}
	registerer.MustRegister(m.emissions, m.transmissionLatency, m.contingencyAttempts, m.contingencyBacklog)
	return m
}

func (m *FiscalMetrics) ObserveEmission(docType entity.DocumentType, status entity.DocumentStatus) {
	m.emissions.WithLabelValues(string(docType), string(status)).Inc()
}

func (m *FiscalMetrics) ObserveTransmission(outcome string, elapsed time.Duration) {
	m.transmissionLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *FiscalMetrics) ObserveContingencyAttempt(outcome string) {
	m.contingencyAttempts.WithLabelValues(outcome).Inc()
}

func (m *FiscalMetrics) SetContingencyBacklog(n int) {
	m.contingencyBacklog.Set(float64(n))
}

// Handler expone el registry por defecto como handler Fiber.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
