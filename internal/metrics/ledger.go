package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LedgerMetrics 账本写入、统计缓存与告警扫描指标
type LedgerMetrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	cache      *prometheus.CounterVec
	alerts     *prometheus.GaugeVec
	jobs       *prometheus.CounterVec
}

// NewLedgerMetrics 创建独立 registry 并注册账本指标，namespace 为空时不加前缀
func NewLedgerMetrics(namespace string) *LedgerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := newLedgerMetrics(reg, strings.TrimSpace(namespace))
	m.registry = reg
	return m
}

func newLedgerMetrics(reg prometheus.Registerer, namespace string) *LedgerMetrics {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_operations_total",
		Help:      "Ledger operations by outcome code.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_operation_duration_seconds",
		Help:      "Duration of ledger operations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_conflict_retries_total",
		Help:      "Transaction retries caused by concurrent modification.",
	}, []string{"operation"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "statistics_cache_requests_total",
		Help:      "Statistics cache lookups by result.",
	}, []string{"report", "result"})
	alerts := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ledger_alert_vouchers",
		Help:      "Vouchers currently flagged by the alert scan.",
	}, []string{"kind"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_jobs_total",
		Help:      "Background jobs by task type and outcome.",
	}, []string{"task", "outcome"})
	if reg != nil {
		reg.MustRegister(operations, duration, retries, cache, alerts, jobs)
	}
	return &LedgerMetrics{
		operations: operations,
		duration:   duration,
		retries:    retries,
		cache:      cache,
		alerts:     alerts,
		jobs:       jobs,
	}
}

// ObserveOperation 记录一次账本操作的结果与耗时
func (m *LedgerMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	operation = normalizeLabel(operation)
	m.operations.WithLabelValues(operation, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// IncRetry 记录一次冲突重试
func (m *LedgerMetrics) IncRetry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncCache 记录统计缓存命中情况
func (m *LedgerMetrics) IncCache(report, result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(normalizeLabel(report), normalizeLabel(result)).Inc()
}

// SetAlertCount 更新告警券数量
func (m *LedgerMetrics) SetAlertCount(kind string, count int) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(normalizeLabel(kind)).Set(float64(count))
}

// IncJob 记录后台任务执行结果
func (m *LedgerMetrics) IncJob(task, outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(normalizeLabel(task), normalizeLabel(outcome)).Inc()
}

// Gatherer 返回指标采集器
func (m *LedgerMetrics) Gatherer() prometheus.Gatherer {
	if m == nil || m.registry == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *LedgerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{})
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
