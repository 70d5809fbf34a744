// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。覆盖三个维度：LLM 调用、Agent 执行、图运行时
// （步数、状态转换、循环守卫）。
type Collector struct {
	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// Agent 指标
	agentExecutionsTotal   *prometheus.CounterVec
	agentExecutionDuration *prometheus.HistogramVec

	// 图运行时指标
	processRunsTotal      *prometheus.CounterVec
	processStepsTotal     *prometheus.CounterVec
	stateTransitionsTotal *prometheus.CounterVec
	loopGuardTotal        *prometheus.CounterVec

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// LLM 指标
	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// Agent 指标
	c.agentExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_executions_total",
			Help:      "Total number of agent executions",
		},
		[]string{"agent", "kind", "status"},
	)

	c.agentExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_execution_duration_seconds",
			Help:      "Agent execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent", "kind"},
	)

	// 图运行时指标
	c.processRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_runs_total",
			Help:      "Total number of process runs, by termination reason",
		},
		[]string{"process", "reason"},
	)

	c.processStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_steps_total",
			Help:      "Total number of executed graph steps",
		},
		[]string{"process"},
	)

	c.stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of node-to-node transitions",
		},
		[]string{"process", "from", "to"},
	)

	c.loopGuardTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_guard_triggered_total",
			Help:      "Total number of runs terminated by the per-node visit cap",
		},
		[]string{"process", "node"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🎭 Agent 指标记录
// =============================================================================

// RecordAgentExecution 记录 Agent 执行
func (c *Collector) RecordAgentExecution(agent, kind, status string, duration time.Duration) {
	c.agentExecutionsTotal.WithLabelValues(agent, kind, status).Inc()
	c.agentExecutionDuration.WithLabelValues(agent, kind).Observe(duration.Seconds())
}

// =============================================================================
// 🕸️ 图运行时指标记录
// =============================================================================

// RecordProcessRun 记录一次进程运行及其终止原因
// （done/end/loop_guard/cancelled/no_edge）。
func (c *Collector) RecordProcessRun(process, reason string) {
	c.processRunsTotal.WithLabelValues(process, reason).Inc()
}

// RecordStep 记录一次图步进
func (c *Collector) RecordStep(process string) {
	c.processStepsTotal.WithLabelValues(process).Inc()
}

// RecordStateTransition 记录一次节点间转换
func (c *Collector) RecordStateTransition(process, from, to string) {
	c.stateTransitionsTotal.WithLabelValues(process, from, to).Inc()
}

// RecordLoopGuard 记录一次循环守卫触发
func (c *Collector) RecordLoopGuard(process, node string) {
	c.loopGuardTotal.WithLabelValues(process, node).Inc()
}
