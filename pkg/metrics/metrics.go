package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 endpoint 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		InvocationTotal, InvocationFinished, InvocationDuration,
		JournalEntryTotal, SuspensionTotal,
	)
}

// InvocationTotal 收到的 invocation 总数
var InvocationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sdk_invocation_total",
		Help: "收到的 invocation 总数",
	},
	[]string{"service", "method"},
)

// InvocationFinished invocation 结束总数（按结局）
var InvocationFinished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sdk_invocation_finished_total",
		Help: "invocation 结束总数（按结局）",
	},
	[]string{"service", "method", "outcome"}, // output | suspension | error
)

// InvocationDuration invocation 执行耗时（秒）
var InvocationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sdk_invocation_duration_seconds",
		Help:    "invocation 执行耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"service", "method"},
)

// JournalEntryTotal journal entry 总数（按类型与来源）
var JournalEntryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sdk_journal_entry_total",
		Help: "journal entry 总数（按类型与来源）",
	},
	[]string{"type", "origin"}, // origin: replayed | emitted
)

// SuspensionTotal 挂起次数
var SuspensionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sdk_suspension_total",
		Help: "挂起次数",
	},
	[]string{"service", "method"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
