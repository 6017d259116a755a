// Package metrics 以 Prometheus 文本格式暴露 HTTP 层的请求计数、
// 错误计数与延迟直方图。没有外部依赖，由 API 服务挂载 /metrics。
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type sampleKey struct {
	handler string
	method  string
	code    string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type collector struct {
	mu       sync.Mutex
	requests map[sampleKey]uint64
	errors   map[sampleKey]uint64
	latency  map[sampleKey]*histogram
}

var httpCollector = &collector{
	requests: make(map[sampleKey]uint64),
	errors:   make(map[sampleKey]uint64),
	latency:  make(map[sampleKey]*histogram),
}

// ObserveHTTPRequest 记录一次请求的状态码与耗时。
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpCollector.observe(handler, method, status, duration)
}

func (c *collector) observe(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[sampleKey{handler: handler, method: method, code: strconv.Itoa(status)}]++
	if status >= 500 {
		c.errors[sampleKey{handler: handler, method: method}]++
	}

	latKey := sampleKey{handler: handler, method: method}
	hist := c.latency[latKey]
	if hist == nil {
		hist = &histogram{
			buckets: latencyBuckets,
			counts:  make([]uint64, len(latencyBuckets)),
		}
		c.latency[latKey] = hist
	}
	hist.observe(duration.Seconds())
}

// observe 维护累积直方图。超出最后一个桶的值只计入 +Inf（即 count）。
func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
}

// statusRecorder 捕获下游写出的状态码。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Instrument 包装一个 handler，自动上报其请求指标。
func Instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

// Handler 以 Prometheus 文本格式输出当前指标。
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, httpCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP eigenclaw_http_requests_total Total number of HTTP requests processed.\n")
	builder.WriteString("# TYPE eigenclaw_http_requests_total counter\n")
	for _, key := range sortedKeys(c.requests) {
		builder.WriteString(fmt.Sprintf("eigenclaw_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
			key.handler, key.method, key.code, c.requests[key]))
	}

	builder.WriteString("# HELP eigenclaw_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n")
	builder.WriteString("# TYPE eigenclaw_http_request_errors_total counter\n")
	for _, key := range sortedKeys(c.errors) {
		builder.WriteString(fmt.Sprintf("eigenclaw_http_request_errors_total{handler=%q,method=%q} %d\n",
			key.handler, key.method, c.errors[key]))
	}

	builder.WriteString("# HELP eigenclaw_http_request_duration_seconds HTTP request duration in seconds.\n")
	builder.WriteString("# TYPE eigenclaw_http_request_duration_seconds histogram\n")
	for _, key := range sortedKeys(c.latency) {
		hist := c.latency[key]
		for idx, bound := range hist.buckets {
			builder.WriteString(fmt.Sprintf("eigenclaw_http_request_duration_seconds_bucket{handler=%q,method=%q,le=%q} %d\n",
				key.handler, key.method, formatFloat(bound), hist.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("eigenclaw_http_request_duration_seconds_bucket{handler=%q,method=%q,le=\"+Inf\"} %d\n",
			key.handler, key.method, hist.count))
		builder.WriteString(fmt.Sprintf("eigenclaw_http_request_duration_seconds_sum{handler=%q,method=%q} %s\n",
			key.handler, key.method, formatFloat(hist.sum)))
		builder.WriteString(fmt.Sprintf("eigenclaw_http_request_duration_seconds_count{handler=%q,method=%q} %d\n",
			key.handler, key.method, hist.count))
	}

	return builder.String()
}

func sortedKeys[V any](m map[sampleKey]V) []sampleKey {
	keys := make([]sampleKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].handler != keys[j].handler {
			return keys[i].handler < keys[j].handler
		}
		if keys[i].method != keys[j].method {
			return keys[i].method < keys[j].method
		}
		return keys[i].code < keys[j].code
	})
	return keys
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
