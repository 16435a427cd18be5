package server

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var requestDurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

type requestMetricKey struct {
	Method string
	Route  string
	Code   int
}

type requestMetricValue struct {
	Total      uint64
	SumSeconds float64
	Buckets    []uint64
}

type requestMetricCounter struct {
	total    atomic.Uint64
	sumNanos atomic.Uint64
	buckets  []atomic.Uint64
}

func newRequestMetricCounter() *requestMetricCounter {
	return &requestMetricCounter{
		buckets: make([]atomic.Uint64, len(requestDurationBuckets)),
	}
}

type requestMetrics struct {
	mu       sync.RWMutex
	byKey    map[requestMetricKey]*requestMetricCounter
	inFlight atomic.Int64
}

func newRequestMetrics() *requestMetrics {
	return &requestMetrics{byKey: map[requestMetricKey]*requestMetricCounter{}}
}

func (m *requestMetrics) counter(key requestMetricKey) *requestMetricCounter {
	m.mu.RLock()
	c := m.byKey[key]
	m.mu.RUnlock()
	if c != nil {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c = m.byKey[key]; c == nil {
		c = newRequestMetricCounter()
		m.byKey[key] = c
	}
	return c
}

func (m *requestMetrics) observe(method, route string, status int, dur time.Duration) {
	c := m.counter(requestMetricKey{
		Method: strings.ToUpper(strings.TrimSpace(method)),
		Route:  normalizeMetricRoute(route),
		Code:   status,
	})
	c.total.Add(1)
	if dur > 0 {
		c.sumNanos.Add(uint64(dur.Nanoseconds()))
		d := dur.Seconds()
		for i, b := range requestDurationBuckets {
			if d <= b {
				c.buckets[i].Add(1)
			}
		}
	}
}

func (m *requestMetrics) snapshot() map[requestMetricKey]requestMetricValue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[requestMetricKey]requestMetricValue, len(m.byKey))
	for k, c := range m.byKey {
		v := requestMetricValue{
			Total:      c.total.Load(),
			SumSeconds: float64(c.sumNanos.Load()) / float64(time.Second),
			Buckets:    make([]uint64, len(c.buckets)),
		}
		for i := range c.buckets {
			v.Buckets[i] = c.buckets[i].Load()
		}
		out[k] = v
	}
	return out
}

// normalizeMetricRoute keeps label cardinality bounded: unmatched paths
// are collapsed into a single route.
func normalizeMetricRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return "/unknown"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.metrics.inFlight.Add(1)
		defer s.metrics.inFlight.Add(-1)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.observe(r.Method, route, status, time.Since(start))
	})
}

func (m *requestMetrics) renderPrometheus() string {
	snap := m.snapshot()
	keys := make([]requestMetricKey, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Route != keys[j].Route {
			return keys[i].Route < keys[j].Route
		}
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		return keys[i].Code < keys[j].Code
	})

	var b strings.Builder
	b.WriteString("# HELP cloudsummary_http_requests_total HTTP requests handled.\n")
	b.WriteString("# TYPE cloudsummary_http_requests_total counter\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "cloudsummary_http_requests_total{%s} %d\n", metricLabels(k), snap[k].Total)
	}
	b.WriteString("# HELP cloudsummary_http_request_duration_seconds HTTP request duration in seconds.\n")
	b.WriteString("# TYPE cloudsummary_http_request_duration_seconds histogram\n")
	for _, k := range keys {
		v := snap[k]
		labels := metricLabels(k)
		for i, bucket := range requestDurationBuckets {
			fmt.Fprintf(&b, "cloudsummary_http_request_duration_seconds_bucket{%s,le=\"%g\"} %d\n", labels, bucket, v.Buckets[i])
		}
		fmt.Fprintf(&b, "cloudsummary_http_request_duration_seconds_bucket{%s,le=\"+Inf\"} %d\n", labels, v.Total)
		fmt.Fprintf(&b, "cloudsummary_http_request_duration_seconds_sum{%s} %.9f\n", labels, v.SumSeconds)
		fmt.Fprintf(&b, "cloudsummary_http_request_duration_seconds_count{%s} %d\n", labels, v.Total)
	}
	b.WriteString("# HELP cloudsummary_http_requests_in_flight Current in-flight HTTP requests.\n")
	b.WriteString("# TYPE cloudsummary_http_requests_in_flight gauge\n")
	fmt.Fprintf(&b, "cloudsummary_http_requests_in_flight %d\n", m.inFlight.Load())
	return b.String()
}

func metricLabels(k requestMetricKey) string {
	return fmt.Sprintf("method=\"%s\",route=\"%s\",code=\"%s\"",
		promLabelEscape(k.Method), promLabelEscape(k.Route), strconv.Itoa(k.Code))
}

func promLabelEscape(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return strings.ReplaceAll(v, `"`, `\"`)
}

func (s *Server) handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.metrics.renderPrometheus()))
}
