package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// stageTargets are the p95 latency goals, in milliseconds, for each call
// turn stage.
var stageTargets = map[string]float64{
	"validate":   5,
	"stage":      50,
	"transcode":  400,
	"transcribe": 2500,
	"classify":   800,
	"generate":   3000,
	"synthesize": 2500,
	"turn_total": 8000,
}

type StageLatency struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	OverTarget  bool    `json:"over_target,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// LatencySnapshot is served by /v1/perf/latency.
type LatencySnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []StageLatency `json:"stages"`
	Indicators  []Indicator    `json:"indicators,omitempty"`
}

// ring keeps the most recent samples for one stage.
type ring struct {
	buf  []float64
	head int
	n    int
}

func (r *ring) push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

func (r *ring) last() float64 {
	return r.buf[(r.head-1+len(r.buf))%len(r.buf)]
}

// sorted returns the retained samples in ascending order.
func (r *ring) sorted() []float64 {
	out := make([]float64, r.n)
	if r.n < len(r.buf) {
		copy(out, r.buf[:r.n])
	} else {
		copy(out, r.buf)
	}
	sort.Float64s(out)
	return out
}

type latencyWindow struct {
	mu         sync.Mutex
	size       int
	stages     map[string]*ring
	indicators map[string]int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{
		size:       size,
		stages:     make(map[string]*ring),
		indicators: make(map[string]int),
	}
}

func (w *latencyWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.stages[stage]
	if !ok {
		r = &ring{buf: make([]float64, w.size)}
		w.stages[stage] = r
	}
	r.push(ms)
}

func (w *latencyWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *latencyWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stages = make(map[string]*ring)
	w.indicators = make(map[string]int)
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageLatency, 0, len(w.stages)),
	}
	for _, name := range sortedKeys(w.stages) {
		r := w.stages[name]
		if r.n == 0 {
			continue
		}
		snap.Stages = append(snap.Stages, summarize(name, r))
	}
	for _, name := range sortedKeys(w.indicators) {
		snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: w.indicators[name]})
	}
	return snap
}

func summarize(stage string, r *ring) StageLatency {
	samples := r.sorted()
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	s := StageLatency{
		Stage:       stage,
		Samples:     len(samples),
		LastMS:      round2(r.last()),
		AvgMS:       round2(sum / float64(len(samples))),
		P50MS:       round2(percentile(samples, 50)),
		P95MS:       round2(percentile(samples, 95)),
		P99MS:       round2(percentile(samples, 99)),
		TargetP95MS: stageTargets[stage],
	}
	s.OverTarget = s.TargetP95MS > 0 && s.P95MS > s.TargetP95MS
	return s
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*(pos-float64(lo))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
