// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"sort"
	"sync"
	"time"
)

const LatencyBuckets = 101
const LatencyBucketSize = time.Millisecond

// Histogram counts durations in fixed-width buckets. The last bucket holds
// everything beyond the range.
type Histogram struct {
	Buckets [LatencyBuckets]uint64 `json:"b"`
	Count   uint64                 `json:"c"`
	Sum     float64                `json:"s"` // Sum of durations in milliseconds
}

func (h *Histogram) Add(d time.Duration) {
	idx := min(int(d/LatencyBucketSize), LatencyBuckets-1)
	h.Buckets[max(idx, 0)]++
	h.Count++
	h.Sum += float64(d) / float64(time.Millisecond)
}

func (h *Histogram) Merge(other *Histogram) {
	if other == nil {
		return
	}
	for i := range h.Buckets {
		h.Buckets[i] += other.Buckets[i]
	}
	h.Count += other.Count
	h.Sum += other.Sum
}

// Quantile returns the upper bound of the bucket holding quantile q.
func (h *Histogram) Quantile(q float64) time.Duration {
	if h.Count == 0 {
		return 0
	}
	target := uint64(q * float64(h.Count))
	var seen uint64
	for i, n := range h.Buckets {
		seen += n
		if seen > target || (seen == h.Count && n > 0) {
			return time.Duration(i+1) * LatencyBucketSize
		}
	}
	return LatencyBuckets * LatencyBucketSize
}

// ResolutionConfig defines one resolution of a time series.
type ResolutionConfig struct {
	Name       string        `json:"name"`
	Resolution time.Duration `json:"resolution"`
	Buckets    int           `json:"buckets"`
}

// A game lasts hours, so per-minute and per-five-minute views are enough.
var DefaultResolutions = []ResolutionConfig{
	{"1m", time.Minute, 180},
	{"5m", 5 * time.Minute, 144},
}

// Point is a single data point in a time series.
type Point[T any] struct {
	Timestamp int64 `json:"t"`
	Value     T     `json:"v"`
}

// RingBuffer is a fixed-size circular buffer of points.
type RingBuffer[T any] struct {
	Config ResolutionConfig `json:"config"`
	Data   []Point[T]       `json:"data"`
	Head   int              `json:"head"` // Points to the *next* write position
}

func NewRingBuffer[T any](cfg ResolutionConfig) *RingBuffer[T] {
	return &RingBuffer[T]{
		Config: cfg,
		Data:   make([]Point[T], cfg.Buckets),
	}
}

func (rb *RingBuffer[T]) align(timestamp int64) int64 {
	res := int64(rb.Config.Resolution.Seconds())
	return (timestamp / res) * res
}

// last returns the point of the current bucket of timestamp, or nil.
func (rb *RingBuffer[T]) last(timestamp int64) *Point[T] {
	prev := (rb.Head - 1 + len(rb.Data)) % len(rb.Data)
	if rb.Data[prev].Timestamp == rb.align(timestamp) {
		return &rb.Data[prev]
	}
	return nil
}

// Add writes value into the bucket of timestamp, replacing a value already there.
func (rb *RingBuffer[T]) Add(timestamp int64, value T) {
	if p := rb.last(timestamp); p != nil {
		p.Value = value
		return
	}
	rb.Data[rb.Head] = Point[T]{Timestamp: rb.align(timestamp), Value: value}
	rb.Head = (rb.Head + 1) % len(rb.Data)
}

// GetPoints returns the data points sorted by time.
func (rb *RingBuffer[T]) GetPoints() []Point[T] {
	points := make([]Point[T], 0, len(rb.Data))
	for i := range rb.Data {
		idx := (rb.Head + i) % len(rb.Data)
		if rb.Data[idx].Timestamp > 0 {
			points = append(points, rb.Data[idx])
		}
	}
	return points
}

// CounterSeries sums values per bucket at every resolution.
type CounterSeries struct {
	Buffers map[string]*RingBuffer[float64] `json:"buffers"`
}

func NewCounterSeries() *CounterSeries {
	cs := &CounterSeries{Buffers: make(map[string]*RingBuffer[float64])}
	for _, cfg := range DefaultResolutions {
		cs.Buffers[cfg.Name] = NewRingBuffer[float64](cfg)
	}
	return cs
}

func (cs *CounterSeries) Ingest(timestamp int64, value float64) {
	for _, buf := range cs.Buffers {
		if p := buf.last(timestamp); p != nil {
			p.Value += value
			continue
		}
		buf.Add(timestamp, value)
	}
}

// HistogramSeries merges histograms per bucket at every resolution.
type HistogramSeries struct {
	Buffers map[string]*RingBuffer[Histogram] `json:"buffers"`
}

func NewHistogramSeries() *HistogramSeries {
	hs := &HistogramSeries{Buffers: make(map[string]*RingBuffer[Histogram])}
	for _, cfg := range DefaultResolutions {
		hs.Buffers[cfg.Name] = NewRingBuffer[Histogram](cfg)
	}
	return hs
}

func (hs *HistogramSeries) Ingest(timestamp int64, h *Histogram) {
	if h == nil {
		return
	}
	for _, buf := range hs.Buffers {
		if p := buf.last(timestamp); p != nil {
			p.Value.Merge(h)
			continue
		}
		buf.Add(timestamp, *h)
	}
}

// ActionStats are the totals of one action type.
type ActionStats struct {
	Applied  uint64    `json:"applied"`
	Rejected uint64    `json:"rejected"`
	Latency  Histogram `json:"latency"`
}

// ActionMetrics records how long each action takes to apply, journal and mirror.
// It is safe for concurrent use; every game hub records into the same instance.
type ActionMetrics struct {
	mu        sync.Mutex
	start     time.Time
	byType    map[string]*ActionStats
	actions   *CounterSeries
	latencies *HistogramSeries
	failures  map[string]uint64

	now func() time.Time
}

func NewActionMetrics() *ActionMetrics {
	return &ActionMetrics{
		start:     time.Now(),
		byType:    make(map[string]*ActionStats),
		actions:   NewCounterSeries(),
		latencies: NewHistogramSeries(),
		failures:  make(map[string]uint64),
		now:       time.Now,
	}
}

// Record adds one action. A rejected action counts, but its latency does not.
func (m *ActionMetrics) Record(actionType string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byType[actionType]
	if !ok {
		st = &ActionStats{}
		m.byType[actionType] = st
	}
	if err != nil {
		st.Rejected++
		return
	}
	st.Applied++
	st.Latency.Add(d)

	ts := m.now().Unix()
	m.actions.Ingest(ts, 1)
	var h Histogram
	h.Add(d)
	m.latencies.Ingest(ts, &h)
}

// RecordFailure counts a failed mirror or journal write.
func (m *ActionMetrics) RecordFailure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind]++
}

// MetricsReport is the body of the metrics endpoint.
type MetricsReport struct {
	Uptime     string                        `json:"uptime"`
	Actions    map[string]ActionStats        `json:"actions"`
	P50        map[string]string             `json:"p50"`
	P99        map[string]string             `json:"p99"`
	Failures   map[string]uint64             `json:"failures"`
	PerMinute  []Point[float64]              `json:"perMinute"`
	Latency    map[string][]Point[Histogram] `json:"latency"`
	ActiveHubs int                           `json:"activeHubs"`
}

// Report returns a copy of the current figures.
func (m *ActionMetrics) Report() MetricsReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := MetricsReport{
		Uptime:   m.now().Sub(m.start).Truncate(time.Second).String(),
		Actions:  make(map[string]ActionStats, len(m.byType)),
		P50:      make(map[string]string, len(m.byType)),
		P99:      make(map[string]string, len(m.byType)),
		Failures: make(map[string]uint64, len(m.failures)),
		Latency:  make(map[string][]Point[Histogram]),
	}
	types := make([]string, 0, len(m.byType))
	for t := range m.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		st := *m.byType[t]
		r.Actions[t] = st
		r.P50[t] = st.Latency.Quantile(0.5).String()
		r.P99[t] = st.Latency.Quantile(0.99).String()
	}
	for k, v := range m.failures {
		r.Failures[k] = v
	}
	r.PerMinute = m.actions.Buffers["1m"].GetPoints()
	for name, buf := range m.latencies.Buffers {
		r.Latency[name] = buf.GetPoints()
	}
	return r
}
