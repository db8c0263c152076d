package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/sszokoly/sbctail/internal/model"
)

// Stats holds a point-in-time snapshot of aggregated metrics.
type Stats struct {
	Uptime          string           `json:"uptime"`
	TotalMessages   int64            `json:"total_messages"`
	MPS             float64          `json:"mps"`
	MethodCounts    map[string]int64 `json:"method_counts"`
	DirectionCounts map[string]int64 `json:"direction_counts"`
	Dropped         int64            `json:"dropped"`
	TraceFiles      int              `json:"trace_files"`
}

// Aggregator subscribes to the Hub and computes time-windowed metrics.
type Aggregator struct {
	mu           sync.RWMutex
	startTime    time.Time
	total        int64
	methodCounts map[string]int64
	dirCounts    map[string]int64
	window       []time.Time // arrival times for the messages/sec window
	dropped      func() int64
	fileCount    func() int
	messages     <-chan model.Message
}

// New creates an Aggregator that reads from the given Hub subscriber channel.
// droppedFn and fileCountFn provide live values from Hub and Locator.
func New(messages <-chan model.Message, droppedFn func() int64, fileCountFn func() int) *Aggregator {
	return &Aggregator{
		startTime:    time.Now(),
		methodCounts: make(map[string]int64),
		dirCounts:    make(map[string]int64),
		dropped:      droppedFn,
		fileCount:    fileCountFn,
		messages:     messages,
	}
}

// Snapshot returns the current metrics.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	methods := make(map[string]int64, len(a.methodCounts))
	for k, v := range a.methodCounts {
		methods[k] = v
	}
	dirs := make(map[string]int64, len(a.dirCounts))
	for k, v := range a.dirCounts {
		dirs[k] = v
	}

	// Messages/sec over the last 5 seconds.
	cutoff := time.Now().Add(-5 * time.Second)
	var recent int
	for _, t := range a.window {
		if t.After(cutoff) {
			recent++
		}
	}

	return Stats{
		Uptime:          time.Since(a.startTime).Truncate(time.Second).String(),
		TotalMessages:   a.total,
		MPS:             float64(recent) / 5.0,
		MethodCounts:    methods,
		DirectionCounts: dirs,
		Dropped:         a.dropped(),
		TraceFiles:      a.fileCount(),
	}
}

// Start begins consuming messages and updating metrics. Blocks until the
// context is cancelled or the channel closes.
func (a *Aggregator) Start(ctx context.Context) {
	// Periodically prune the sliding window.
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.messages:
			if !ok {
				return
			}
			a.record(msg)
		case <-ticker.C:
			a.prune()
		}
	}
}

// record adds a message to the metrics.
func (a *Aggregator) record(msg model.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if msg.Method != "" {
		a.methodCounts[msg.Method]++
	}
	if msg.Direction != "" {
		a.dirCounts[string(msg.Direction)]++
	}
	a.window = append(a.window, time.Now())
}

// prune removes timestamps older than 5 seconds from the sliding window.
func (a *Aggregator) prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-5 * time.Second)
	i := 0
	for _, t := range a.window {
		if t.After(cutoff) {
			a.window[i] = t
			i++
		}
	}
	a.window = a.window[:i]
}
