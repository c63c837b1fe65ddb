package dashboard

import (
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

// Inputs are the four parsed source payloads of one cycle.
type Inputs struct {
	Summary         telemetry.SummaryMetrics
	InterceptEvents []telemetry.InterceptEvent
	IntrusionEvents []telemetry.IntrusionEvent
	Timeline        []telemetry.TimelineMark
}

// Build turns one cycle's inputs into a snapshot. It performs no I/O and
// shares no memory with the inputs. Event feeds come out most recent
// first; the timeline keeps source order. Negative counters are dropped
// and read as zero.
func Build(cycleID string, in Inputs) *telemetry.Snapshot {
	summary := make(telemetry.SummaryMetrics, len(in.Summary))
	for name, v := range in.Summary {
		if v >= 0 {
			summary[name] = v
		}
	}

	intercepts := make([]telemetry.InterceptEvent, len(in.InterceptEvents))
	dist := make(map[string]int)
	for i, ev := range in.InterceptEvents {
		if ev.IsHTTPRequest() {
			if ev.Method == "" {
				ev.Method = telemetry.UnknownMethod
			}
			dist[ev.Method]++
		}
		if ev.StatusCode != nil {
			code := *ev.StatusCode
			ev.StatusCode = &code
		}
		if ev.Raw != nil {
			ev.Raw = append(jsoniter.RawMessage(nil), ev.Raw...)
		}
		intercepts[len(intercepts)-1-i] = ev
	}

	intrusions := make([]telemetry.IntrusionEvent, len(in.IntrusionEvents))
	for i, ev := range in.IntrusionEvents {
		if ev.HTTP != nil {
			obs := *ev.HTTP
			ev.HTTP = &obs
		}
		intrusions[len(intrusions)-1-i] = ev
	}

	timeline := make([]telemetry.TimelineMark, len(in.Timeline))
	copy(timeline, in.Timeline)

	return &telemetry.Snapshot{
		CycleID:            cycleID,
		Summary:            summary,
		InterceptEvents:    intercepts,
		IntrusionEvents:    intrusions,
		Timeline:           timeline,
		MethodDistribution: dist,
	}
}

// MethodCount is one bar of the method distribution.
type MethodCount struct {
	Method string
	Count  int
}

// SortedDistribution orders a distribution by count descending, then method.
func SortedDistribution(dist map[string]int) []MethodCount {
	out := make([]MethodCount, 0, len(dist))
	for m, c := range dist {
		out = append(out, MethodCount{Method: m, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Method < out[j].Method
	})
	return out
}
