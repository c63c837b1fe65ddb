package telemetry

import (
	"math"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Well-known summary counter names written by the capture pipeline.
const (
	CounterHTTPRequests    = "total_http_requests"
	CounterConnections     = "total_connections"
	CounterUniqueURLs      = "unique_urls"
	CounterSuricataEvents  = "total_suricata_events"
	EventTypeHTTPRequest   = "http_request"
	EventTypeClientConnect = "client_connect"
	UnknownMethod          = "UNKNOWN"
)

// SummaryMetrics is a flat set of named integer counters.
type SummaryMetrics map[string]int64

// Get returns the named counter, or zero when it is absent.
func (m SummaryMetrics) Get(name string) int64 {
	if m == nil {
		return 0
	}
	return m[name]
}

// InterceptEvent is one observation from the intercepting proxy.
// Only the http_request variant carries method/url/status.
type InterceptEvent struct {
	Type       string `json:"type"`
	Method     string `json:"method,omitempty"`
	URL        string `json:"url,omitempty"`
	ClientIP   string `json:"client_ip,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	StatusCode *int   `json:"status_code,omitempty"`

	// Raw is the record as read from the source, kept so variants this
	// package does not model are not lost.
	Raw jsoniter.RawMessage `json:"-"`
}

// IsHTTPRequest reports whether the event is the http_request variant.
func (e InterceptEvent) IsHTTPRequest() bool {
	return e.Type == EventTypeHTTPRequest
}

// Failed reports whether a status code is present and is a client or server error.
func (e InterceptEvent) Failed() bool {
	return e.StatusCode != nil && *e.StatusCode >= 400
}

// UnmarshalJSON decodes an event without failing on mistyped optional fields.
func (e *InterceptEvent) UnmarshalJSON(b []byte) error {
	var w struct {
		Type       jsoniter.RawMessage `json:"type"`
		Method     jsoniter.RawMessage `json:"method"`
		URL        jsoniter.RawMessage `json:"url"`
		ClientIP   jsoniter.RawMessage `json:"client_ip"`
		Timestamp  jsoniter.RawMessage `json:"timestamp"`
		StatusCode jsoniter.RawMessage `json:"status_code"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = InterceptEvent{
		Type:      text(w.Type),
		Method:    text(w.Method),
		URL:       text(w.URL),
		ClientIP:  text(w.ClientIP),
		Timestamp: text(w.Timestamp),
		Raw:       append(jsoniter.RawMessage(nil), b...),
	}
	if n, ok := integer(w.StatusCode); ok {
		code := int(n)
		e.StatusCode = &code
	}
	return nil
}

// Port is a transport port that tolerates the loose encodings emitted by
// the sensor log parser (number, numeric string, empty string, null).
type Port int

// UnmarshalJSON implements json.Unmarshaler.
func (p *Port) UnmarshalJSON(b []byte) error {
	n, _ := integer(b)
	*p = Port(n)
	return nil
}

// String renders the port, or an empty string when it is unknown.
func (p Port) String() string {
	if p == 0 {
		return ""
	}
	return strconv.Itoa(int(p))
}

// HTTPObservation is the HTTP transaction an intrusion alert correlates to.
type HTTPObservation struct {
	Method string `json:"http_method,omitempty"`
	URL    string `json:"http_url,omitempty"`
	Status int    `json:"http_status,omitempty"`
}

// IntrusionEvent is one record from the intrusion-detection sensor.
type IntrusionEvent struct {
	EventType string           `json:"event_type"`
	SrcIP     string           `json:"src_ip,omitempty"`
	SrcPort   Port             `json:"src_port,omitempty"`
	DestIP    string           `json:"dest_ip,omitempty"`
	DestPort  Port             `json:"dest_port,omitempty"`
	Proto     string           `json:"proto,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
	HTTP      *HTTPObservation `json:"http,omitempty"`
}

// UnmarshalJSON accepts both the flattened http_* fields and the nested
// "http" object found in raw sensor output.
func (e *IntrusionEvent) UnmarshalJSON(b []byte) error {
	var w struct {
		EventType  jsoniter.RawMessage `json:"event_type"`
		SrcIP      jsoniter.RawMessage `json:"src_ip"`
		SrcPort    Port                `json:"src_port"`
		DestIP     jsoniter.RawMessage `json:"dest_ip"`
		DestPort   Port                `json:"dest_port"`
		Proto      jsoniter.RawMessage `json:"proto"`
		Timestamp  jsoniter.RawMessage `json:"timestamp"`
		HTTPMethod jsoniter.RawMessage `json:"http_method"`
		HTTPURL    jsoniter.RawMessage `json:"http_url"`
		HTTPStatus jsoniter.RawMessage `json:"http_status"`
		HTTP       jsoniter.RawMessage `json:"http"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = IntrusionEvent{
		EventType: text(w.EventType),
		SrcIP:     text(w.SrcIP),
		SrcPort:   w.SrcPort,
		DestIP:    text(w.DestIP),
		DestPort:  w.DestPort,
		Proto:     text(w.Proto),
		Timestamp: text(w.Timestamp),
	}

	obs := HTTPObservation{Method: text(w.HTTPMethod), URL: text(w.HTTPURL)}
	if n, ok := integer(w.HTTPStatus); ok {
		obs.Status = int(n)
	}
	if len(w.HTTP) > 0 {
		var nested struct {
			Method jsoniter.RawMessage `json:"http_method"`
			URL    jsoniter.RawMessage `json:"url"`
			Status jsoniter.RawMessage `json:"status"`
		}
		if err := json.Unmarshal(w.HTTP, &nested); err == nil {
			if obs.Method == "" {
				obs.Method = text(nested.Method)
			}
			if obs.URL == "" {
				obs.URL = text(nested.URL)
			}
			if n, ok := integer(nested.Status); ok && obs.Status == 0 {
				obs.Status = int(n)
			}
		}
	}
	if obs.Method != "" || obs.URL != "" {
		e.HTTP = &obs
	}
	return nil
}

// Endpoint renders an ip:port pair, dropping the port when unknown.
func Endpoint(ip string, port Port) string {
	if port == 0 {
		return ip
	}
	return ip + ":" + port.String()
}

// TimelineKind is the attack marker kind. Values other than start and stop
// are carried through as read.
type TimelineKind string

const (
	TimelineStart TimelineKind = "start"
	TimelineStop  TimelineKind = "stop"
)

// Known reports whether k is one of the recognised kinds.
func (k TimelineKind) Known() bool {
	return k == TimelineStart || k == TimelineStop
}

// Label is the display text for the marker. Unrecognised kinds display as a stop.
func (k TimelineKind) Label() string {
	if k == TimelineStart {
		return "Attack Started"
	}
	return "Attack Stopped"
}

// TimelineMark is one row of the attack timeline log.
type TimelineMark struct {
	Timestamp string       `json:"timestamp"`
	Kind      TimelineKind `json:"event"`
}

// Snapshot is the complete view-model built from one successful refresh cycle.
// It is never mutated after construction.
type Snapshot struct {
	CycleID            string           `json:"cycle_id"`
	Summary            SummaryMetrics   `json:"summary"`
	InterceptEvents    []InterceptEvent `json:"intercepted_events"`
	IntrusionEvents    []IntrusionEvent `json:"intrusion_events"`
	Timeline           []TimelineMark   `json:"timeline"`
	MethodDistribution map[string]int   `json:"method_distribution"`
}

// HTTPRequests returns the http_request subset in feed order.
func (s *Snapshot) HTTPRequests() []InterceptEvent {
	if s == nil {
		return nil
	}
	out := make([]InterceptEvent, 0, len(s.InterceptEvents))
	for _, e := range s.InterceptEvents {
		if e.IsHTTPRequest() {
			out = append(out, e)
		}
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999-0700", // sensor eve.json
	"2006-01-02T15:04:05.999999999",      // zone-less isoformat()
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTime parses the ISO-8601 variants seen in the sources. The second
// result is false for empty or unparseable input.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// text returns raw as a string when it is a JSON string, else "".
func text(raw jsoniter.RawMessage) string {
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// TruncateFloat converts f toward zero. ok is false for NaN, infinities and
// values outside the int64 range.
func TruncateFloat(f float64) (n int64, ok bool) {
	const limit = 1 << 63
	if math.IsNaN(f) || f >= limit || f < -limit {
		return 0, false
	}
	return int64(f), true
}

// integer accepts a JSON number or numeric string.
func integer(raw []byte) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	v := strings.TrimSpace(string(raw))
	if strings.HasPrefix(v, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		v = strings.TrimSpace(s)
	}
	if v == "" || v == "null" {
		return 0, false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return TruncateFloat(f)
	}
	return 0, false
}
