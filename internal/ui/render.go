package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rivo/tview"

	"github.com/Ashfaaq98/range-console/internal/dashboard"
	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

const (
	appTitle    = "MITM Cyber Range Dashboard"
	appSubtitle = "Real-time monitoring of man-in-the-middle attack simulation"

	longTimeLayout  = "Jan 2, 2006, 3:04:05 PM"
	clockTimeLayout = "15:04:05"

	maxBarWidth = 40
)

// BannerKind classifies what the banner line tells the operator.
type BannerKind int

const (
	BannerNone BannerKind = iota
	BannerLoading
	BannerRefreshing
	BannerError
	BannerStale
)

// bannerKind derives the banner from scheduler state and whether any
// snapshot has ever been committed.
func bannerKind(st dashboard.Status, hasSnapshot bool) BannerKind {
	switch {
	case !hasSnapshot && st.State == dashboard.StateError:
		return BannerError
	case !hasSnapshot:
		return BannerLoading
	case st.State == dashboard.StateError:
		return BannerStale
	case st.State == dashboard.StateFetching:
		return BannerRefreshing
	default:
		return BannerNone
	}
}

func bannerText(st dashboard.Status, hasSnapshot bool, th Theme) string {
	switch bannerKind(st, hasSnapshot) {
	case BannerLoading:
		return fmt.Sprintf("[%s]Loading dashboard data...[-]", th.TagAccent)
	case BannerError:
		return fmt.Sprintf("[%s::b]Error[-::-] [%s]%s[-]  press [%s]r[-] to retry",
			th.TagError, th.TagTextPrimary, st.Message, th.TagAccent)
	case BannerStale:
		return fmt.Sprintf("[%s]Showing last good data.[-] [%s]%s[-]  press [%s]r[-] to retry",
			th.TagWarning, th.TagMuted, st.Message, th.TagAccent)
	case BannerRefreshing:
		return fmt.Sprintf("[%s]Refreshing...[-]", th.TagMuted)
	default:
		return ""
	}
}

// lastUpdatedText renders the absolute and relative age of the snapshot.
func lastUpdatedText(at time.Time, ok bool, now time.Time) string {
	if !ok {
		return ""
	}
	return fmt.Sprintf("Last updated: %s (%s)", at.Format(longTimeLayout), humanize.RelTime(at, now, "ago", "from now"))
}

type statCard struct {
	Label string
	Value string
}

func statCards(sum telemetry.SummaryMetrics) []statCard {
	return []statCard{
		{Label: "Total HTTP Requests", Value: humanize.Comma(sum.Get(telemetry.CounterHTTPRequests))},
		{Label: "Total Connections", Value: humanize.Comma(sum.Get(telemetry.CounterConnections))},
		{Label: "Unique URLs", Value: humanize.Comma(sum.Get(telemetry.CounterUniqueURLs))},
		{Label: "Suricata Events", Value: humanize.Comma(sum.Get(telemetry.CounterSuricataEvents))},
	}
}

// longTime formats an ISO-8601 source timestamp for display. Unparseable
// input is shown as read.
func longTime(ts string) string {
	if t, ok := telemetry.ParseTime(ts); ok {
		return t.Format(longTimeLayout)
	}
	return ts
}

// clockTime formats a source timestamp as HH:MM:SS, empty when absent.
func clockTime(ts string) string {
	if ts == "" {
		return ""
	}
	if t, ok := telemetry.ParseTime(ts); ok {
		return t.Format(clockTimeLayout)
	}
	return ts
}

func timelineText(marks []telemetry.TimelineMark, th Theme) string {
	if len(marks) == 0 {
		return fmt.Sprintf("[%s]No attack events recorded yet[-]", th.TagMuted)
	}
	var b strings.Builder
	for i, m := range marks {
		if i > 0 {
			b.WriteByte('\n')
		}
		tag, label := th.TagSuccess, m.Kind.Label()
		switch {
		case !m.Kind.Known():
			tag = th.TagWarning
			label = fmt.Sprintf("%s [%s](%s)[-]", label, th.TagMuted, tview.Escape(string(m.Kind)))
		case m.Kind == telemetry.TimelineStop:
			tag = th.TagError
		}
		fmt.Fprintf(&b, "[%s]●[-] [%s]%s[-]  %s", tag, th.TagMuted, longTime(m.Timestamp), label)
	}
	return b.String()
}

// methodBars renders the distribution as horizontal bars scaled to the
// largest count. An empty distribution renders nothing.
func methodBars(dist map[string]int, width int, th Theme) string {
	rows := dashboard.SortedDistribution(dist)
	if len(rows) == 0 {
		return ""
	}
	if width <= 0 || width > maxBarWidth {
		width = maxBarWidth
	}
	labelWidth := 0
	for _, r := range rows {
		if len(r.Method) > labelWidth {
			labelWidth = len(r.Method)
		}
	}
	max := rows[0].Count
	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		n := 1
		if max > 0 {
			n = r.Count * width / max
			if n < 1 {
				n = 1
			}
		}
		fmt.Fprintf(&b, "%-*s [%s]%s[-] %d", labelWidth, r.Method, th.TagAccent, strings.Repeat("█", n), r.Count)
	}
	return b.String()
}

type requestRow struct {
	Method    string
	Time      string
	URL       string
	Client    string
	Status    string
	HasStatus bool
	Failed    bool
}

func requestRows(snap *telemetry.Snapshot) []requestRow {
	reqs := snap.HTTPRequests()
	out := make([]requestRow, 0, len(reqs))
	for _, e := range reqs {
		row := requestRow{
			Method: e.Method,
			Time:   clockTime(e.Timestamp),
			URL:    e.URL,
			Client: e.ClientIP,
		}
		if e.StatusCode != nil {
			row.HasStatus = true
			row.Status = strconv.Itoa(*e.StatusCode)
			row.Failed = e.Failed()
		}
		out = append(out, row)
	}
	return out
}

type intrusionRow struct {
	Type  string
	Time  string
	Flow  string
	Proto string
	HTTP  string
}

func intrusionRows(snap *telemetry.Snapshot) []intrusionRow {
	if snap == nil {
		return nil
	}
	out := make([]intrusionRow, 0, len(snap.IntrusionEvents))
	for _, e := range snap.IntrusionEvents {
		row := intrusionRow{
			Type:  e.EventType,
			Time:  clockTime(e.Timestamp),
			Flow:  telemetry.Endpoint(e.SrcIP, e.SrcPort) + " → " + telemetry.Endpoint(e.DestIP, e.DestPort),
			Proto: e.Proto,
		}
		if e.HTTP != nil && e.HTTP.Method != "" {
			row.HTTP = strings.TrimSpace(e.HTTP.Method + " " + e.HTTP.URL)
		}
		out = append(out, row)
	}
	return out
}

func shortcutHints(th Theme) string {
	return fmt.Sprintf("[%s]r[-]:refresh [%s]Tab[-]:focus [%s]t[-]:theme [%s]q[-]:quit",
		th.TagAccent, th.TagAccent, th.TagAccent, th.TagAccent)
}
