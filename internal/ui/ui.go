package ui

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Ashfaaq98/range-console/internal/dashboard"
	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

// Controller is the scheduler surface the dashboard drives.
type Controller interface {
	Status() dashboard.Status
	Refresh() bool
	Interval() time.Duration
}

// UI represents the terminal user interface
type UI struct {
	app    *tview.Application
	ctrl   Controller
	store  *dashboard.Store
	logger *log.Logger

	// Layout components
	layout     *tview.Flex
	header     *tview.TextView
	banner     *tview.TextView
	cards      []*tview.TextView
	timeline   *tview.TextView
	methods    *tview.TextView
	requests   *tview.Table
	intrusions *tview.Table
	statusBar  *tview.TextView

	focusables []tview.Primitive

	// Theme state
	theme        Theme
	themeName    string
	hasTrueColor bool

	// Last status rendered
	status  dashboard.Status
	running atomic.Bool

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewUI builds the dashboard. Nothing is drawn until Start.
func NewUI(ctx context.Context, ctrl Controller, store *dashboard.Store, logger *log.Logger) *UI {
	if logger == nil {
		logger = log.New(log.Writer(), "[UI] ", log.LstdFlags)
	}
	uiCtx, cancel := context.WithCancel(ctx)

	ui := &UI{
		app:          tview.NewApplication(),
		ctrl:         ctrl,
		store:        store,
		logger:       logger,
		hasTrueColor: detectTrueColor(),
		now:          time.Now,
		ctx:          uiCtx,
		cancel:       cancel,
	}

	// Default theme; plain terminals get the high-contrast palette.
	if ui.hasTrueColor {
		ui.themeName, ui.theme = themeByName("dark")
	} else {
		ui.themeName, ui.theme = themeByName("high-contrast")
	}

	ui.setupLayout()
	ui.setupKeybindings()
	ui.applyTheme()
	ui.render(ctrl.Status())

	return ui
}

// Observer returns a scheduler observer that redraws the dashboard on
// every state transition.
func (ui *UI) Observer() dashboard.Observer {
	return func(st dashboard.Status) {
		if !ui.running.Load() {
			return
		}
		ui.app.QueueUpdateDraw(func() { ui.render(st) })
	}
}

// Start runs the TUI until the user quits or ctx is cancelled.
func (ui *UI) Start(ctx context.Context) error {
	ui.logger.Println("Starting TUI application")

	go func() {
		select {
		case <-ctx.Done():
			ui.logger.Println("External context cancelled, stopping TUI")
		case <-ui.ctx.Done():
		}
		ui.cancel()
		ui.app.Stop()
	}()

	ui.startRedrawHeartbeat()

	ui.running.Store(true)
	// Catch up on transitions that happened before the event loop started.
	ui.app.QueueUpdateDraw(func() { ui.render(ui.ctrl.Status()) })
	err := ui.app.Run()
	ui.running.Store(false)
	ui.cancel()
	ui.logger.Printf("app.Run() returned with error: %v", err)
	return err
}

// Stop cancels the dashboard context and stops the TUI application.
func (ui *UI) Stop() {
	ui.logger.Println("Stopping TUI application")
	ui.cancel()
	ui.app.Stop()
}

func (ui *UI) setupLayout() {
	ui.header = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
	ui.banner = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)

	cardRow := tview.NewFlex()
	for range statCards(nil) {
		card := tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
		card.SetBorder(true)
		ui.cards = append(ui.cards, card)
		cardRow.AddItem(card, 0, 1, false)
	}

	ui.timeline = tview.NewTextView()
	ui.timeline.SetDynamicColors(true).SetScrollable(true)
	ui.timeline.SetTitle(" Attack Timeline ").SetBorder(true).SetTitleAlign(tview.AlignLeft)

	ui.methods = tview.NewTextView()
	ui.methods.SetDynamicColors(true)
	ui.methods.SetTitle(" HTTP Methods Distribution ").SetBorder(true).SetTitleAlign(tview.AlignLeft)

	ui.requests = tview.NewTable()
	ui.requests.SetTitle(" Intercepted HTTP Requests ").SetBorder(true).SetTitleAlign(tview.AlignLeft)
	ui.requests.SetSelectable(true, false)
	// Pin header row so it stays visible when selecting/scrolling.
	ui.requests.SetFixed(1, 0)

	ui.intrusions = tview.NewTable()
	ui.intrusions.SetTitle(" Network Events (Suricata) ").SetBorder(true).SetTitleAlign(tview.AlignLeft)
	ui.intrusions.SetSelectable(true, false)
	ui.intrusions.SetFixed(1, 0)

	ui.statusBar = tview.NewTextView().SetDynamicColors(true)

	middle := tview.NewFlex().
		AddItem(ui.timeline, 0, 1, false).
		AddItem(ui.methods, 0, 1, false)

	feeds := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.requests, 0, 1, true).
		AddItem(ui.intrusions, 0, 1, false)

	ui.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.header, 3, 0, false).
		AddItem(ui.banner, 1, 0, false).
		AddItem(cardRow, 4, 0, false).
		AddItem(middle, 8, 0, false).
		AddItem(feeds, 0, 1, true).
		AddItem(ui.statusBar, 1, 0, false)

	ui.focusables = []tview.Primitive{ui.requests, ui.intrusions, ui.timeline}
	ui.app.SetRoot(ui.layout, true).SetFocus(ui.requests)
}

func (ui *UI) setupKeybindings() {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			ui.Stop()
			return nil
		case tcell.KeyTab:
			ui.cycleFocus()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				ui.Stop()
				return nil
			case 'r', 'R':
				ui.requestRefresh()
				return nil
			case 't', 'T':
				ui.cycleTheme()
				return nil
			}
		}
		return event
	})
}

// requestRefresh asks the scheduler for a cycle. The scheduler runs it on
// its own goroutine, so this never blocks the event loop.
func (ui *UI) requestRefresh() {
	if ui.ctrl.Refresh() {
		ui.setStatus("[%s]Refresh requested[-]", ui.theme.TagAccent)
		return
	}
	ui.setStatus("[%s]Refresh already in progress[-]", ui.theme.TagWarning)
}

func (ui *UI) cycleFocus() {
	current := ui.app.GetFocus()
	next := ui.focusables[0]
	for i, p := range ui.focusables {
		if p == current {
			next = ui.focusables[(i+1)%len(ui.focusables)]
			break
		}
	}
	ui.app.SetFocus(next)
	ui.highlightFocus(next)
}

func (ui *UI) highlightFocus(focused tview.Primitive) {
	ui.requests.SetBorderColor(ui.theme.Border)
	ui.intrusions.SetBorderColor(ui.theme.Border)
	ui.timeline.SetBorderColor(ui.theme.Border)
	switch focused {
	case ui.requests:
		ui.requests.SetBorderColor(ui.theme.FocusBorder)
	case ui.intrusions:
		ui.intrusions.SetBorderColor(ui.theme.FocusBorder)
	case ui.timeline:
		ui.timeline.SetBorderColor(ui.theme.FocusBorder)
	}
}

// startRedrawHeartbeat keeps the relative "Last updated" age current.
func (ui *UI) startRedrawHeartbeat() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ui.ctx.Done():
				return
			case <-ticker.C:
				if ui.running.Load() {
					ui.app.QueueUpdateDraw(ui.renderHeader)
				}
			}
		}
	}()
}

func (ui *UI) setStatus(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	ui.statusBar.SetText(fmt.Sprintf("%s | %s | %s", shortcutHints(ui.theme), ui.stateTag(ui.status), msg))
}

func (ui *UI) stateTag(st dashboard.Status) string {
	tag := ui.theme.TagMuted
	switch st.State {
	case dashboard.StateReady:
		tag = ui.theme.TagSuccess
	case dashboard.StateError:
		tag = ui.theme.TagError
	case dashboard.StateFetching:
		tag = ui.theme.TagAccent
	}
	return fmt.Sprintf("[%s]%s[-]", tag, strings.ToUpper(st.State.String()))
}

// render redraws every widget from st and the committed snapshot. Must run
// on the UI goroutine once the app is running.
func (ui *UI) render(st dashboard.Status) {
	ui.status = st
	snap, _, ok := ui.store.Load()

	ui.renderHeader()
	ui.banner.SetText(bannerText(st, ok, ui.theme))

	if !ok {
		snap = &telemetry.Snapshot{}
	}
	for i, c := range statCards(snap.Summary) {
		ui.cards[i].SetTitle(" " + c.Label + " ")
		ui.cards[i].SetText(fmt.Sprintf("\n[%s::b]%s[-::-]", ui.theme.TagAccent, c.Value))
	}

	ui.timeline.SetText(timelineText(snap.Timeline, ui.theme))
	if bars := methodBars(snap.MethodDistribution, maxBarWidth, ui.theme); bars != "" {
		ui.methods.SetText(bars)
	} else {
		ui.methods.SetText(fmt.Sprintf("[%s]No HTTP requests intercepted yet[-]", ui.theme.TagMuted))
	}
	ui.renderRequests(snap)
	ui.renderIntrusions(snap)

	msg := fmt.Sprintf("Refresh every %s", ui.ctrl.Interval())
	if !st.FinishedAt.IsZero() {
		msg += fmt.Sprintf(", last cycle %s in %s", st.State, st.Duration().Round(time.Millisecond))
	}
	ui.setStatus("%s", msg)
}

func (ui *UI) renderHeader() {
	_, at, ok := ui.store.Load()
	text := fmt.Sprintf("[%s::b]%s[-::-]\n[%s]%s[-]", ui.theme.TagAccent, appTitle, ui.theme.TagMuted, appSubtitle)
	if line := lastUpdatedText(at, ok, ui.now()); line != "" {
		text += fmt.Sprintf("\n[%s]%s[-]", ui.theme.TagMuted, line)
	}
	ui.header.SetText(text)
}

func (ui *UI) setHeaderRow(t *tview.Table, headers []string) {
	for col, h := range headers {
		t.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(ui.theme.TableHeader).
			SetBackgroundColor(ui.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}
}

func (ui *UI) renderRequests(snap *telemetry.Snapshot) {
	t := ui.requests
	t.Clear()
	ui.setHeaderRow(t, []string{"Method", "Time", "URL", "Client", "Status"})
	rows := requestRows(snap)
	if len(rows) == 0 {
		t.SetCell(1, 0, tview.NewTableCell("No HTTP requests intercepted yet").
			SetTextColor(ui.theme.TableRowMuted).SetSelectable(false))
		return
	}
	for i, r := range rows {
		row := i + 1
		t.SetCell(row, 0, tview.NewTableCell(r.Method).SetTextColor(ui.theme.Accent).SetAttributes(tcell.AttrBold))
		t.SetCell(row, 1, tview.NewTableCell(r.Time).SetTextColor(ui.theme.TableRowMuted))
		t.SetCell(row, 2, tview.NewTableCell(r.URL).SetTextColor(ui.theme.TableRow).SetExpansion(1))
		t.SetCell(row, 3, tview.NewTableCell(r.Client).SetTextColor(ui.theme.TableRow))
		status := tview.NewTableCell(r.Status)
		switch {
		case !r.HasStatus:
		case r.Failed:
			status.SetTextColor(ui.theme.Error)
		default:
			status.SetTextColor(ui.theme.Success)
		}
		t.SetCell(row, 4, status)
	}
}

func (ui *UI) renderIntrusions(snap *telemetry.Snapshot) {
	t := ui.intrusions
	t.Clear()
	ui.setHeaderRow(t, []string{"Type", "Time", "Flow", "Proto", "HTTP"})
	rows := intrusionRows(snap)
	if len(rows) == 0 {
		t.SetCell(1, 0, tview.NewTableCell("No Suricata events detected yet").
			SetTextColor(ui.theme.TableRowMuted).SetSelectable(false))
		return
	}
	for i, r := range rows {
		row := i + 1
		t.SetCell(row, 0, tview.NewTableCell(r.Type).SetTextColor(ui.theme.Accent).SetAttributes(tcell.AttrBold))
		t.SetCell(row, 1, tview.NewTableCell(r.Time).SetTextColor(ui.theme.TableRowMuted))
		t.SetCell(row, 2, tview.NewTableCell(r.Flow).SetTextColor(ui.theme.TableRow))
		t.SetCell(row, 3, tview.NewTableCell(r.Proto).SetTextColor(ui.theme.TableRow))
		t.SetCell(row, 4, tview.NewTableCell(r.HTTP).SetTextColor(ui.theme.TableRowMuted).SetExpansion(1))
	}
}

func (ui *UI) applyTheme() {
	ui.layout.SetBackgroundColor(ui.theme.Bg)
	for _, tv := range []*tview.TextView{ui.header, ui.banner, ui.statusBar} {
		tv.SetBackgroundColor(ui.theme.Surface)
		tv.SetTextColor(ui.theme.TextPrimary)
	}
	for _, tv := range append([]*tview.TextView{ui.timeline, ui.methods}, ui.cards...) {
		tv.SetBackgroundColor(ui.theme.Surface)
		tv.SetTextColor(ui.theme.TextPrimary)
		tv.SetBorderColor(ui.theme.Border)
		tv.SetTitleColor(ui.theme.Header)
	}
	for _, t := range []*tview.Table{ui.requests, ui.intrusions} {
		t.SetBackgroundColor(ui.theme.Surface)
		t.SetBorderColor(ui.theme.Border)
		t.SetTitleColor(ui.theme.Header)
		t.SetSelectedStyle(tcell.StyleDefault.Background(ui.theme.SelectionBg).Foreground(ui.theme.SelectionFg))
	}
	ui.highlightFocus(ui.app.GetFocus())
}

func (ui *UI) cycleTheme() {
	ui.setTheme(nextTheme(ui.themeName))
}

func (ui *UI) setTheme(name string) {
	ui.themeName, ui.theme = themeByName(name)
	ui.logger.Printf("Theme applied: %s", ui.themeName)
	ui.applyTheme()
	ui.render(ui.status)
	ui.setStatus("[%s]Theme: %s[-]", ui.theme.TagAccent, ui.themeName)
}
