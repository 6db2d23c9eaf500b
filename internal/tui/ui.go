// Package tui renders a live view of supervised processes and their event
// streams.
package tui

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/procmux/internal/cliutil"
	"github.com/Paintersrp/procmux/internal/event"
	"github.com/Paintersrp/procmux/internal/mux"
)

const (
	tableTitle          = "Processes"
	logsTitle           = "Events"
	defaultLogRetention = 500
	entryBufferSize     = 256
)

// Option configures UI behaviour.
type Option func(*UI)

// WithMaxLogs sets the maximum number of event lines retained per process.
func WithMaxLogs(n int) Option {
	return func(u *UI) {
		if n > 0 {
			u.maxLogs = n
		}
	}
}

// UI coordinates the interactive viewer backed by tview.
type UI struct {
	app     *tview.Application
	table   *tview.Table
	logs    *tview.TextView
	entries chan mux.Entry

	mu        sync.RWMutex
	processes map[string]*processState
	visible   []string
	selected  string
	maxLogs   int

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

type processState struct {
	name      string
	pid       int
	state     string
	events    int
	lastEvent time.Time
	lines     []string
}

// New constructs a UI configured with the supplied options.
func New(opts ...Option) *UI {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 1).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	logs := tview.NewTextView().SetDynamicColors(false).SetWrap(false)
	logs.SetBorder(true).SetTitle(logsTitle)
	logs.SetChangedFunc(func() {
		app.Draw()
	})

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 1, true).
		AddItem(logs, 0, 2, false)

	ui := &UI{
		app:       app,
		table:     table,
		logs:      logs,
		entries:   make(chan mux.Entry, entryBufferSize),
		processes: make(map[string]*processState),
		maxLogs:   defaultLogRetention,
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(ui)
	}

	table.SetSelectionChangedFunc(func(row, column int) {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		ui.syncSelectionLocked(row)
		ui.renderLogsLocked()
	})

	app.SetRoot(flex, true)
	app.SetInputCapture(ui.handleKey)

	ui.mu.Lock()
	ui.refreshTableLocked()
	ui.mu.Unlock()

	return ui
}

// Submit delivers one mux entry to the viewer without blocking; entries are
// dropped when the viewer lags (the mux already accounts for drops upstream).
func (u *UI) Submit(entry mux.Entry) {
	select {
	case u.entries <- entry:
	default:
	}
}

// CloseEntries releases the entry channel, allowing internal goroutines to
// exit once drained.
func (u *UI) CloseEntries() {
	u.closeOnce.Do(func() {
		close(u.entries)
	})
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run starts the tview application and processes incoming entries until Stop
// is invoked or the provided context is cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	u.cancelMu.Lock()
	u.cancel = cancel
	u.cancelMu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consumeEntries(ctx)
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()

	err := u.app.Run()

	u.cancelMu.Lock()
	cancel = u.cancel
	u.cancel = nil
	u.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	u.wg.Wait()
	u.Stop()

	return err
}

// Stop terminates the application loop and releases resources.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.cancelMu.Lock()
		cancel := u.cancel
		u.cancel = nil
		u.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) consumeEntries(ctx context.Context) {
	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil
		case entry, ok := <-u.entries:
			if !ok {
				return
			}
			u.applyEntry(entry)
		}
	}
}

func (u *UI) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	if ev.Key() == tcell.KeyRune {
		switch ev.Rune() {
		case 'q', 'Q':
			go u.Stop()
			return nil
		}
	}
	return ev
}

func (u *UI) applyEntry(entry mux.Entry) {
	u.mu.Lock()
	state, ok := u.processes[entry.Name]
	if !ok {
		state = &processState{name: entry.Name, pid: entry.PID, state: "running"}
		u.processes[entry.Name] = state
	}
	if entry.PID != 0 {
		state.pid = entry.PID
	}
	state.events++
	state.lastEvent = entry.Timestamp

	switch {
	case entry.Dropped > 0:
	case entry.Event.Type == event.TypeExit && entry.Event.Status != nil:
		state.state = fmt.Sprintf("exited (%d)", entry.Event.Status.ExitCode())
	case entry.Event.Type == event.TypeCommandError:
		state.state = "wait failed"
	}

	state.lines = append(state.lines, formatEntry(entry))
	if len(state.lines) > u.maxLogs {
		state.lines = state.lines[len(state.lines)-u.maxLogs:]
	}

	u.refreshTableLocked()
	selected := u.selected == entry.Name
	if selected {
		u.renderLogsLocked()
	}
	u.mu.Unlock()

	u.app.QueueUpdateDraw(func() {})
}

func formatEntry(entry mux.Entry) string {
	record := cliutil.NewLogRecord(entry)
	source := record.Source
	if source == "" {
		source = record.Type
	}
	return fmt.Sprintf("%s [%s] %s", record.Timestamp.Format("15:04:05.000"), source, record.Message)
}

func (u *UI) syncSelectionLocked(row int) {
	idx := row - 1
	if idx >= 0 && idx < len(u.visible) {
		u.selected = u.visible[idx]
	}
}

func (u *UI) refreshTableLocked() {
	names := make([]string, 0, len(u.processes))
	for name := range u.processes {
		names = append(names, name)
	}
	sort.Strings(names)
	u.visible = names
	if u.selected == "" && len(names) > 0 {
		u.selected = names[0]
	}

	headers := []string{"Process", "PID", "State", "Events", "Last"}
	for col, header := range headers {
		u.table.SetCell(0, col, tview.NewTableCell(header).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold))
	}
	for row, name := range names {
		state := u.processes[name]
		last := "-"
		if !state.lastEvent.IsZero() {
			last = state.lastEvent.Format("15:04:05")
		}
		cells := []string{
			state.name,
			fmt.Sprintf("%d", state.pid),
			state.state,
			fmt.Sprintf("%d", state.events),
			last,
		}
		for col, text := range cells {
			u.table.SetCell(row+1, col, tview.NewTableCell(text))
		}
	}
}

func (u *UI) renderLogsLocked() {
	state, ok := u.processes[u.selected]
	if !ok {
		u.logs.SetText("")
		return
	}
	u.logs.SetTitle(fmt.Sprintf("%s: %s", logsTitle, state.name))
	var buf []byte
	for _, line := range state.lines {
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	u.logs.SetText(string(buf))
	u.logs.ScrollToEnd()
}
