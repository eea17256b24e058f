package ui

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/tubewatch/internal/apiclient"
	"github.com/zsprackett/tubewatch/internal/events"
)

var ErrNoRow = errors.New("no row for audio id")

// Connection states shown in the header.
const (
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateReconnecting = "reconnecting"
	StateClosed       = "closed"
)

type row struct {
	id      string
	title   string
	status  string
	changed time.Time
}

// ListView is the terminal list of items. It implements binder.Surface.
// Mutations may come from any goroutine; drawing happens on the
// application's event loop, or inline when there is no application.
type ListView struct {
	*tview.Flex
	app    *tview.Application
	table  *tview.Table
	header *tview.TextView
	footer *tview.TextView

	mu    sync.Mutex
	rows  []*row
	byID  map[string]*row
	state string
	flash string
	now   func() time.Time

	onNew    func()
	onDelete func(id string)
	onQuit   func()
}

const footerKeys = "[green]↑↓/jk[-] navigate  [green]n[-] new  [green]d[-] delete  [green]?[-] help  [green]q[-] quit"

func NewListView(app *tview.Application) *ListView {
	l := &ListView{
		app:   app,
		byID:  make(map[string]*row),
		state: StateConnecting,
		now:   time.Now,
	}

	l.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	l.header.SetBackgroundColor(ColorBackgroundPanel)

	l.table = tview.NewTable().
		SetSelectable(true, false).
		SetSelectedStyle(tcell.StyleDefault.
			Background(ColorSelected).
			Foreground(ColorSelectedText))
	l.table.SetBackgroundColor(ColorBackground)

	l.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	l.footer.SetBackgroundColor(ColorBackgroundPanel)

	l.Flex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(l.header, 1, 0, false).
		AddItem(l.table, 0, 1, true).
		AddItem(l.footer, 1, 0, false)

	l.setupInput()
	l.render()
	return l
}

func (l *ListView) SetCallbacks(onNew func(), onDelete func(id string), onQuit func()) {
	l.onNew = onNew
	l.onDelete = onDelete
	l.onQuit = onQuit
}

// Append adds a Pending row, or resets an existing row to Pending.
func (l *ListView) Append(id string) error {
	l.mu.Lock()
	r, ok := l.byID[id]
	if !ok {
		r = &row{id: id}
		l.byID[id] = r
		l.rows = append(l.rows, r)
	}
	r.status = events.InitialStatus
	r.changed = l.now()
	l.mu.Unlock()
	l.redraw()
	return nil
}

func (l *ListView) SetStatus(id, status string) error {
	l.mu.Lock()
	r, ok := l.byID[id]
	if ok {
		r.status = status
		r.changed = l.now()
	}
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRow, id)
	}
	l.redraw()
	return nil
}

func (l *ListView) Remove(id string) error {
	l.mu.Lock()
	_, ok := l.byID[id]
	if ok {
		delete(l.byID, id)
		for i, r := range l.rows {
			if r.id == id {
				l.rows = append(l.rows[:i], l.rows[i+1:]...)
				break
			}
		}
	}
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRow, id)
	}
	l.redraw()
	return nil
}

// Seed replaces the rows with a server snapshot.
func (l *ListView) Seed(items []apiclient.Item) {
	l.mu.Lock()
	l.rows = l.rows[:0]
	l.byID = make(map[string]*row, len(items))
	for _, it := range items {
		r := &row{id: it.AudioID, title: it.Title, status: it.Status, changed: it.UpdatedAt}
		l.rows = append(l.rows, r)
		l.byID[r.id] = r
	}
	l.mu.Unlock()
	l.redraw()
}

func (l *ListView) SetConnState(state string) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
	l.redraw()
}

// Flash shows msg in the footer until the next Flash("").
func (l *ListView) Flash(msg string) {
	l.mu.Lock()
	l.flash = msg
	l.mu.Unlock()
	l.redraw()
}

// IDs returns the audio ids in display order.
func (l *ListView) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, len(l.rows))
	for i, r := range l.rows {
		ids[i] = r.id
	}
	return ids
}

func (l *ListView) Status(id string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byID[id]
	if !ok {
		return "", false
	}
	return r.status, true
}

func (l *ListView) title(id string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.byID[id]; ok {
		return r.title
	}
	return ""
}

// Refresh redraws relative ages.
func (l *ListView) Refresh() {
	l.redraw()
}

func (l *ListView) redraw() {
	if l.app == nil {
		l.render()
		return
	}
	l.app.QueueUpdateDraw(l.render)
}

func (l *ListView) render() {
	l.mu.Lock()
	rows := make([]row, len(l.rows))
	for i, r := range l.rows {
		rows[i] = *r
	}
	state, flash, now := l.state, l.flash, l.now()
	l.mu.Unlock()

	selected, _ := l.table.GetSelection()
	l.table.Clear()
	if len(rows) == 0 {
		l.table.SetCell(0, 0, tview.NewTableCell("  no items yet").
			SetTextColor(ColorTextMuted).
			SetSelectable(false))
	}
	available, busy, failed := 0, 0, 0
	for i, r := range rows {
		switch {
		case r.status == "Available":
			available++
		case r.status == "Error":
			failed++
		case active(r.status):
			busy++
		}
		l.table.SetCell(i, 0, tview.NewTableCell(rowText(r, now)).
			SetTextColor(statusColor(r.status)).
			SetBackgroundColor(ColorBackground).
			SetExpansion(1))
	}
	if selected >= len(rows) {
		selected = len(rows) - 1
	}
	if selected >= 0 && len(rows) > 0 {
		l.table.Select(selected, 0)
	}

	l.header.SetText(fmt.Sprintf(
		"[blue]TUBEWATCH[-]   [green]%s %d available[-]  [yellow]%s %d active[-]  [red]%s %d failed[-]  %d total   %s",
		IconAvailable, available, IconDownloading, busy, IconError, failed, len(rows), stateLabel(state)))

	if flash != "" {
		l.footer.SetText("[yellow]" + tview.Escape(flash) + "[-]   " + footerKeys)
	} else {
		l.footer.SetText(footerKeys)
	}
}

func statusColor(status string) tcell.Color {
	_, color := StatusIcon(status)
	return color
}

func rowText(r row, now time.Time) string {
	icon, _ := StatusIcon(r.status)
	text := fmt.Sprintf(" %s %s - Status: %s", icon, r.id, r.status)
	if r.title != "" && r.title != r.id {
		text += "  " + r.title
	}
	if !r.changed.IsZero() {
		text += "  " + humanize.RelTime(r.changed, now, "ago", "from now")
	}
	return tview.Escape(text)
}

func stateLabel(state string) string {
	switch state {
	case StateConnected:
		return "[green]" + state + "[-]"
	case StateClosed:
		return "[red]" + state + "[-]"
	default:
		return "[yellow]" + state + "[-]"
	}
}

func (l *ListView) selectedID() (string, bool) {
	row, _ := l.table.GetSelection()
	l.mu.Lock()
	defer l.mu.Unlock()
	if row < 0 || row >= len(l.rows) {
		return "", false
	}
	return l.rows[row].id, true
}

func (l *ListView) setupInput() {
	l.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'n':
			if l.onNew != nil {
				l.onNew()
			}
			return nil
		case 'd':
			if id, ok := l.selectedID(); ok && l.onDelete != nil {
				l.onDelete(id)
			}
			return nil
		case 'q':
			if l.onQuit != nil {
				l.onQuit()
			}
			return nil
		}
		return event
	})
}
