package dialogs

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = `[yellow]List Keys[-]

  [green]↑/k[-]      Navigate up
  [green]↓/j[-]      Navigate down
  [green]n[-]        Queue a new video URL
  [green]d[-]        Delete the selected item
  [green]?[-]        This help
  [green]q[-]        Quit

[yellow]Statuses[-]

  ○ Pending   ◐ FetchingMeta   ⟳ Downloading   ● Available   ✗ Error

The header shows the event stream state. The list reconnects on its own
after the server drops the stream.

Press [green]Escape[-] or [green]?[-] to close.`

func HelpDialog(onClose func()) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetBorder(true).SetTitle(" Help ").SetTitleAlign(tview.AlignLeft)
	tv.SetDynamicColors(true)
	tv.SetBackgroundColor(tcell.ColorDefault)
	tv.SetText(helpText)
	tv.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == '?' {
			onClose()
			return nil
		}
		return event
	})
	return tv
}
