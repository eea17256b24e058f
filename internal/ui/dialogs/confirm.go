package dialogs

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// DeleteDialog asks before an item is deleted. y or Delete confirms;
// n, Cancel and Escape cancel.
func DeleteDialog(id, title string, onConfirm func(), onCancel func()) *tview.Modal {
	text := fmt.Sprintf("Delete %s?", id)
	if title != "" && title != id {
		text = fmt.Sprintf("Delete %s?\n\n%s", id, title)
	}
	modal := tview.NewModal().
		SetText(text + "\n\nThe downloaded audio is removed too.").
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			if label == "Delete" {
				onConfirm()
			} else {
				onCancel()
			}
		})
	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyEscape, event.Rune() == 'n':
			onCancel()
			return nil
		case event.Rune() == 'y':
			onConfirm()
			return nil
		}
		return event
	})
	return modal
}
