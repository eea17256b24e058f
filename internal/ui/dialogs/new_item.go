package dialogs

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// NewItemDialog asks for a video URL. onSubmit gets the trimmed URL and is
// not called for empty input; onCancel runs on Cancel or Escape.
func NewItemDialog(onSubmit func(url string), onCancel func()) *tview.Form {
	form := tview.NewForm()
	form.SetBorder(true).SetTitle(" New Video ").SetTitleAlign(tview.AlignLeft)
	form.SetBackgroundColor(tcell.ColorDefault)
	form.SetFieldBackgroundColor(tcell.ColorDefault)

	form.AddInputField("URL", "", 60, nil, nil)
	form.AddButton("Add", func() {
		url := strings.TrimSpace(form.GetFormItemByLabel("URL").(*tview.InputField).GetText())
		if url == "" {
			return
		}
		onSubmit(url)
	})
	form.AddButton("Cancel", onCancel)

	form.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			onCancel()
			return nil
		}
		return event
	})
	return form
}
